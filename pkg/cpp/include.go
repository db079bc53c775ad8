// Include path handling for the C preprocessor.
package cpp

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

// IncludeKind selects an include search list.
type IncludeKind int

const (
	IncludeQuoted    IncludeKind = iota // "file" form, -iquote directories
	IncludeAngled                       // <file> form, -isystem directories
	IncludeFramework                    // <Name/file> in Name.framework/Headers
)

func (k IncludeKind) String() string {
	switch k {
	case IncludeQuoted:
		return "quoted"
	case IncludeAngled:
		return "angled"
	case IncludeFramework:
		return "framework"
	}
	return "unknown"
}

// MaxIncludeDepth is the maximum allowed include nesting.
const MaxIncludeDepth = 200

// IncludeResolver searches include directories on a file system and keeps
// the once-only bookkeeping for #pragma once, #import and include guards.
type IncludeResolver struct {
	Fs             afero.Fs
	QuotePaths     []string // -iquote directories, "file" form only
	UserPaths      []string // -I directories, both forms
	SystemPaths    []string // -isystem directories
	FrameworkPaths []string // -F directories

	includedOnce   map[string]bool
	guards         map[string]string // path -> guard macro
	systemDetected bool
}

// NewIncludeResolver creates a resolver over fs. A nil fs means the host
// file system.
func NewIncludeResolver(fs afero.Fs) *IncludeResolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &IncludeResolver{
		Fs:           fs,
		includedOnce: make(map[string]bool),
		guards:       make(map[string]string),
	}
}

// AddQuotePath adds a -iquote include directory.
func (r *IncludeResolver) AddQuotePath(path string) {
	r.QuotePaths = append(r.QuotePaths, path)
}

// AddUserPath adds a -I include directory.
func (r *IncludeResolver) AddUserPath(path string) {
	r.UserPaths = append(r.UserPaths, path)
}

// AddSystemPath adds a -isystem include directory.
func (r *IncludeResolver) AddSystemPath(path string) {
	r.SystemPaths = append(r.SystemPaths, path)
}

// AddFrameworkPath adds a -F framework directory.
func (r *IncludeResolver) AddFrameworkPath(path string) {
	r.FrameworkPaths = append(r.FrameworkPaths, path)
}

// DetectSystemPaths appends the host compiler's include directories to the
// system paths. It runs at most once.
func (r *IncludeResolver) DetectSystemPaths() {
	if r.systemDetected {
		return
	}
	r.systemDetected = true

	// Try to query the compiler for include paths
	paths := queryCompilerIncludePaths()
	if len(paths) > 0 {
		r.SystemPaths = append(r.SystemPaths, paths...)
		return
	}

	// Fall back to default paths
	r.SystemPaths = append(r.SystemPaths, getDefaultSystemPaths()...)
}

// Resolve finds an include file. For the quoted form curDir, the directory
// of the including file, is searched first; it is skipped when empty.
func (r *IncludeResolver) Resolve(name string, kind IncludeKind, curDir string) (string, error) {
	if filepath.IsAbs(name) {
		if r.isFile(name) {
			return filepath.Clean(name), nil
		}
		return "", &IncludeError{Filename: name, Kind: kind}
	}

	var searched []string
	try := func(dirs ...string) (string, bool) {
		for _, dir := range dirs {
			searched = append(searched, dir)
			full := filepath.Join(dir, name)
			if r.isFile(full) {
				return full, true
			}
		}
		return "", false
	}

	if kind == IncludeQuoted {
		if curDir != "" {
			if path, ok := try(curDir); ok {
				return path, nil
			}
		}
		if path, ok := try(r.QuotePaths...); ok {
			return path, nil
		}
	}
	if path, ok := try(r.UserPaths...); ok {
		return path, nil
	}
	if path, ok := try(r.SystemPaths...); ok {
		return path, nil
	}
	if path, ok := r.resolveFramework(name, &searched); ok {
		return path, nil
	}
	return "", &IncludeError{Filename: name, Kind: kind, Searched: searched}
}

// resolveFramework maps Name/file.h to Name.framework/Headers/file.h.
func (r *IncludeResolver) resolveFramework(name string, searched *[]string) (string, bool) {
	idx := strings.IndexByte(name, '/')
	if idx <= 0 {
		return "", false
	}
	framework, rest := name[:idx], name[idx+1:]
	for _, dir := range r.FrameworkPaths {
		*searched = append(*searched, dir)
		full := filepath.Join(dir, framework+".framework", "Headers", rest)
		if r.isFile(full) {
			return full, true
		}
	}
	return "", false
}

func (r *IncludeResolver) isFile(path string) bool {
	info, err := r.Fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Open opens a resolved include file as a source.
func (r *IncludeResolver) Open(path string) (Source, error) {
	return NewFileSource(r.Fs, path)
}

// MarkOnce marks a file as included at most once.
func (r *IncludeResolver) MarkOnce(path string) {
	r.includedOnce[filepath.Clean(path)] = true
}

// IsAlreadyIncluded reports whether a once-only file was seen before.
func (r *IncludeResolver) IsAlreadyIncluded(path string) bool {
	return r.includedOnce[filepath.Clean(path)]
}

// Guard returns the include guard macro recorded for path.
func (r *IncludeResolver) Guard(path string) (string, bool) {
	g, ok := r.guards[filepath.Clean(path)]
	return g, ok
}

// ScanGuard records path's include guard if the whole file is wrapped in
// #ifndef GUARD / #define GUARD ... #endif.
func (r *IncludeResolver) ScanGuard(path string) error {
	path = filepath.Clean(path)
	if _, ok := r.guards[path]; ok {
		return nil
	}
	f, err := r.Fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	guard, err := detectIncludeGuard(newReaderLexer(f, path))
	if err != nil {
		return err
	}
	if guard != "" {
		r.guards[path] = guard
	}
	return nil
}

// detectIncludeGuard returns the guard macro of a file, or "" if the file
// is not entirely wrapped in a guard conditional.
func detectIncludeGuard(lex *Lexer) (string, error) {
	var guard string
	depth := 0
	closed := false
	var prev []Token // nonwhite tokens of the current line
	for {
		tok, err := lex.NextToken()
		if err != nil {
			return "", err
		}
		eof := tok.Type == PP_EOF
		switch {
		case tok.isWhite():
			continue
		case eof && len(prev) == 0:
			if !closed {
				return "", nil
			}
			return guard, nil
		case !eof && tok.Type != PP_NEWLINE:
			if closed {
				// Code after the closing #endif.
				return "", nil
			}
			prev = append(prev, tok)
			continue
		}

		line := prev
		prev = prev[:0:0]
		if len(line) == 0 {
			continue
		}
		if line[0].Type != PP_HASH {
			if guard == "" || depth == 0 {
				return "", nil
			}
			continue
		}
		if len(line) < 2 || line[1].Type != PP_IDENTIFIER {
			if guard == "" {
				return "", nil
			}
			continue
		}
		switch dir := line[1].Text; {
		case guard == "":
			if dir != "ifndef" || len(line) < 3 || line[2].Type != PP_IDENTIFIER {
				return "", nil
			}
			guard = line[2].Text
			depth = 1
		case dir == "if" || dir == "ifdef" || dir == "ifndef":
			depth++
		case dir == "endif":
			depth--
			if depth == 0 {
				closed = true
			}
		case (dir == "else" || dir == "elif") && depth == 1:
			return "", nil
		}
		if eof {
			if !closed {
				return "", nil
			}
			return guard, nil
		}
	}
}

// IncludeError indicates that an include file was not found.
type IncludeError struct {
	Filename string
	Kind     IncludeKind
	Searched []string
}

func (e *IncludeError) Error() string {
	var sb strings.Builder
	sb.WriteString("File not found: ")
	sb.WriteString(e.Filename)
	if len(e.Searched) > 0 {
		sb.WriteString(" in")
		for _, dir := range e.Searched {
			sb.WriteString(" ")
			sb.WriteString(dir)
		}
	}
	return sb.String()
}

// IsNotFound reports whether err is an include lookup failure.
func IsNotFound(err error) bool {
	var ie *IncludeError
	return errors.As(err, &ie) || errors.Is(err, fs.ErrNotExist)
}

// queryCompilerIncludePaths queries the system C compiler for include paths.
func queryCompilerIncludePaths() []string {
	// Try cc, gcc, clang in order
	compilers := []string{"cc", "gcc", "clang"}
	for _, compiler := range compilers {
		if path, err := exec.LookPath(compiler); err == nil {
			if paths := queryCompiler(path); len(paths) > 0 {
				return paths
			}
		}
	}
	return nil
}

func queryCompiler(compiler string) []string {
	cmd := exec.Command(compiler, "-v", "-E", "-x", "c", "-")
	cmd.Stdin = strings.NewReader("")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	_ = cmd.Run() // the search list is printed even on failure

	return parseCompilerOutput(stderr.String())
}

func parseCompilerOutput(output string) []string {
	var paths []string
	inSearchList := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if strings.Contains(line, "#include <...> search starts here:") ||
			strings.Contains(line, "#include \"...\" search starts here:") {
			inSearchList = true
			continue
		}
		if strings.Contains(line, "End of search list") {
			inSearchList = false
			continue
		}

		if inSearchList {
			path := strings.TrimSpace(line)
			// Framework directories are passed with -F instead.
			if strings.HasSuffix(path, " (framework directory)") {
				continue
			}
			if path != "" && dirExists(path) {
				paths = append(paths, path)
			}
		}
	}

	return paths
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func getDefaultSystemPaths() []string {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Library/Developer/CommandLineTools/SDKs/MacOSX.sdk/usr/include",
			"/Applications/Xcode.app/Contents/Developer/Platforms/MacOSX.platform/Developer/SDKs/MacOSX.sdk/usr/include",
			"/usr/local/include",
		}
	default:
		candidates = []string{"/usr/include", "/usr/local/include"}
	}

	var paths []string
	for _, p := range candidates {
		if dirExists(p) {
			paths = append(paths, p)
		}
	}
	if runtime.GOOS == "linux" {
		paths = append(paths, findGCCIncludePaths()...)
	}
	return paths
}

func findGCCIncludePaths() []string {
	var paths []string

	gccBase := "/usr/lib/gcc"
	if !dirExists(gccBase) {
		return paths
	}

	_ = filepath.Walk(gccBase, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() && info.Name() == "include" {
			paths = append(paths, path)
		}
		return nil
	})

	return paths
}
