// Package preproc drives C preprocessing for the command line.
// It provides both the internal preprocessor and a fallback to an external
// system preprocessor (cc -E).
package preproc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/raymyers/ralph-cpp/pkg/cpp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Options configures the preprocessing step. The tagged fields may be
// loaded from a YAML file with LoadConfig.
type Options struct {
	Defines        []string `yaml:"defines"`         // -D macros, NAME or NAME=VALUE
	Undefines      []string `yaml:"undefines"`       // -U macros
	IncludePaths   []string `yaml:"include_paths"`   // -I directories
	QuotePaths     []string `yaml:"quote_paths"`     // -iquote directories
	SystemPaths    []string `yaml:"system_paths"`    // -isystem directories
	FrameworkPaths []string `yaml:"framework_paths"` // -F directories
	ForceIncludes  []string `yaml:"includes"`        // --include files, read before the inputs
	Features       []string `yaml:"features"`        // feature names, see cpp.ParseFeature
	Warnings       []string `yaml:"warnings"`        // warning names, "all", or "no-<name>"

	LineMarkers       bool `yaml:"line_markers"`        // Generate # N "file" markers
	KeepComments      bool `yaml:"keep_comments"`       // Preserve comments in output
	NoDigraphs        bool `yaml:"no_digraphs"`         // Do not recognise digraphs
	DetectSystemPaths bool `yaml:"detect_system_paths"` // Append the host compiler's include paths
	UseExternal       bool `yaml:"use_external"`        // Force use of external preprocessor

	// Fs is the file system for inputs and includes. Defaults to the host
	// file system. The external preprocessor always uses the host.
	Fs afero.Fs `yaml:"-"`
	// Listener receives diagnostics. When nil they are collected and
	// returned as one error after the run.
	Listener cpp.Listener `yaml:"-"`
	// Logger receives debug tracing.
	Logger logrus.FieldLogger `yaml:"-"`
}

// LoadConfig reads Options from a YAML file. Unknown keys are an error.
func LoadConfig(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var opts Options
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &opts, nil
}

// Merge layers other on top of o: lists are appended and flags that are
// set in other are set in o.
func (o *Options) Merge(other *Options) {
	if other == nil {
		return
	}
	o.Defines = append(o.Defines, other.Defines...)
	o.Undefines = append(o.Undefines, other.Undefines...)
	o.IncludePaths = append(o.IncludePaths, other.IncludePaths...)
	o.QuotePaths = append(o.QuotePaths, other.QuotePaths...)
	o.SystemPaths = append(o.SystemPaths, other.SystemPaths...)
	o.FrameworkPaths = append(o.FrameworkPaths, other.FrameworkPaths...)
	o.ForceIncludes = append(o.ForceIncludes, other.ForceIncludes...)
	o.Features = append(o.Features, other.Features...)
	o.Warnings = append(o.Warnings, other.Warnings...)
	o.LineMarkers = o.LineMarkers || other.LineMarkers
	o.KeepComments = o.KeepComments || other.KeepComments
	o.NoDigraphs = o.NoDigraphs || other.NoDigraphs
	o.DetectSystemPaths = o.DetectSystemPaths || other.DetectSystemPaths
	o.UseExternal = o.UseExternal || other.UseExternal
	if other.Fs != nil {
		o.Fs = other.Fs
	}
	if other.Listener != nil {
		o.Listener = other.Listener
	}
	if other.Logger != nil {
		o.Logger = other.Logger
	}
}

// parseWarnings resolves warning names. Later entries win, so
// ["all", "no-undef"] enables everything but WarnUndef.
func parseWarnings(names []string) ([]cpp.Warning, error) {
	var set cpp.WarningSet
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		switch {
		case name == "all":
			set |= cpp.AllWarnings()
		case name == "none":
			set = 0
		case strings.HasPrefix(name, "no-"):
			w, err := cpp.ParseWarning(strings.TrimPrefix(name, "no-"))
			if err != nil {
				return nil, err
			}
			set.Remove(w)
		default:
			w, err := cpp.ParseWarning(name)
			if err != nil {
				return nil, err
			}
			set.Add(w)
		}
	}
	var warnings []cpp.Warning
	for w := cpp.WarnTrigraphs; w <= cpp.WarnError; w++ {
		if set.Has(w) {
			warnings = append(warnings, w)
		}
	}
	return warnings, nil
}

// cppOptions translates Options for the internal preprocessor.
func (o *Options) cppOptions() (cpp.PreprocessorOptions, error) {
	ppOpts := cpp.PreprocessorOptions{
		Defines:        o.Defines,
		Undefines:      o.Undefines,
		IncludePaths:   o.IncludePaths,
		QuotePaths:     o.QuotePaths,
		SystemPaths:    o.SystemPaths,
		FrameworkPaths: o.FrameworkPaths,
		KeepComments:   o.KeepComments,
		LineMarkers:    o.LineMarkers,
		Listener:       o.Listener,
		Fs:             o.Fs,
		Logger:         o.Logger,
	}
	for _, name := range o.Features {
		f, err := cpp.ParseFeature(name)
		if err != nil {
			return ppOpts, err
		}
		ppOpts.Features = append(ppOpts.Features, f)
	}
	warnings, err := parseWarnings(o.Warnings)
	if err != nil {
		return ppOpts, err
	}
	ppOpts.Warnings = warnings
	return ppOpts, nil
}

// New builds an internal preprocessor from opts without adding inputs.
func New(opts *Options) (*cpp.Preprocessor, error) {
	if opts == nil {
		opts = &Options{}
	}
	ppOpts, err := opts.cppOptions()
	if err != nil {
		return nil, err
	}
	pp, err := cpp.NewPreprocessor(ppOpts)
	if err != nil {
		return nil, err
	}
	if opts.NoDigraphs {
		pp.RemoveFeature(cpp.FeatureDigraphs)
	}
	if opts.DetectSystemPaths {
		pp.Includes().DetectSystemPaths()
	}
	return pp, nil
}

// Preprocess runs the C preprocessor on the given source file and returns
// the preprocessed source code as a string.
// By default, it uses the internal preprocessor. Set UseExternal option
// to force use of the system preprocessor.
func Preprocess(filename string, opts *Options) (string, error) {
	var sb strings.Builder
	err := PreprocessTo(&sb, []string{filename}, opts)
	return sb.String(), err
}

// PreprocessTo preprocesses inputs in order, as one translation unit for
// the internal preprocessor, and streams the result to w.
func PreprocessTo(w io.Writer, inputs []string, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}
	if opts.UseExternal {
		for _, input := range inputs {
			if err := preprocessExternal(w, input, opts); err != nil {
				return err
			}
		}
		return nil
	}

	pp, err := New(opts)
	if err != nil {
		return err
	}
	for _, path := range append(append([]string(nil), opts.ForceIncludes...), inputs...) {
		if err := pp.AddInputFile(path); err != nil {
			pp.Close()
			return err
		}
	}
	return run(w, pp, opts)
}

// PreprocessString preprocesses C source code provided as a string.
// The external preprocessor reads it from a temporary file.
func PreprocessString(source, filename string, opts *Options) (string, error) {
	var sb strings.Builder
	err := PreprocessReader(&sb, strings.NewReader(source), filename, opts)
	return sb.String(), err
}

// PreprocessReader preprocesses the source read from r, reported as name,
// and streams the result to w.
func PreprocessReader(w io.Writer, r io.Reader, name string, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}
	if opts.UseExternal {
		return preprocessReaderExternal(w, r, name, opts)
	}

	pp, err := New(opts)
	if err != nil {
		return err
	}
	for _, path := range opts.ForceIncludes {
		if err := pp.AddInputFile(path); err != nil {
			pp.Close()
			return err
		}
	}
	pp.AddInput(cpp.NewReaderSource(name, r))
	return run(w, pp, opts)
}

// run copies the output of pp to w. Without a listener in opts the
// diagnostics are collected and returned together.
func run(w io.Writer, pp *cpp.Preprocessor, opts *Options) error {
	var diags *cpp.DiagnosticCollector
	if opts.Listener == nil {
		diags = cpp.NewDiagnosticCollector(opts.Logger)
		pp.SetListener(diags)
	}

	r := cpp.NewReader(pp)
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return err
	}
	if diags != nil {
		return diags.Err()
	}
	return nil
}

// externalArgs builds the cc -E command line for opts.
func externalArgs(filename string, opts *Options) []string {
	args := []string{"-E"} // Preprocess only
	if !opts.LineMarkers {
		args = append(args, "-P")
	}
	if opts.KeepComments {
		args = append(args, "-C")
	}
	for _, path := range opts.QuotePaths {
		args = append(args, "-iquote", path)
	}
	for _, path := range opts.IncludePaths {
		args = append(args, "-I"+path)
	}
	for _, path := range opts.SystemPaths {
		args = append(args, "-isystem", path)
	}
	for _, path := range opts.FrameworkPaths {
		args = append(args, "-F"+path)
	}
	for _, def := range opts.Defines {
		args = append(args, "-D"+def)
	}
	for _, name := range opts.Undefines {
		args = append(args, "-U"+name)
	}
	for _, path := range opts.ForceIncludes {
		args = append(args, "-include", path)
	}
	for _, name := range opts.Features {
		if strings.EqualFold(name, cpp.FeatureTrigraphs.String()) {
			args = append(args, "-trigraphs")
		}
	}
	return append(args, filename)
}

// preprocessExternal uses the system C preprocessor (cc -E)
func preprocessExternal(w io.Writer, filename string, opts *Options) error {
	cppCmd := findPreprocessor()
	if cppCmd == "" {
		return fmt.Errorf("no C preprocessor found (tried: cc, gcc, clang)")
	}

	absName, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	cmd := exec.Command(cppCmd, externalArgs(absName, opts)...)

	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr

	// Set the working directory to the file's directory for relative includes
	cmd.Dir = filepath.Dir(absName)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("preprocessing failed: %w\n%s", err, stderr.String())
	}
	return nil
}

func preprocessReaderExternal(w io.Writer, r io.Reader, name string, opts *Options) error {
	baseName := filepath.Base(name)
	if baseName == "" || baseName == "." || strings.ContainsAny(baseName, "<>") {
		baseName = "source.c"
	}
	tmpFile, err := os.CreateTemp("", "ralph-cpp-*-"+baseName)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return preprocessExternal(w, tmpFile.Name(), opts)
}

// NeedsPreprocessing returns true if the file might need preprocessing.
// Files ending in .i or .p are considered already preprocessed.
func NeedsPreprocessing(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext != ".i" && ext != ".p"
}

// findPreprocessor searches for a C preprocessor on the system
func findPreprocessor() string {
	candidates := []string{"cc", "gcc", "clang"}

	for _, cmd := range candidates {
		if path, err := exec.LookPath(cmd); err == nil {
			return path
		}
	}
	return ""
}
