// preprocess.go implements the main preprocessor driver.
package cpp

import (
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Preprocessor is the main driver for C preprocessing. It pulls tokens
// from a stack of sources, executes directives and expands macros.
//
// A Preprocessor is not safe for concurrent use. Independent runs need
// independent instances.
type Preprocessor struct {
	macros   *MacroTable
	states   []*State
	includes *IncludeResolver

	inputs   []Source
	hadInput bool
	source   Source
	// sourceTok is a token pushed back onto the source stack.
	sourceTok *Token

	expr        exprState
	inDirective bool
	inArgs      bool // processing a directive met inside macro arguments
	counter     int

	features FeatureSet
	warnings WarningSet
	listener Listener
	log      logrus.FieldLogger
}

// PreprocessorOptions configures the preprocessor.
type PreprocessorOptions struct {
	Defines        []string // -D definitions, NAME or NAME=VALUE
	Undefines      []string // -U undefinitions
	IncludePaths   []string // -I directories
	QuotePaths     []string // -iquote directories
	SystemPaths    []string // -isystem directories
	FrameworkPaths []string // -F directories
	KeepComments   bool     // Preserve comments in output
	LineMarkers    bool     // Generate # N "file" markers
	Features       []Feature
	Warnings       []Warning

	// Listener receives diagnostics. Without one, the first diagnostic
	// fails the Token call.
	Listener Listener
	// Fs is the file system for input and include files. Defaults to the
	// host file system.
	Fs afero.Fs
	// Logger receives debug tracing. Defaults to discarding.
	Logger logrus.FieldLogger
}

// NewPreprocessor creates a new preprocessor instance.
func NewPreprocessor(opts PreprocessorOptions) (*Preprocessor, error) {
	p := &Preprocessor{
		macros:   NewMacroTable(),
		states:   []*State{newState(nil, SourceLoc{})},
		includes: NewIncludeResolver(opts.Fs),
		listener: opts.Listener,
		log:      opts.Logger,
	}
	if p.log == nil {
		p.log = discardLogger()
	}

	p.features.Add(FeatureDigraphs)
	for _, f := range opts.Features {
		p.features.Add(f)
	}
	if opts.KeepComments {
		p.features.Add(FeatureKeepComments)
	}
	if opts.LineMarkers {
		p.features.Add(FeatureLineMarkers)
	}
	for _, w := range opts.Warnings {
		p.warnings.Add(w)
	}

	for _, dir := range opts.QuotePaths {
		p.includes.AddQuotePath(dir)
	}
	for _, dir := range opts.IncludePaths {
		p.includes.AddUserPath(dir)
	}
	for _, dir := range opts.SystemPaths {
		p.includes.AddSystemPath(dir)
	}
	for _, dir := range opts.FrameworkPaths {
		p.includes.AddFrameworkPath(dir)
	}

	p.macros.Define(&Macro{Name: "__LINE__", kind: macroLine})
	p.macros.Define(&Macro{Name: "__FILE__", kind: macroFile})
	p.macros.Define(&Macro{Name: "__COUNTER__", kind: macroCounter})

	for _, def := range opts.Defines {
		name, value := ParseCmdlineDefine(def)
		if err := p.Define(name, value); err != nil {
			return nil, fmt.Errorf("-D%s: %w", def, err)
		}
	}
	for _, name := range opts.Undefines {
		p.Undefine(name)
	}
	return p, nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Define defines a macro as if by #define name value. name may carry a
// parameter list, as in "MAX(a,b)".
func (p *Preprocessor) Define(name, value string) error {
	src := NewStringSource("<command-line>", name+" "+value)
	src.init(p)

	savedSource, savedTok := p.source, p.sourceTok
	p.source, p.sourceTok = src, nil
	p.inDirective = true
	defer func() {
		p.source, p.sourceTok = savedSource, savedTok
		p.inDirective = false
	}()

	_, err := p.doDefine()
	return err
}

// DefineName defines name as 1.
func (p *Preprocessor) DefineName(name string) error {
	return p.Define(name, "1")
}

// Undefine removes a macro.
func (p *Preprocessor) Undefine(name string) {
	p.macros.Undefine(name)
}

// Macros returns the current macro definitions sorted by name.
func (p *Preprocessor) Macros() []*Macro {
	names := p.macros.Names()
	macros := make([]*Macro, 0, len(names))
	for _, n := range names {
		macros = append(macros, p.macros.Lookup(n))
	}
	return macros
}

// Macro returns the definition of name, or nil.
func (p *Preprocessor) Macro(name string) *Macro {
	return p.macros.Lookup(name)
}

// AddInput queues src to be read after the inputs added before it.
func (p *Preprocessor) AddInput(src Source) {
	src.init(p)
	p.inputs = append(p.inputs, src)
	p.hadInput = true
}

// AddInputFile queues the file at path.
func (p *Preprocessor) AddInputFile(path string) error {
	src, err := NewFileSource(p.includes.Fs, path)
	if err != nil {
		return err
	}
	p.AddInput(src)
	return nil
}

// AddInputString queues text, reported as name.
func (p *Preprocessor) AddInputString(name, text string) {
	p.AddInput(NewStringSource(name, text))
}

// AddIncludePath adds a directory to the search list for kind.
func (p *Preprocessor) AddIncludePath(kind IncludeKind, dir string) {
	switch kind {
	case IncludeQuoted:
		p.includes.AddQuotePath(dir)
	case IncludeAngled:
		p.includes.AddSystemPath(dir)
	case IncludeFramework:
		p.includes.AddFrameworkPath(dir)
	}
}

// Includes returns the include resolver.
func (p *Preprocessor) Includes() *IncludeResolver {
	return p.includes
}

func (p *Preprocessor) AddFeature(f Feature) { p.features.Add(f) }

func (p *Preprocessor) RemoveFeature(f Feature) { p.features.Remove(f) }

func (p *Preprocessor) AddWarning(w Warning) { p.warnings.Add(w) }

func (p *Preprocessor) SetListener(l Listener) { p.listener = l }

// Close closes every open source, including queued inputs.
func (p *Preprocessor) Close() error {
	var firstErr error
	for p.source != nil {
		s := p.source
		p.source = s.base().parent
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range p.inputs {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.inputs = nil
	p.sourceTok = nil
	return firstErr
}

// Token returns the next output token. At the end of all input it
// returns a PP_EOF token, and keeps doing so.
func (p *Preprocessor) Token() (Token, error) {
	if !p.hadInput {
		return Token{}, ErrNoInput
	}
	for {
		active := p.isActive()
		tok, err := p.sourceToken()
		if err != nil {
			return Token{}, err
		}

		if !active {
			switch tok.Type {
			case PP_HASH, PP_NEWLINE, PP_EOF, PP_LINE_MARKER:
			case PP_WHITESPACE:
				return tok, nil
			case PP_CCOMMENT, PP_CPPCOMMENT:
				return toWhitespace(tok), nil
			default:
				return p.skipline(false)
			}
		}

		switch tok.Type {
		case PP_CCOMMENT, PP_CPPCOMMENT:
			if p.features.Has(FeatureKeepComments) {
				return tok, nil
			}
			return toWhitespace(tok), nil
		case PP_IDENTIFIER:
			m := p.expandable(&tok)
			if m == nil {
				return tok, nil
			}
			ok, err := p.macro(m, tok)
			if err != nil {
				return Token{}, err
			}
			if !ok {
				return tok, nil
			}
		case PP_HASH:
			return p.directive(tok)
		default:
			return tok, nil
		}
	}
}

// Tokens iterates over the output tokens up to, not including, PP_EOF.
// Iteration stops after the first error.
func (p *Preprocessor) Tokens() iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		for {
			tok, err := p.Token()
			if err != nil {
				yield(Token{}, err)
				return
			}
			if tok.Type == PP_EOF {
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// PreprocessFile preprocesses a file and returns the result.
func (p *Preprocessor) PreprocessFile(filename string) (string, error) {
	if err := p.AddInputFile(filename); err != nil {
		return "", err
	}
	return p.collect()
}

// PreprocessString preprocesses a string with a given filename for error messages.
func (p *Preprocessor) PreprocessString(source, filename string) (string, error) {
	p.AddInputString(filename, source)
	return p.collect()
}

func (p *Preprocessor) collect() (string, error) {
	defer p.Close()
	var sb strings.Builder
	for tok, err := range p.Tokens() {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(tok.Text)
	}
	return sb.String(), nil
}

// expandedToken returns the next token with macros expanded but no
// directive processing. It is used for #if expressions, include names and
// argument pre-expansion.
func (p *Preprocessor) expandedToken() (Token, error) {
	for {
		tok, err := p.sourceToken()
		if err != nil {
			return Token{}, err
		}
		if tok.Type != PP_IDENTIFIER {
			return tok, nil
		}
		m := p.expandable(&tok)
		if m == nil {
			return tok, nil
		}
		ok, err := p.macro(m, tok)
		if err != nil {
			return Token{}, err
		}
		if !ok {
			return tok, nil
		}
	}
}

// expandable returns the macro named by tok if it may be invoked here. A
// name read while its macro is expanding is marked NoExpand, so it stays
// unexpanded when it is rescanned from an argument.
func (p *Preprocessor) expandable(tok *Token) *Macro {
	if tok.NoExpand {
		return nil
	}
	m := p.macros.Lookup(tok.Text)
	if m == nil {
		return nil
	}
	if p.source != nil && p.source.isExpanding(m) {
		tok.NoExpand = true
		return nil
	}
	return m
}

func (p *Preprocessor) expandedTokenNonwhite() (Token, error) {
	for {
		tok, err := p.expandedToken()
		if err != nil || !tok.isWhite() {
			return tok, err
		}
	}
}

// sourceToken returns the next token from the source stack, popping
// exhausted sources. Inside a directive the end of a file reads as a
// newline so the directive cannot run into the including file.
func (p *Preprocessor) sourceToken() (Token, error) {
	if t := p.sourceTok; t != nil {
		p.sourceTok = nil
		return *t, nil
	}
	for {
		s := p.source
		if s == nil {
			if !p.nextInput() {
				return eofToken(), nil
			}
			continue
		}
		tok, err := s.Token()
		if err != nil {
			return Token{}, err
		}
		if tok.Type != PP_EOF {
			return tok, nil
		}

		b := s.base()
		if p.inDirective && s.isNumbered() {
			p.log.WithField("file", s.Name()).Debug("no newline at end of file")
			return newToken(PP_NEWLINE, "\n").withLoc(tok.Loc), nil
		}
		if !b.autopop && b.parent != nil {
			return tok, nil
		}
		if b.parent == nil {
			if err := p.endInput(); err != nil {
				return Token{}, err
			}
			p.popSource()
			continue
		}

		p.popSource()
		if s.isNumbered() && p.features.Has(FeatureLineMarkers) {
			if ls := nearestLexer(p.source); ls != nil {
				p.untoken(newToken(PP_NEWLINE, "\n"))
				return p.lineMarker(ls.Line(), ls.Name(), "2"), nil
			}
		}
	}
}

// nextInput pushes the next queued input as the root source.
func (p *Preprocessor) nextInput() bool {
	if len(p.inputs) == 0 {
		return false
	}
	src := p.inputs[0]
	p.inputs = p.inputs[1:]
	p.pushSource(src, false)
	if p.features.Has(FeatureLineMarkers) {
		p.pushSource(newFixedTokenSource(p.lineMarker(1, src.Name(), ""), newToken(PP_NEWLINE, "\n")), true)
	}
	return true
}

// endInput checks for conditionals left open at the end of a root input
// and resets the conditional stack for the next one.
func (p *Preprocessor) endInput() error {
	if len(p.states) <= 1 {
		return nil
	}
	loc := p.states[1].loc
	p.states = p.states[:1]
	return p.errorAt(p.source, loc.Line, loc.Column, "unterminated conditional directive")
}

func (p *Preprocessor) sourceTokenNonwhite() (Token, error) {
	for {
		tok, err := p.sourceToken()
		if err != nil || !tok.isWhite() {
			return tok, err
		}
	}
}

// untoken pushes tok back. Only one token may be pushed back at a time.
func (p *Preprocessor) untoken(tok Token) {
	p.sourceTok = &tok
}

// skipline discards the rest of the current line and returns the
// terminating newline. With white set, a warning is reported for the first
// token that is not whitespace.
func (p *Preprocessor) skipline(white bool) (Token, error) {
	saved := p.inDirective
	p.inDirective = true
	defer func() { p.inDirective = saved }()

	warned := false
	for {
		tok, err := p.sourceToken()
		if err != nil {
			return Token{}, err
		}
		switch {
		case tok.Type == PP_NEWLINE || tok.Type == PP_EOF:
			return tok, nil
		case tok.isWhite():
		case white && !warned:
			warned = true
			if err := p.warningTok(tok, "Unexpected nonwhite token "+describe(tok)); err != nil {
				return Token{}, err
			}
		}
	}
}

// skipRest returns tok if it already ends the line, and skips the line
// otherwise.
func (p *Preprocessor) skipRest(tok Token, white bool) (Token, error) {
	if tok.Type == PP_NEWLINE || tok.Type == PP_EOF {
		return tok, nil
	}
	return p.skipline(white)
}

func (p *Preprocessor) pushSource(src Source, autopop bool) {
	b := src.base()
	b.parent = p.source
	b.autopop = autopop
	src.init(p)
	if p.listener != nil {
		if p.source != nil {
			p.listener.HandleSourceChange(p.source, SourceSuspend)
		}
		p.listener.HandleSourceChange(src, SourcePush)
	}
	if p.features.Has(FeatureDebug) {
		p.log.WithField("source", src.Name()).Debug("push source")
	}
	p.source = src
}

func (p *Preprocessor) popSource() {
	s := p.source
	if s == nil {
		return
	}
	if p.listener != nil {
		p.listener.HandleSourceChange(s, SourcePop)
	}
	if p.features.Has(FeatureDebug) {
		p.log.WithField("source", s.Name()).Debug("pop source")
	}
	p.source = s.base().parent
	if err := s.Close(); err != nil {
		p.log.WithError(err).Warnf("closing %s", s.Name())
	}
	if p.listener != nil && p.source != nil {
		p.listener.HandleSourceChange(p.source, SourceResume)
	}
}

// lineMarker builds a GNU style # N "file" flags token.
func (p *Preprocessor) lineMarker(line int, name, flags string) Token {
	text := fmt.Sprintf("# %d \"%s\"", line, escapeString(name))
	if flags != "" {
		text += " " + flags
	}
	return Token{Type: PP_LINE_MARKER, Text: text, Value: line, Loc: SourceLoc{File: name, Line: line}}
}

// toWhitespace replaces a comment by whitespace keeping its line breaks.
func toWhitespace(tok Token) Token {
	n := strings.Count(tok.Text, "\n")
	text := " "
	if n > 0 {
		text = strings.Repeat("\n", n)
	}
	return Token{Type: PP_WHITESPACE, Text: text, Loc: tok.Loc}
}

// describe names a token in a diagnostic.
func describe(tok Token) string {
	switch tok.Type {
	case PP_NEWLINE:
		return "newline"
	case PP_EOF:
		return "end of file"
	}
	return tok.Text
}

// errorAt reports an error. It returns non-nil if processing must stop.
func (p *Preprocessor) errorAt(src Source, line, column int, msg string) error {
	if p.listener != nil {
		return p.listener.HandleError(src, line, column, msg)
	}
	return &Error{Loc: SourceLoc{File: sourceName(src), Line: line, Column: column}, Msg: msg}
}

// warningAt reports a warning, as an error under WarnError.
func (p *Preprocessor) warningAt(src Source, line, column int, msg string) error {
	if p.warnings.Has(WarnError) {
		return p.errorAt(src, line, column, msg)
	}
	if p.listener != nil {
		return p.listener.HandleWarning(src, line, column, msg)
	}
	return &Error{Loc: SourceLoc{File: sourceName(src), Line: line, Column: column}, Msg: msg, Warning: true}
}

// lexWarning reports a lexer diagnostic unless output is inactive.
func (p *Preprocessor) lexWarning(src Source, line, column int, msg string) error {
	if !p.isActive() {
		return nil
	}
	return p.warningAt(src, line, column, msg)
}

func (p *Preprocessor) errorTok(tok Token, msg string) error {
	return p.errorAt(p.source, tok.Loc.Line, tok.Loc.Column, msg)
}

func (p *Preprocessor) warningTok(tok Token, msg string) error {
	return p.warningAt(p.source, tok.Loc.Line, tok.Loc.Column, msg)
}

func sourceName(src Source) string {
	if src == nil {
		return ""
	}
	return src.Name()
}
