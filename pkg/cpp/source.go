package cpp

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Source is a node in the stack of token producers the preprocessor reads
// from. Lexer-backed sources read files and strings, fixed sources replay a
// token list, and macro sources replay a macro's replacement list.
//
// The interface is closed: sources are created with NewFileSource,
// NewStringSource and NewReaderSource.
type Source interface {
	// Token returns the next token from this source only.
	Token() (Token, error)
	// Name returns the file name used in diagnostics and __FILE__.
	Name() string
	// Path returns the file system path of the nearest file-backed source.
	Path() string
	// Line returns the current line of the nearest lexer-backed source.
	Line() int
	// Column returns the current column of the nearest lexer-backed source.
	Column() int
	// Close releases any underlying reader.
	Close() error

	base() *baseSource
	isExpanding(m *Macro) bool
	isNumbered() bool
	init(p *Preprocessor)
}

type baseSource struct {
	parent  Source
	autopop bool
	pp      *Preprocessor
}

func (b *baseSource) base() *baseSource { return b }

func (b *baseSource) init(p *Preprocessor) { b.pp = p }

func (b *baseSource) isExpanding(m *Macro) bool {
	if b.parent != nil {
		return b.parent.isExpanding(m)
	}
	return false
}

func (b *baseSource) isNumbered() bool { return false }

func (b *baseSource) Name() string {
	if b.parent != nil {
		return b.parent.Name()
	}
	return ""
}

func (b *baseSource) Path() string {
	if b.parent != nil {
		return b.parent.Path()
	}
	return ""
}

func (b *baseSource) Line() int {
	if b.parent != nil {
		return b.parent.Line()
	}
	return 0
}

func (b *baseSource) Column() int {
	if b.parent != nil {
		return b.parent.Column()
	}
	return 0
}

func (b *baseSource) Close() error { return nil }

// lexerSource produces tokens by lexing a character stream.
type lexerSource struct {
	baseSource
	lexer  *Lexer
	name   string
	path   string
	closer io.Closer
	closed bool
}

// NewStringSource creates a source that lexes text. name is used in
// diagnostics and for __FILE__.
func NewStringSource(name, text string) Source {
	return newLexerSource(strings.NewReader(text), name, "", nil)
}

// NewReaderSource creates a source that lexes r. If r is an io.Closer it is
// closed when the source is exhausted or the preprocessor is closed.
func NewReaderSource(name string, r io.Reader) Source {
	c, _ := r.(io.Closer)
	return newLexerSource(r, name, "", c)
}

// NewFileSource opens path on fs and returns a source lexing its contents.
func NewFileSource(fs afero.Fs, path string) (Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return newLexerSource(f, path, path, f), nil
}

func newLexerSource(r io.Reader, name, path string, closer io.Closer) *lexerSource {
	s := &lexerSource{
		lexer:  newReaderLexer(r, name),
		name:   name,
		path:   path,
		closer: closer,
	}
	s.lexer.warn = s.warning
	return s
}

func (s *lexerSource) init(p *Preprocessor) {
	s.pp = p
	s.lexer.SetDigraphs(p.features.Has(FeatureDigraphs))
	s.lexer.SetTrigraphs(p.features.Has(FeatureTrigraphs), p.warnings.Has(WarnTrigraphs))
}

func (s *lexerSource) warning(loc SourceLoc, msg string) error {
	if s.pp == nil {
		return nil
	}
	return s.pp.lexWarning(s, loc.Line, loc.Column, msg)
}

func (s *lexerSource) Token() (Token, error) {
	if s.closed {
		return eofToken(), nil
	}
	tok, err := s.lexer.NextToken()
	if err != nil {
		return Token{}, fmt.Errorf("reading %s: %w", s.name, err)
	}
	return tok, nil
}

func (s *lexerSource) Name() string { return s.name }

func (s *lexerSource) Path() string { return s.path }

func (s *lexerSource) Line() int { return s.lexer.line }

func (s *lexerSource) Column() int { return s.lexer.column }

func (s *lexerSource) isNumbered() bool { return true }

func (s *lexerSource) setInclude(b bool) { s.lexer.include = b }

// setLine renumbers the source so that the next line read is n.
func (s *lexerSource) setLine(n int) { s.lexer.line = n }

func (s *lexerSource) setName(name string) {
	s.name = name
	s.lexer.filename = name
}

// dir returns the directory used for quoted include lookup.
func (s *lexerSource) dir() string {
	if s.path == "" {
		return ""
	}
	return filepath.Dir(s.path)
}

func (s *lexerSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *lexerSource) String() string {
	return fmt.Sprintf("file %s", s.name)
}

// newPasteSource lexes the text produced by a ## operator. Newlines are not
// significant and directives are not recognised.
func newPasteSource(p *Preprocessor, text string) *lexerSource {
	s := newLexerSource(strings.NewReader(text), "", "", nil)
	s.init(p)
	s.lexer.ppvalid = false
	return s
}

// fixedTokenSource replays a fixed list of tokens.
type fixedTokenSource struct {
	baseSource
	tokens []Token
	idx    int
}

func newFixedTokenSource(tokens ...Token) *fixedTokenSource {
	return &fixedTokenSource{tokens: tokens}
}

func (s *fixedTokenSource) Token() (Token, error) {
	if s.idx >= len(s.tokens) {
		return eofToken(), nil
	}
	tok := s.tokens[s.idx]
	s.idx++
	return tok, nil
}

func (s *fixedTokenSource) String() string {
	return fmt.Sprintf("constant token stream %v", s.tokens)
}

// nearestLexer returns the closest lexer-backed source on the chain.
func nearestLexer(s Source) *lexerSource {
	for s != nil {
		if ls, ok := s.(*lexerSource); ok {
			return ls
		}
		s = s.base().parent
	}
	return nil
}
