// Macro invocation and expansion.
package cpp

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// macroTokenSource replays a macro's replacement list, substituting its
// arguments.
type macroTokenSource struct {
	baseSource
	macro *Macro
	args  []*Argument
	pos   int

	// arg holds tokens being replayed from an argument or a paste.
	arg    []Token
	argPos int

	// expandingArg is set while one of our arguments is expanded, so that
	// the argument may invoke this macro again.
	expandingArg bool
}

func newMacroTokenSource(m *Macro, args []*Argument) *macroTokenSource {
	return &macroTokenSource{macro: m, args: args}
}

func (s *macroTokenSource) isExpanding(m *Macro) bool {
	if m == s.macro && !s.expandingArg {
		return true
	}
	return s.baseSource.isExpanding(m)
}

func (s *macroTokenSource) Token() (Token, error) {
	for {
		if s.arg != nil {
			if s.argPos < len(s.arg) {
				tok := s.arg[s.argPos]
				s.argPos++
				return tok, nil
			}
			s.arg = nil
		}
		if s.pos >= len(s.macro.Tokens) {
			return eofToken(), nil
		}
		tok := s.macro.Tokens[s.pos]
		s.pos++
		switch tok.Type {
		case PP_MACRO_STRINGIFY:
			return stringify(s.args[tok.Int()].raw, tok.Loc), nil
		case PP_MACRO_ARG:
			exp, err := s.expandArg(tok.Int())
			if err != nil {
				return Token{}, err
			}
			s.arg = exp
			s.argPos = 0
		case PP_MACRO_PASTE:
			if err := s.paste(tok); err != nil {
				return Token{}, err
			}
		default:
			tok.Expanded = true
			return tok, nil
		}
	}
}

func (s *macroTokenSource) expandArg(idx int) ([]Token, error) {
	s.expandingArg = true
	defer func() { s.expandingArg = false }()
	return s.args[idx].expand(s.pp)
}

// paste concatenates the operands following a paste marker and re-lexes
// the result.
func (s *macroTokenSource) paste(ptok Token) error {
	var buf strings.Builder
	var prev Token
	count := 2
	for i := 0; i < count; i++ {
		if s.pos >= len(s.macro.Tokens) {
			if err := s.pp.errorTok(ptok, "Paste at end of expansion"); err != nil {
				return err
			}
			break
		}
		tok := s.macro.Tokens[s.pos]
		s.pos++
		switch tok.Type {
		case PP_MACRO_PASTE:
			count += 2
			continue
		case PP_MACRO_ARG:
			arg := s.args[tok.Int()]
			if prev.Is(",") && s.isVarArg(tok.Int()) && len(arg.raw) == 0 {
				// GNU comma elision: , ## __VA_ARGS__ with no arguments.
				str := buf.String()
				buf.Reset()
				buf.WriteString(strings.TrimSuffix(str, ","))
			}
			buf.WriteString(TokensToString(arg.raw))
		case PP_MACRO_STRINGIFY:
			buf.WriteString(stringify(s.args[tok.Int()].raw, tok.Loc).Text)
		default:
			buf.WriteString(tok.Text)
		}
		prev = tok
	}

	toks, err := relex(s.pp, buf.String(), ptok.Loc)
	if err != nil {
		return err
	}
	s.arg = toks
	s.argPos = 0
	return nil
}

func (s *macroTokenSource) isVarArg(idx int) bool {
	return s.macro.Variadic && idx == s.macro.NumParams()-1
}

func (s *macroTokenSource) String() string {
	return fmt.Sprintf("expansion of %s", s.macro.Name)
}

// relex lexes the result of a paste into tokens.
func relex(p *Preprocessor, text string, loc SourceLoc) ([]Token, error) {
	src := newPasteSource(p, text)
	var toks []Token
	for {
		tok, err := src.Token()
		if err != nil {
			return nil, err
		}
		if tok.Type == PP_EOF {
			return toks, nil
		}
		tok.Loc = loc
		tok.Expanded = true
		toks = append(toks, tok)
	}
}

// stringify renders raw argument tokens as a string literal.
func stringify(raw []Token, loc SourceLoc) Token {
	text := TokensToString(raw)
	return Token{
		Type:       PP_STRING,
		Text:       `"` + escapeString(text) + `"`,
		Loc:        loc,
		Value:      text,
		Expanded:   true,
		Stringized: true,
	}
}

func escapeString(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch c {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// macro invokes m, whose name token orig has just been read. It returns
// false if orig must be emitted literally, which happens when a
// function-like macro is not followed by an argument list or the arguments
// do not match.
func (p *Preprocessor) macro(m *Macro, orig Token) (bool, error) {
	var args []*Argument
	if m.IsFunctionLike() {
		var lines int
		var ok bool
		var err error
		args, lines, ok, err = p.collectArgs(m, orig)
		if err != nil {
			return false, err
		}
		// Newlines inside the argument list follow the expansion.
		if lines > 0 {
			p.pushSource(newFixedTokenSource(newlineToken(lines)), true)
		}
		if !ok {
			return false, nil
		}
	}

	switch m.kind {
	case macroLine:
		tok := intToken(p.source.Line())
		tok.Loc = orig.Loc
		p.pushSource(newFixedTokenSource(tok), true)
		return true, nil
	case macroFile:
		name := "<no file>"
		if n := p.source.Name(); n != "" {
			name = n
		}
		tok := Token{Type: PP_STRING, Text: `"` + escapeString(name) + `"`, Value: name, Loc: orig.Loc}
		p.pushSource(newFixedTokenSource(tok), true)
		return true, nil
	case macroCounter:
		tok := intToken(p.counter)
		tok.Loc = orig.Loc
		p.counter++
		p.pushSource(newFixedTokenSource(tok), true)
		return true, nil
	}

	if p.features.Has(FeatureDebug) {
		p.log.WithFields(logrus.Fields{
			"macro": m.Name,
			"file":  orig.Loc.File,
			"line":  orig.Loc.Line,
		}).Debugf("expanding %s", m)
	}
	p.pushSource(newMacroTokenSource(m, args), true)
	return true, nil
}

// collectArgs reads the argument list of a function-like macro. It returns
// ok=false if no argument list follows or the argument count is wrong.
// lines counts the newlines consumed with the argument list. Directives
// met inside the list are processed as they are read.
func (p *Preprocessor) collectArgs(m *Macro, orig Token) (args []*Argument, lines int, ok bool, err error) {
	var skipped []Token
	var tok Token
	for {
		if tok, err = p.sourceToken(); err != nil {
			return nil, 0, false, err
		}
		if tok.isWhite() || (tok.Type == PP_NEWLINE && !p.inDirective) {
			skipped = append(skipped, tok)
			continue
		}
		break
	}
	if !tok.Is("(") {
		switch {
		case len(skipped) == 0:
			p.untoken(tok)
		case tok.Type == PP_EOF:
			// Sources at the end of input keep returning EOF.
			p.pushSource(newFixedTokenSource(skipped...), true)
		default:
			p.pushSource(newFixedTokenSource(append(skipped, tok)...), true)
		}
		return nil, 0, false, nil
	}
	for _, t := range skipped {
		lines += countNewlines(t)
	}

	for {
		if tok, err = p.sourceToken(); err != nil {
			return nil, 0, false, err
		}
		if tok.isWhite() || (tok.Type == PP_NEWLINE && !p.inDirective) {
			lines += countNewlines(tok)
			continue
		}
		break
	}

	if !tok.Is(")") || m.NumParams() > 0 {
		arg := &Argument{}
		depth := 0
		space := false
	ARGS:
		for {
			switch {
			case tok.Type == PP_EOF:
				return nil, 0, false, p.errorTok(tok, "EOF in macro args")
			case tok.Type == PP_NEWLINE && p.inDirective:
				p.untoken(tok)
				return nil, 0, false, p.errorTok(tok, "Unterminated argument list invoking macro "+m.Name)
			case tok.Type == PP_HASH && !p.inDirective:
				saved := p.inArgs
				p.inArgs = true
				tok, err = p.directive(tok)
				p.inArgs = saved
				if err != nil {
					return nil, 0, false, err
				}
				continue
			case tok.Type == PP_NEWLINE:
				lines += countNewlines(tok)
				space = true
			case tok.isWhite():
				space = true
			case tok.Type == PP_LINE_MARKER, !p.isActive():
			case tok.Is(",") && depth == 0:
				if m.Variadic && len(args) == m.NumParams()-1 {
					arg.addToken(tok)
				} else {
					args = append(args, arg)
					arg = &Argument{}
				}
				space = false
			case tok.Is(")") && depth == 0:
				args = append(args, arg)
				break ARGS
			default:
				if tok.Is("(") {
					depth++
				} else if tok.Is(")") {
					depth--
				}
				if space && len(arg.raw) > 0 {
					arg.addToken(spaceToken())
				}
				arg.addToken(tok)
				space = false
			}
			if tok, err = p.sourceToken(); err != nil {
				return nil, 0, false, err
			}
		}
	}

	if m.Variadic && len(args) == m.NumParams()-1 {
		args = append(args, &Argument{})
	}
	if len(args) != m.NumParams() {
		msg := fmt.Sprintf("macro %s has %d parameters but given %d args", m.Name, m.NumParams(), len(args))
		return nil, lines, false, p.errorTok(orig, msg)
	}
	return args, lines, true, nil
}

func countNewlines(tok Token) int {
	if tok.Type != PP_NEWLINE {
		return 0
	}
	return strings.Count(tok.Text, "\n")
}

func newlineToken(n int) Token {
	return newToken(PP_NEWLINE, strings.Repeat("\n", n))
}

// expand fully macro-expands a token list in isolation, as for an
// argument before substitution.
func (p *Preprocessor) expand(raw []Token) ([]Token, error) {
	saved := p.sourceTok
	p.sourceTok = nil
	src := newFixedTokenSource(raw...)
	p.pushSource(src, false)
	defer func() {
		for p.source != nil && p.source != Source(src) {
			p.popSource()
		}
		p.popSource()
		p.sourceTok = saved
	}()

	var out []Token
	space := false
	for {
		tok, err := p.expandedToken()
		if err != nil {
			return nil, err
		}
		switch {
		case tok.Type == PP_EOF:
			return out, nil
		case tok.isWhite():
			space = true
		default:
			if space && len(out) > 0 {
				out = append(out, spaceToken())
			}
			out = append(out, tok)
			space = false
		}
	}
}
