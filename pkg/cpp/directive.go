// directive.go dispatches preprocessing directives and implements the
// non-conditional ones.
package cpp

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DirectiveType identifies a preprocessing directive.
type DirectiveType int

const (
	DIR_DEFINE DirectiveType = iota
	DIR_ELIF
	DIR_ELSE
	DIR_ENDIF
	DIR_ERROR
	DIR_IF
	DIR_IFDEF
	DIR_IFNDEF
	DIR_IMPORT
	DIR_INCLUDE
	DIR_INCLUDE_NEXT
	DIR_LINE
	DIR_PRAGMA
	DIR_UNDEF
	DIR_WARNING
)

var directiveNames = map[string]DirectiveType{
	"define":       DIR_DEFINE,
	"elif":         DIR_ELIF,
	"else":         DIR_ELSE,
	"endif":        DIR_ENDIF,
	"error":        DIR_ERROR,
	"if":           DIR_IF,
	"ifdef":        DIR_IFDEF,
	"ifndef":       DIR_IFNDEF,
	"import":       DIR_IMPORT,
	"include":      DIR_INCLUDE,
	"include_next": DIR_INCLUDE_NEXT,
	"line":         DIR_LINE,
	"pragma":       DIR_PRAGMA,
	"undef":        DIR_UNDEF,
	"warning":      DIR_WARNING,
}

// LookupDirective returns the directive named name.
func LookupDirective(name string) (DirectiveType, bool) {
	d, ok := directiveNames[name]
	return d, ok
}

func (d DirectiveType) String() string {
	for name, dt := range directiveNames {
		if dt == d {
			return name
		}
	}
	return fmt.Sprintf("DirectiveType(%d)", int(d))
}

// isConditional reports whether d must be processed in skipped regions.
func (d DirectiveType) isConditional() bool {
	switch d {
	case DIR_IF, DIR_IFDEF, DIR_IFNDEF, DIR_ELIF, DIR_ELSE, DIR_ENDIF:
		return true
	}
	return false
}

// allowedInArgs reports whether d may appear inside the argument list of
// a macro invocation.
func (d DirectiveType) allowedInArgs() bool {
	switch d {
	case DIR_INCLUDE, DIR_INCLUDE_NEXT, DIR_IMPORT, DIR_PRAGMA:
		return false
	}
	return true
}

// directive processes the directive introduced by hash and returns the
// token that replaces it in the output, normally the terminating newline.
func (p *Preprocessor) directive(hash Token) (Token, error) {
	p.inDirective = true
	defer func() { p.inDirective = false }()

	tok, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	switch tok.Type {
	case PP_NEWLINE, PP_EOF:
		// The null directive.
		return tok, nil
	case PP_NUMBER:
		// GNU line marker: # 33 "file" flags
		if !p.isActive() {
			return p.skipline(false)
		}
		return p.doLineNumber(tok)
	case PP_IDENTIFIER:
	default:
		if !p.isActive() {
			return p.skipline(false)
		}
		if err := p.errorTok(tok, "Preprocessor directive not a word "+describe(tok)); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}

	dt, ok := directiveNames[tok.Text]
	if !ok {
		if !p.isActive() {
			return p.skipline(false)
		}
		if err := p.errorTok(tok, "Unknown preprocessor directive "+tok.Text); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}
	if !dt.isConditional() && !p.isActive() {
		return p.skipline(false)
	}
	if p.inArgs && !dt.allowedInArgs() {
		if err := p.errorTok(tok, "#"+tok.Text+" may not be used inside macro arguments"); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}
	if p.features.Has(FeatureDebug) {
		p.log.WithFields(logrus.Fields{
			"directive": tok.Text,
			"file":      p.source.Name(),
			"line":      tok.Loc.Line,
		}).Debug("directive")
	}

	switch dt {
	case DIR_DEFINE:
		return p.doDefine()
	case DIR_UNDEF:
		return p.doUndef()
	case DIR_INCLUDE, DIR_INCLUDE_NEXT:
		return p.doInclude(tok, false)
	case DIR_IMPORT:
		if p.warnings.Has(WarnImport) {
			if err := p.warningTok(tok, "#import is a deprecated GCC extension"); err != nil {
				return Token{}, err
			}
		}
		return p.doInclude(tok, true)
	case DIR_LINE:
		return p.doLine()
	case DIR_PRAGMA:
		return p.doPragma(hash)
	case DIR_ERROR:
		return p.doError(tok, true)
	case DIR_WARNING:
		return p.doError(tok, false)
	case DIR_IF:
		return p.doIf(hash)
	case DIR_IFDEF:
		return p.doIfdef(hash, false)
	case DIR_IFNDEF:
		return p.doIfdef(hash, true)
	case DIR_ELIF:
		return p.doElif(tok)
	case DIR_ELSE:
		return p.doElse(tok)
	case DIR_ENDIF:
		return p.doEndif(tok)
	}
	return Token{}, &InternalError{Msg: "unhandled directive " + dt.String()}
}

// doDefine parses a macro definition and adds it to the macro table.
func (p *Preprocessor) doDefine() (Token, error) {
	tok, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != PP_IDENTIFIER {
		if err := p.errorTok(tok, "Expected identifier, not "+describe(tok)); err != nil {
			return Token{}, err
		}
		return p.skipRest(tok, false)
	}
	if tok.Text == "defined" {
		if err := p.errorTok(tok, "Cannot redefine name 'defined'"); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}
	m := &Macro{Name: tok.Text, Loc: tok.Loc}

	if tok, err = p.sourceToken(); err != nil {
		return Token{}, err
	}
	if tok.Is("(") {
		var ok bool
		tok, ok, err = p.defineParams(m)
		if err != nil || !ok {
			return tok, err
		}
	}
	return p.defineBody(m, tok)
}

// defineParams reads a parameter list after its opening parenthesis. When
// ok is false the returned token ends the directive.
func (p *Preprocessor) defineParams(m *Macro) (Token, bool, error) {
	m.Params = []string{}
	tok, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, false, err
	}
	fail := func(tok Token, msg string) (Token, bool, error) {
		if err := p.errorTok(tok, msg); err != nil {
			return Token{}, false, err
		}
		tok, err := p.skipRest(tok, false)
		return tok, false, err
	}

	if !tok.Is(")") {
		for {
			switch {
			case tok.Type == PP_IDENTIFIER:
				if m.paramIndex(tok.Text) >= 0 {
					return fail(tok, "Duplicate macro parameter "+tok.Text)
				}
				m.Params = append(m.Params, tok.Text)
				if tok, err = p.sourceTokenNonwhite(); err != nil {
					return Token{}, false, err
				}
				if tok.Is("...") {
					m.Variadic = true
					if tok, err = p.sourceTokenNonwhite(); err != nil {
						return Token{}, false, err
					}
				}
			case tok.Is("..."):
				m.Params = append(m.Params, vaArgs)
				m.Variadic = true
				if tok, err = p.sourceTokenNonwhite(); err != nil {
					return Token{}, false, err
				}
			case tok.Type == PP_NEWLINE || tok.Type == PP_EOF:
				return fail(tok, "Unterminated macro parameter list")
			default:
				return fail(tok, "error in macro parameters: "+describe(tok))
			}

			switch {
			case m.Variadic && !tok.Is(")"):
				return fail(tok, "ellipsis must be on last argument")
			case tok.Is(","):
				if tok, err = p.sourceTokenNonwhite(); err != nil {
					return Token{}, false, err
				}
				continue
			case tok.Is(")"):
			case tok.Type == PP_NEWLINE || tok.Type == PP_EOF:
				return fail(tok, "Unterminated macro parameter list")
			default:
				return fail(tok, "Expected ',' or ')' in macro parameters, not "+describe(tok))
			}
			break
		}
	}

	tok, err = p.sourceToken()
	return tok, err == nil, err
}

// defineBody reads the replacement list starting at tok.
func (p *Preprocessor) defineBody(m *Macro, tok Token) (Token, error) {
	var err error
	for tok.isWhite() {
		if tok, err = p.sourceToken(); err != nil {
			return Token{}, err
		}
	}

	space, paste := false, false
	addSpace := func() {
		if space {
			m.addToken(spaceToken())
		}
		space = false
	}
	for tok.Type != PP_NEWLINE && tok.Type != PP_EOF {
		switch {
		case tok.isWhite():
			if !paste {
				space = true
			}
		case tok.Type == PP_HASHHASH:
			if len(m.Tokens) == 0 {
				if err := p.errorTok(tok, "'##' cannot appear at either end of a macro expansion"); err != nil {
					return Token{}, err
				}
				return p.skipline(false)
			}
			space = false
			paste = true
			m.addPaste(Token{Type: PP_MACRO_PASTE, Text: "##", Loc: tok.Loc})
		case tok.Is("#") && m.IsFunctionLike():
			addSpace()
			paste = false
			la, err := p.sourceTokenNonwhite()
			if err != nil {
				return Token{}, err
			}
			if idx := m.paramIndex(la.Text); la.Type == PP_IDENTIFIER && idx >= 0 {
				m.addToken(Token{Type: PP_MACRO_STRINGIFY, Text: "#" + la.Text, Loc: la.Loc, Value: idx})
			} else {
				m.addToken(tok)
				p.untoken(la)
			}
		case tok.Type == PP_IDENTIFIER:
			addSpace()
			paste = false
			if idx := m.paramIndex(tok.Text); idx >= 0 {
				m.addToken(Token{Type: PP_MACRO_ARG, Text: tok.Text, Loc: tok.Loc, Value: idx})
			} else {
				m.addToken(tok)
			}
		default:
			addSpace()
			paste = false
			m.addToken(tok)
		}
		if tok, err = p.sourceToken(); err != nil {
			return Token{}, err
		}
	}

	if paste {
		if err := p.errorTok(tok, "'##' cannot appear at either end of a macro expansion"); err != nil {
			return Token{}, err
		}
		return tok, nil
	}
	if err := p.addMacro(m); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// addMacro installs m, warning if it changes an existing definition.
func (p *Preprocessor) addMacro(m *Macro) error {
	if old := p.macros.Lookup(m.Name); old != nil && !old.IsBuiltin() && !sameDefinition(old, m) {
		if err := p.warningAt(p.source, m.Loc.Line, m.Loc.Column, fmt.Sprintf("%q redefined", m.Name)); err != nil {
			return err
		}
	}
	if p.features.Has(FeatureDebug) {
		p.log.WithField("macro", m.Name).Debugf("define %s", m)
	}
	p.macros.Define(m)
	return nil
}

func sameDefinition(a, b *Macro) bool {
	if a.IsFunctionLike() != b.IsFunctionLike() || a.Variadic != b.Variadic ||
		len(a.Params) != len(b.Params) || len(a.Tokens) != len(b.Tokens) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Tokens {
		if a.Tokens[i].Type != b.Tokens[i].Type || a.Tokens[i].Text != b.Tokens[i].Text {
			return false
		}
	}
	return true
}

func (p *Preprocessor) doUndef() (Token, error) {
	tok, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != PP_IDENTIFIER {
		if err := p.errorTok(tok, "Expected identifier, not "+describe(tok)); err != nil {
			return Token{}, err
		}
		return p.skipRest(tok, false)
	}
	p.macros.Undefine(tok.Text)
	return p.skipline(true)
}

// doInclude handles #include, #include_next and, with once set, #import.
func (p *Preprocessor) doInclude(dir Token, once bool) (Token, error) {
	ls := nearestLexer(p.source)
	if ls != nil {
		ls.setInclude(true)
	}
	tok, err := p.expandedTokenNonwhite()
	if ls != nil {
		ls.setInclude(false)
	}
	if err != nil {
		return Token{}, err
	}

	var name string
	kind := IncludeQuoted
	switch {
	case tok.Type == PP_STRING:
		name, _ = tok.Value.(string)
	case tok.Type == PP_HEADER_NAME:
		name, _ = tok.Value.(string)
		kind = IncludeAngled
	case tok.Is("<"):
		// Computed include: the header name is spelled by several tokens.
		var sb strings.Builder
		for {
			t, err := p.expandedToken()
			if err != nil {
				return Token{}, err
			}
			if t.Is(">") {
				break
			}
			if t.Type == PP_NEWLINE || t.Type == PP_EOF {
				if err := p.errorTok(t, "Missing terminating > character"); err != nil {
					return Token{}, err
				}
				return t, nil
			}
			sb.WriteString(t.Text)
		}
		name = sb.String()
		kind = IncludeAngled
	default:
		if err := p.errorTok(tok, "Expected string or header, not "+describe(tok)); err != nil {
			return Token{}, err
		}
		return p.skipRest(tok, false)
	}

	nl, err := p.skipline(true)
	if err != nil {
		return Token{}, err
	}
	if name == "" {
		if err := p.errorTok(tok, "Empty filename in #"+dir.Text); err != nil {
			return Token{}, err
		}
		return nl, nil
	}
	if p.includeDepth() >= MaxIncludeDepth {
		if err := p.errorTok(tok, fmt.Sprintf("#include nested depth %d exceeds maximum of %d", MaxIncludeDepth, MaxIncludeDepth)); err != nil {
			return Token{}, err
		}
		return nl, nil
	}

	curDir := ""
	if ls != nil {
		curDir = ls.dir()
	}
	path, err := p.includes.Resolve(name, kind, curDir)
	if err != nil {
		if err := p.errorTok(tok, err.Error()); err != nil {
			return Token{}, err
		}
		return nl, nil
	}

	if p.includes.IsAlreadyIncluded(path) {
		return nl, nil
	}
	if p.features.Has(FeaturePragmaOnce) {
		if guard, ok := p.includes.Guard(path); ok && p.macros.IsDefined(guard) {
			return nl, nil
		}
	}
	if once {
		p.includes.MarkOnce(path)
	}

	if p.features.Has(FeaturePragmaOnce) {
		if err := p.includes.ScanGuard(path); err != nil {
			p.log.WithError(err).Debugf("scanning %s for an include guard", path)
		}
	}
	src, err := p.includes.Open(path)
	if err != nil {
		if err := p.errorTok(tok, err.Error()); err != nil {
			return Token{}, err
		}
		return nl, nil
	}
	p.pushSource(src, true)
	if p.features.Has(FeatureLineMarkers) {
		p.untoken(nl)
		return p.lineMarker(1, src.Name(), "1"), nil
	}
	return nl, nil
}

// includeDepth counts the lexer-backed sources on the stack.
func (p *Preprocessor) includeDepth() int {
	n := 0
	for s := p.source; s != nil; s = s.base().parent {
		if s.isNumbered() {
			n++
		}
	}
	return n
}

// doLine handles #line N ["file"].
func (p *Preprocessor) doLine() (Token, error) {
	tok, err := p.expandedTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != PP_NUMBER {
		if err := p.errorTok(tok, "Expected number after #line, not "+describe(tok)); err != nil {
			return Token{}, err
		}
		return p.skipRest(tok, false)
	}
	return p.doLineNumber(tok)
}

// doLineNumber renumbers the current file from the line number tok and an
// optional file name.
func (p *Preprocessor) doLineNumber(tok Token) (Token, error) {
	nv, _ := tok.Value.(NumericValue)
	n, err := nv.Int64()
	if err != nil || nv.IsFloat() || nv.Base != 10 || n <= 0 {
		if err := p.errorTok(tok, "Invalid line number "+tok.Text); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}
	line := int(n)

	name := ""
	next, err := p.expandedTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	var nl Token
	switch {
	case next.Type == PP_STRING:
		name, _ = next.Value.(string)
		// Flags after a GNU line marker are ignored.
		if nl, err = p.skipline(false); err != nil {
			return Token{}, err
		}
	case next.Type == PP_NEWLINE || next.Type == PP_EOF:
		nl = next
	default:
		if err := p.errorTok(next, "Invalid filename "+describe(next)); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}

	ls := nearestLexer(p.source)
	if ls == nil {
		return nl, nil
	}
	ls.setLine(line + strings.Count(nl.Text, "\n") - 1)
	if name != "" {
		ls.setName(name)
	}
	if p.features.Has(FeatureLineMarkers) {
		p.untoken(nl)
		return p.lineMarker(line, ls.Name(), ""), nil
	}
	return nl, nil
}

// doPragma handles #pragma once and passes any other pragma through as a
// single token.
func (p *Preprocessor) doPragma(hash Token) (Token, error) {
	name, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	switch name.Type {
	case PP_NEWLINE, PP_EOF:
		if err := p.warningTok(name, "Empty #pragma"); err != nil {
			return Token{}, err
		}
		return name, nil
	case PP_IDENTIFIER:
	default:
		if err := p.warningTok(name, "Illegal #pragma "+name.Text); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}

	var value []Token
	var tok Token
	for {
		if tok, err = p.sourceToken(); err != nil {
			return Token{}, err
		}
		if tok.Type == PP_NEWLINE || tok.Type == PP_EOF {
			break
		}
		if tok.Type == PP_CCOMMENT || tok.Type == PP_CPPCOMMENT || (tok.isWhite() && len(value) == 0) {
			continue
		}
		value = append(value, tok)
	}

	if name.Text == "once" && p.features.Has(FeaturePragmaOnce) {
		if path := p.source.Path(); path != "" {
			p.includes.MarkOnce(path)
		}
		return tok, nil
	}

	text := strings.TrimRight("#pragma "+name.Text+" "+TokensToString(value), " \t")
	p.untoken(tok)
	return Token{Type: PP_PRAGMA, Text: text, Loc: hash.Loc, Value: name.Text}, nil
}

// doError reports the rest of the line as an error or a warning.
func (p *Preprocessor) doError(dir Token, isError bool) (Token, error) {
	var sb strings.Builder
	sb.WriteString("#" + dir.Text + " ")
	tok, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	for tok.Type != PP_NEWLINE && tok.Type != PP_EOF {
		sb.WriteString(tok.Text)
		if tok, err = p.sourceToken(); err != nil {
			return Token{}, err
		}
	}
	msg := strings.TrimRight(sb.String(), " \t")
	if isError {
		err = p.errorTok(dir, msg)
	} else {
		err = p.warningTok(dir, msg)
	}
	if err != nil {
		return Token{}, err
	}
	return tok, nil
}
