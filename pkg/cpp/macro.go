package cpp

import (
	"fmt"
	"sort"
	"strings"
)

type macroKind int

const (
	macroUser macroKind = iota
	macroLine           // __LINE__
	macroFile           // __FILE__
	macroCounter        // __COUNTER__
)

// Macro is a macro definition.
//
// Params is nil for an object-like macro and non-nil, possibly empty, for a
// function-like one. Tokens is the replacement list; parameters appear in it
// as PP_MACRO_ARG markers and # operands as PP_MACRO_STRINGIFY markers, both
// carrying the parameter index as Value. A ## operator is stored as a
// PP_MACRO_PASTE marker in front of its left operand, so a##b##c is stored
// as PASTE a PASTE b c.
type Macro struct {
	Name     string
	Params   []string
	Variadic bool
	Tokens   []Token
	Loc      SourceLoc

	kind macroKind
}

// NewMacro creates an object-like macro with no replacement tokens.
func NewMacro(name string) *Macro {
	return &Macro{Name: name}
}

func (m *Macro) IsFunctionLike() bool { return m.Params != nil }

func (m *Macro) NumParams() int { return len(m.Params) }

// IsBuiltin reports whether the macro is synthesized by the preprocessor.
func (m *Macro) IsBuiltin() bool { return m.kind != macroUser }

func (m *Macro) paramIndex(name string) int {
	for i, p := range m.Params {
		if p == name {
			return i
		}
	}
	return -1
}

func (m *Macro) addToken(tok Token) {
	m.Tokens = append(m.Tokens, tok)
}

// addPaste inserts a paste marker before the last token added.
func (m *Macro) addPaste(tok Token) {
	n := len(m.Tokens)
	m.Tokens = append(m.Tokens, Token{})
	copy(m.Tokens[n:], m.Tokens[n-1:n])
	m.Tokens[n-1] = tok
}

// Text renders the replacement list as it would appear in a #define.
func (m *Macro) Text() string {
	var sb strings.Builder
	for i := 0; i < len(m.Tokens); i++ {
		tok := m.Tokens[i]
		if tok.Type == PP_MACRO_PASTE {
			// Render the operands with ## between them.
			count := 2
			for j := 0; j < count && i+1 < len(m.Tokens); j++ {
				i++
				if m.Tokens[i].Type == PP_MACRO_PASTE {
					count += 2
					continue
				}
				if j > 0 {
					sb.WriteString(" ## ")
				}
				sb.WriteString(m.tokenText(m.Tokens[i]))
			}
			continue
		}
		sb.WriteString(m.tokenText(tok))
	}
	return sb.String()
}

func (m *Macro) tokenText(tok Token) string {
	switch tok.Type {
	case PP_MACRO_ARG:
		return m.Params[tok.Int()]
	case PP_MACRO_STRINGIFY:
		return "#" + m.Params[tok.Int()]
	}
	return tok.Text
}

func (m *Macro) String() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	if m.IsFunctionLike() {
		sb.WriteString("(")
		for i, p := range m.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			if m.Variadic && i == len(m.Params)-1 {
				if p == vaArgs {
					sb.WriteString("...")
				} else {
					sb.WriteString(p + "...")
				}
				continue
			}
			sb.WriteString(p)
		}
		sb.WriteString(")")
	}
	if len(m.Tokens) > 0 {
		sb.WriteString(" ")
		sb.WriteString(m.Text())
	}
	return sb.String()
}

const vaArgs = "__VA_ARGS__"

// Argument is one actual argument of a macro invocation. The raw tokens
// are used by # and ##; the expansion is computed on first substitution.
type Argument struct {
	raw       []Token
	expansion []Token
	expanded  bool
}

func (a *Argument) addToken(tok Token) {
	a.raw = append(a.raw, tok)
}

// Raw returns the unexpanded tokens.
func (a *Argument) Raw() []Token { return a.raw }

// Expansion returns the cached expansion, if computed.
func (a *Argument) Expansion() ([]Token, bool) { return a.expansion, a.expanded }

func (a *Argument) expand(p *Preprocessor) ([]Token, error) {
	if !a.expanded {
		exp, err := p.expand(a.raw)
		if err != nil {
			return nil, err
		}
		a.expansion = exp
		a.expanded = true
	}
	return a.expansion, nil
}

func (a *Argument) String() string {
	return fmt.Sprintf("Argument(raw=%q)", TokensToString(a.raw))
}

// MacroTable maps macro names to definitions.
type MacroTable struct {
	macros map[string]*Macro
}

// NewMacroTable creates an empty macro table.
func NewMacroTable() *MacroTable {
	return &MacroTable{macros: make(map[string]*Macro)}
}

// Define adds or replaces a macro.
func (t *MacroTable) Define(m *Macro) {
	t.macros[m.Name] = m
}

// Undefine removes a macro. Removing an unknown name is not an error.
func (t *MacroTable) Undefine(name string) {
	delete(t.macros, name)
}

// Lookup returns the macro named name, or nil.
func (t *MacroTable) Lookup(name string) *Macro {
	return t.macros[name]
}

// IsDefined reports whether name is a macro.
func (t *MacroTable) IsDefined(name string) bool {
	_, ok := t.macros[name]
	return ok
}

// Names returns the sorted macro names.
func (t *MacroTable) Names() []string {
	names := make([]string, 0, len(t.macros))
	for n := range t.macros {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of macros.
func (t *MacroTable) Len() int { return len(t.macros) }

// ParseCmdlineDefine splits a -D argument of the form NAME or NAME=VALUE.
// A bare NAME defines the macro as 1.
func ParseCmdlineDefine(def string) (name, value string) {
	if idx := strings.Index(def, "="); idx >= 0 {
		return def[:idx], def[idx+1:]
	}
	return def, "1"
}
