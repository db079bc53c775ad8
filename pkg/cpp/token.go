// Package cpp implements a standalone C preprocessor.
package cpp

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a preprocessing token.
type TokenType int

const (
	PP_EOF TokenType = iota
	PP_INVALID        // lexing error; Value holds the reason
	PP_IDENTIFIER
	PP_NUMBER         // Value is a NumericValue
	PP_CHAR_CONST     // Value is the character code as int64
	PP_STRING         // Value is the unescaped string
	PP_HEADER_NAME    // <file> after #include
	PP_PUNCTUATOR
	PP_HASH           // # at line start (directive marker)
	PP_HASHHASH       // ## (token pasting)
	PP_NEWLINE        // significant for directive boundaries
	PP_WHITESPACE     // preserved for output fidelity
	PP_CCOMMENT       // /* ... */
	PP_CPPCOMMENT     // // ...
	PP_LINE_MARKER    // synthetic # N "file" marker
	PP_PRAGMA         // passed-through #pragma line
	PP_MACRO_ARG      // replacement-list marker: substitute argument Value
	PP_MACRO_STRINGIFY
	PP_MACRO_PASTE
)

var tokenTypeNames = [...]string{
	PP_EOF:             "EOF",
	PP_INVALID:         "INVALID",
	PP_IDENTIFIER:      "IDENTIFIER",
	PP_NUMBER:          "NUMBER",
	PP_CHAR_CONST:      "CHAR_CONST",
	PP_STRING:          "STRING",
	PP_HEADER_NAME:     "HEADER_NAME",
	PP_PUNCTUATOR:      "PUNCTUATOR",
	PP_HASH:            "HASH",
	PP_HASHHASH:        "HASHHASH",
	PP_NEWLINE:         "NEWLINE",
	PP_WHITESPACE:      "WHITESPACE",
	PP_CCOMMENT:        "CCOMMENT",
	PP_CPPCOMMENT:      "CPPCOMMENT",
	PP_LINE_MARKER:     "LINE_MARKER",
	PP_PRAGMA:          "PRAGMA",
	PP_MACRO_ARG:       "MACRO_ARG",
	PP_MACRO_STRINGIFY: "MACRO_STRINGIFY",
	PP_MACRO_PASTE:     "MACRO_PASTE",
}

func (t TokenType) String() string {
	if t < 0 || int(t) >= len(tokenTypeNames) {
		return "UNKNOWN"
	}
	return tokenTypeNames[t]
}

// SourceLoc represents a position in the source file.
// Lines are 1-based, columns 0-based.
type SourceLoc struct {
	File   string
	Line   int
	Column int
}

func (l SourceLoc) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Token represents a preprocessing token.
//
// Tokens are passed by value, so a token flowing through several sources
// never aliases another. Expanded and Stringized are set by the expansion
// pipeline for diagnostics. NoExpand marks a name that must not be
// replaced again on any later rescan.
type Token struct {
	Type       TokenType
	Text       string
	Loc        SourceLoc
	Value      any
	Expanded   bool // produced by a macro expansion
	Stringized bool // produced by the # operator
	NoExpand   bool // names a macro that was expanding when it was read
}

// Punct returns the canonical spelling of a punctuator, resolving digraphs.
func (t Token) Punct() string {
	if s, ok := t.Value.(string); ok && t.Type == PP_PUNCTUATOR {
		return s
	}
	return t.Text
}

// Is reports whether t is the punctuator p.
func (t Token) Is(p string) bool {
	return t.Type == PP_PUNCTUATOR && t.Punct() == p
}

// Int returns the integer payload of a marker or synthesized token.
func (t Token) Int() int {
	if v, ok := t.Value.(int); ok {
		return v
	}
	return -1
}

func (t Token) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s@%d,%d]", t.Type, t.Loc.Line, t.Loc.Column)
	switch t.Type {
	case PP_MACRO_ARG, PP_MACRO_STRINGIFY:
		fmt.Fprintf(&sb, ":%d", t.Int())
	case PP_INVALID:
		fmt.Fprintf(&sb, ":%q (%v)", t.Text, t.Value)
	default:
		if t.Text != "" {
			fmt.Fprintf(&sb, ":%q", t.Text)
		}
	}
	return sb.String()
}

func (t Token) isWhite() bool {
	switch t.Type {
	case PP_WHITESPACE, PP_CCOMMENT, PP_CPPCOMMENT:
		return true
	}
	return false
}

func (t Token) withLoc(loc SourceLoc) Token {
	t.Loc = loc
	return t
}

func newToken(typ TokenType, text string) Token {
	return Token{Type: typ, Text: text}
}

func eofToken() Token {
	return Token{Type: PP_EOF, Loc: SourceLoc{Line: -1, Column: -1}}
}

func spaceToken() Token {
	return Token{Type: PP_WHITESPACE, Text: " "}
}

func intToken(n int) Token {
	s := fmt.Sprint(n)
	return Token{Type: PP_NUMBER, Text: s, Value: NumericValue{Base: 10, Integer: s}}
}

// TokensToString concatenates token texts.
func TokensToString(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// IsIdentifier reports whether s is a valid preprocessor identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if !isIdentPart(r) {
			return false
		}
	}
	return true
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
