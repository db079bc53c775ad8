package cpp

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const eofRune rune = -1

// joinReader removes line splices and translates trigraphs. Spliced
// newlines are counted and handed back after the next real line break so
// that the line count of the output matches the input.
type joinReader struct {
	in            io.RuneReader
	trigraphs     bool
	warnTrigraphs bool
	warn          func(msg string) error

	newlines int
	flushnl  bool
	unget    [2]rune
	uptr     int
}

func newJoinReader(in io.Reader) *joinReader {
	rr, ok := in.(io.RuneReader)
	if !ok {
		rr = bufio.NewReader(in)
	}
	return &joinReader{in: rr}
}

func (j *joinReader) readRaw() (rune, error) {
	if j.uptr > 0 {
		j.uptr--
		return j.unget[j.uptr], nil
	}
	r, _, err := j.in.ReadRune()
	if err == io.EOF {
		return eofRune, nil
	}
	if err != nil {
		return eofRune, err
	}
	// CR LF and lone CR both read as a single line break.
	if r == '\r' {
		d, _, err := j.in.ReadRune()
		if err == nil && d != '\n' {
			j.unreadRaw(d)
		}
		return '\n', nil
	}
	return r, nil
}

func (j *joinReader) unreadRaw(r rune) {
	if r != eofRune {
		j.unget[j.uptr] = r
		j.uptr++
	}
}

var trigraphMap = map[rune]rune{
	'(':  '[',
	')':  ']',
	'<':  '{',
	'>':  '}',
	'=':  '#',
	'/':  '\\',
	'\'': '^',
	'!':  '|',
	'-':  '~',
}

func (j *joinReader) trigraph(raw, repl rune) (rune, error) {
	if j.trigraphs {
		if j.warnTrigraphs {
			if err := j.warning(fmt.Sprintf("trigraph ??%c converted to %c", raw, repl)); err != nil {
				return eofRune, err
			}
		}
		return repl, nil
	}
	if j.warnTrigraphs {
		if err := j.warning(fmt.Sprintf("trigraph ??%c ignored", raw)); err != nil {
			return eofRune, err
		}
	}
	j.unreadRaw(raw)
	j.unreadRaw('?')
	return '?', nil
}

func (j *joinReader) warning(msg string) error {
	if j.warn == nil {
		return nil
	}
	return j.warn(msg)
}

func (j *joinReader) readTrigraph() (rune, error) {
	c, err := j.readRaw()
	if err != nil || c != '?' || !(j.trigraphs || j.warnTrigraphs) {
		return c, err
	}
	d, err := j.readRaw()
	if err != nil {
		return eofRune, err
	}
	if d == '?' {
		e, err := j.readRaw()
		if err != nil {
			return eofRune, err
		}
		if repl, ok := trigraphMap[e]; ok {
			return j.trigraph(e, repl)
		}
		j.unreadRaw(e)
	}
	j.unreadRaw(d)
	return c, nil
}

func (j *joinReader) read() (rune, error) {
	if j.flushnl {
		if j.newlines > 0 {
			j.newlines--
			return '\n', nil
		}
		j.flushnl = false
	}
	for {
		c, err := j.readTrigraph()
		if err != nil {
			return eofRune, err
		}
		switch c {
		case '\\':
			d, err := j.readTrigraph()
			if err != nil {
				return eofRune, err
			}
			if d == '\n' {
				j.newlines++
				continue
			}
			j.unreadRaw(d)
			return c, nil
		case '\n':
			j.flushnl = true
			return c, nil
		case eofRune:
			if j.newlines > 0 {
				j.newlines--
				return '\n', nil
			}
			return c, nil
		}
		return c, nil
	}
}

// Lexer tokenizes C source code into preprocessing tokens.
type Lexer struct {
	src      *joinReader
	filename string

	line       int
	column     int
	lastColumn int
	bol        bool // at beginning of line (for # detection)
	ppvalid    bool // newlines and directives are significant
	include    bool // lexing an #include target
	digraphs   bool

	u      [2]rune
	ucount int

	// warn reports a non-fatal diagnostic at a position.
	warn func(loc SourceLoc, msg string) error
}

// NewLexer creates a new preprocessor lexer over a string.
func NewLexer(input, filename string) *Lexer {
	return newReaderLexer(strings.NewReader(input), filename)
}

func newReaderLexer(r io.Reader, filename string) *Lexer {
	l := &Lexer{
		src:      newJoinReader(r),
		filename: filename,
		line:     1,
		bol:      true,
		ppvalid:  true,
		digraphs: true,
	}
	l.src.warn = func(msg string) error {
		return l.warning(l.loc(), msg)
	}
	return l
}

// SetTrigraphs controls trigraph translation and trigraph warnings.
func (l *Lexer) SetTrigraphs(enable, warn bool) {
	l.src.trigraphs = enable
	l.src.warnTrigraphs = warn
}

// SetDigraphs controls digraph recognition.
func (l *Lexer) SetDigraphs(enable bool) {
	l.digraphs = enable
}

// AllTokens returns all tokens up to and including EOF.
func (l *Lexer) AllTokens() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == PP_EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) loc() SourceLoc {
	return SourceLoc{File: l.filename, Line: l.line, Column: l.column}
}

func (l *Lexer) warning(loc SourceLoc, msg string) error {
	if l.warn == nil {
		return nil
	}
	return l.warn(loc, msg)
}

func (l *Lexer) read() (rune, error) {
	var c rune
	if l.ucount > 0 {
		l.ucount--
		c = l.u[l.ucount]
	} else {
		var err error
		c, err = l.src.read()
		if err != nil {
			return eofRune, err
		}
	}
	switch c {
	case eofRune:
	case '\n':
		l.line++
		l.lastColumn = l.column
		l.column = 0
	default:
		l.column++
	}
	return c, nil
}

func (l *Lexer) unread(c rune) {
	if c == eofRune {
		return
	}
	if c == '\n' {
		l.line--
		l.column = l.lastColumn
	} else {
		l.column--
	}
	l.u[l.ucount] = c
	l.ucount++
}

func isLexWhitespace(c rune) bool {
	switch c {
	case ' ', '\t', '\f', '\v':
		return true
	case '\n', eofRune:
		return false
	}
	return unicode.IsSpace(c)
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c rune) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// NextToken returns the next preprocessing token.
func (l *Lexer) NextToken() (Token, error) {
	loc := l.loc()
	tok, err := l.scan()
	if err != nil {
		return Token{}, err
	}
	tok.Loc = loc
	if l.bol {
		switch tok.Type {
		case PP_WHITESPACE, PP_CCOMMENT, PP_NEWLINE:
		default:
			l.bol = false
		}
	}
	return tok, nil
}

func (l *Lexer) scan() (Token, error) {
	c, err := l.read()
	if err != nil {
		return Token{}, err
	}
	switch c {
	case eofRune:
		return newToken(PP_EOF, ""), nil
	case '\n':
		if !l.ppvalid {
			return l.scanWhitespace(c)
		}
		l.bol = true
		n := 1
		if !l.include {
			for {
				d, err := l.read()
				if err != nil {
					return Token{}, err
				}
				if d != '\n' {
					l.unread(d)
					break
				}
				n++
			}
		}
		return newToken(PP_NEWLINE, strings.Repeat("\n", n)), nil
	case '!':
		return l.cond('=', "!=", "!")
	case '#':
		if l.bol && l.ppvalid {
			return newToken(PP_HASH, "#"), nil
		}
		return l.cond('#', "##", "#")
	case '+':
		return l.cond2('+', "++", '=', "+=", "+")
	case '-':
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		switch d {
		case '-':
			return punct("--"), nil
		case '=':
			return punct("-="), nil
		case '>':
			return punct("->"), nil
		}
		l.unread(d)
		return punct("-"), nil
	case '*':
		return l.cond('=', "*=", "*")
	case '/':
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		switch d {
		case '*':
			return l.scanBlockComment()
		case '/':
			return l.scanLineComment()
		case '=':
			return punct("/="), nil
		}
		l.unread(d)
		return punct("/"), nil
	case '%':
		return l.scanPercent()
	case ':':
		if l.digraphs {
			d, err := l.read()
			if err != nil {
				return Token{}, err
			}
			if d == '>' {
				return digraph(":>", "]"), nil
			}
			l.unread(d)
		}
		return punct(":"), nil
	case '<':
		if l.include {
			return l.scanString('<', '>')
		}
		return l.scanLess()
	case '=':
		return l.cond('=', "==", "=")
	case '>':
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		switch d {
		case '=':
			return punct(">="), nil
		case '>':
			return l.cond('=', ">>=", ">>")
		}
		l.unread(d)
		return punct(">"), nil
	case '^':
		return l.cond('=', "^=", "^")
	case '|':
		return l.cond2('|', "||", '=', "|=", "|")
	case '&':
		return l.cond2('&', "&&", '=', "&=", "&")
	case '.':
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		if isDigit(d) {
			l.unread(d)
			return l.scanNumber(c)
		}
		if d == '.' {
			e, err := l.read()
			if err != nil {
				return Token{}, err
			}
			if e == '.' {
				return punct("..."), nil
			}
			l.unread(e)
		}
		l.unread(d)
		return punct("."), nil
	case '\'':
		return l.scanCharConst("'")
	case '"':
		return l.scanString('"', '"')
	}

	switch {
	case isLexWhitespace(c):
		return l.scanWhitespace(c)
	case isDigit(c):
		return l.scanNumber(c)
	case isIdentStart(c):
		return l.scanIdentifier(c)
	}
	return punct(string(c)), nil
}

func punct(text string) Token {
	if text == "##" {
		return newToken(PP_HASHHASH, text)
	}
	return newToken(PP_PUNCTUATOR, text)
}

func digraph(text, canonical string) Token {
	switch canonical {
	case "##":
		return Token{Type: PP_HASHHASH, Text: text, Value: canonical}
	}
	return Token{Type: PP_PUNCTUATOR, Text: text, Value: canonical}
}

func (l *Lexer) cond(c rune, yes, no string) (Token, error) {
	d, err := l.read()
	if err != nil {
		return Token{}, err
	}
	if d == c {
		return punct(yes), nil
	}
	l.unread(d)
	return punct(no), nil
}

func (l *Lexer) cond2(c1 rune, yes1 string, c2 rune, yes2, no string) (Token, error) {
	d, err := l.read()
	if err != nil {
		return Token{}, err
	}
	switch d {
	case c1:
		return punct(yes1), nil
	case c2:
		return punct(yes2), nil
	}
	l.unread(d)
	return punct(no), nil
}

// scanPercent handles %, %= and the digraphs %>, %: and %:%:.
func (l *Lexer) scanPercent() (Token, error) {
	d, err := l.read()
	if err != nil {
		return Token{}, err
	}
	switch {
	case d == '=':
		return punct("%="), nil
	case d == '>' && l.digraphs:
		return digraph("%>", "}"), nil
	case d == ':' && l.digraphs:
		e, err := l.read()
		if err != nil {
			return Token{}, err
		}
		if e == '%' {
			f, err := l.read()
			if err != nil {
				return Token{}, err
			}
			if f == ':' {
				return digraph("%:%:", "##"), nil
			}
			l.unread(f)
		}
		l.unread(e)
		if l.bol && l.ppvalid {
			return Token{Type: PP_HASH, Text: "%:", Value: "#"}, nil
		}
		return digraph("%:", "#"), nil
	}
	l.unread(d)
	return punct("%"), nil
}

func (l *Lexer) scanLess() (Token, error) {
	d, err := l.read()
	if err != nil {
		return Token{}, err
	}
	switch {
	case d == '=':
		return punct("<="), nil
	case d == '<':
		return l.cond('=', "<<=", "<<")
	case d == ':' && l.digraphs:
		return digraph("<:", "["), nil
	case d == '%' && l.digraphs:
		return digraph("<%", "{"), nil
	}
	l.unread(d)
	return punct("<"), nil
}

func (l *Lexer) scanWhitespace(c rune) (Token, error) {
	var text strings.Builder
	text.WriteRune(c)
	for {
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		if isLexWhitespace(d) || (d == '\n' && !l.ppvalid) {
			text.WriteRune(d)
			continue
		}
		l.unread(d)
		return newToken(PP_WHITESPACE, text.String()), nil
	}
}

func (l *Lexer) scanLineComment() (Token, error) {
	var text strings.Builder
	text.WriteString("//")
	for {
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		if d == '\n' || d == eofRune {
			l.unread(d)
			return newToken(PP_CPPCOMMENT, text.String()), nil
		}
		text.WriteRune(d)
	}
}

func (l *Lexer) scanBlockComment() (Token, error) {
	var text strings.Builder
	text.WriteString("/*")
	var d rune
	var err error
	for {
		for {
			if d, err = l.read(); err != nil {
				return Token{}, err
			}
			if d == eofRune {
				return Token{Type: PP_INVALID, Text: text.String(), Value: "Unterminated comment"}, nil
			}
			text.WriteRune(d)
			if d == '*' {
				break
			}
		}
		for {
			if d, err = l.read(); err != nil {
				return Token{}, err
			}
			if d == eofRune {
				return Token{Type: PP_INVALID, Text: text.String(), Value: "Unterminated comment"}, nil
			}
			text.WriteRune(d)
			if d != '*' {
				break
			}
		}
		if d == '/' {
			return newToken(PP_CCOMMENT, text.String()), nil
		}
	}
}

// escape reads the body of an escape sequence after the backslash. The raw
// text is appended to text and the decoded value returned.
func (l *Lexer) escape(text *strings.Builder) (rune, error) {
	loc := l.loc()
	d, err := l.read()
	if err != nil {
		return eofRune, err
	}
	switch d {
	case 'a':
		text.WriteRune(d)
		return 7, nil
	case 'b':
		text.WriteRune(d)
		return '\b', nil
	case 'f':
		text.WriteRune(d)
		return '\f', nil
	case 'n':
		text.WriteRune(d)
		return '\n', nil
	case 'r':
		text.WriteRune(d)
		return '\r', nil
	case 't':
		text.WriteRune(d)
		return '\t', nil
	case 'v':
		text.WriteRune(d)
		return '\v', nil
	case 'e':
		text.WriteRune(d)
		return 0x1b, nil
	case '\\', '"', '\'', '?':
		text.WriteRune(d)
		return d, nil
	case '0', '1', '2', '3', '4', '5', '6', '7':
		val := d - '0'
		text.WriteRune(d)
		for i := 0; i < 2; i++ {
			e, err := l.read()
			if err != nil {
				return eofRune, err
			}
			if e < '0' || e > '7' {
				l.unread(e)
				break
			}
			text.WriteRune(e)
			val = val*8 + (e - '0')
		}
		return val, nil
	case 'x', 'u', 'U':
		text.WriteRune(d)
		limit := -1
		switch d {
		case 'u':
			limit = 4
		case 'U':
			limit = 8
		}
		var val rune
		n := 0
		for limit < 0 || n < limit {
			e, err := l.read()
			if err != nil {
				return eofRune, err
			}
			if !isHexDigit(e) {
				l.unread(e)
				break
			}
			text.WriteRune(e)
			val = val*16 + hexValue(e)
			n++
		}
		if n == 0 {
			if err := l.warning(loc, fmt.Sprintf("\\%c used with no following hex digits", d)); err != nil {
				return eofRune, err
			}
		}
		return val, nil
	case '\n', eofRune:
		l.unread(d)
		return '\\', nil
	}
	text.WriteRune(d)
	if err := l.warning(loc, fmt.Sprintf("Unnecessary escape character %c", d)); err != nil {
		return eofRune, err
	}
	return d, nil
}

func hexValue(c rune) rune {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}

// scanCharConst lexes a character constant; prefix is the opening text,
// including any encoding prefix.
func (l *Lexer) scanCharConst(prefix string) (Token, error) {
	var text strings.Builder
	text.WriteString(prefix)
	var chars []rune
	for {
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		switch d {
		case '\'':
			text.WriteRune(d)
			if len(chars) == 0 {
				return Token{Type: PP_INVALID, Text: text.String(), Value: "Empty character literal"}, nil
			}
			var val int64
			for _, c := range chars {
				val = val<<8 | int64(c)
			}
			return Token{Type: PP_CHAR_CONST, Text: text.String(), Value: val}, nil
		case '\n', eofRune:
			l.unread(d)
			return Token{Type: PP_INVALID, Text: text.String(), Value: "Unterminated character literal"}, nil
		case '\\':
			text.WriteRune(d)
			v, err := l.escape(&text)
			if err != nil {
				return Token{}, err
			}
			chars = append(chars, v)
		default:
			text.WriteRune(d)
			chars = append(chars, d)
		}
	}
}

// scanString lexes a string literal or, with open '<', a header name.
func (l *Lexer) scanString(open, close rune) (Token, error) {
	return l.scanPrefixedString(string(open), close)
}

func (l *Lexer) scanPrefixedString(prefix string, close rune) (Token, error) {
	var text, value strings.Builder
	text.WriteString(prefix)
	for {
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		switch {
		case d == close:
			text.WriteRune(d)
			if close == '>' {
				return Token{Type: PP_HEADER_NAME, Text: text.String(), Value: value.String()}, nil
			}
			return Token{Type: PP_STRING, Text: text.String(), Value: value.String()}, nil
		case d == '\n' || d == eofRune:
			l.unread(d)
			return Token{Type: PP_INVALID, Text: text.String(), Value: "Unterminated string literal"}, nil
		case d == '\\' && !l.include:
			text.WriteRune(d)
			v, err := l.escape(&text)
			if err != nil {
				return Token{}, err
			}
			value.WriteRune(v)
		default:
			text.WriteRune(d)
			value.WriteRune(d)
		}
	}
}

func (l *Lexer) scanIdentifier(c rune) (Token, error) {
	var text strings.Builder
	text.WriteRune(c)
	for {
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		if !isIdentPart(d) {
			l.unread(d)
			break
		}
		text.WriteRune(d)
	}
	s := text.String()
	switch s {
	case "L", "u", "U", "u8":
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		switch d {
		case '"':
			return l.scanPrefixedString(s+`"`, '"')
		case '\'':
			if s != "u8" {
				return l.scanCharConst(s + "'")
			}
		}
		l.unread(d)
	}
	return newToken(PP_IDENTIFIER, s), nil
}

// scanDigits appends digits accepted by ok to both builders.
func (l *Lexer) scanDigits(text, digits *strings.Builder, ok func(rune) bool) (rune, error) {
	for {
		d, err := l.read()
		if err != nil {
			return eofRune, err
		}
		if !ok(d) {
			return d, nil
		}
		text.WriteRune(d)
		digits.WriteRune(d)
	}
}

// scanNumber lexes a numeric literal whose first character is c.
func (l *Lexer) scanNumber(c rune) (Token, error) {
	var text, integer, fraction, exponent strings.Builder
	text.WriteRune(c)
	v := NumericValue{Base: 10}

	var d rune
	var err error
	switch {
	case c == '.':
		v.HasFraction = true
		if d, err = l.scanDigits(&text, &fraction, isDigit); err != nil {
			return Token{}, err
		}
	case c == '0':
		if d, err = l.read(); err != nil {
			return Token{}, err
		}
		switch d {
		case 'x', 'X':
			v.Base = 16
			text.WriteRune(d)
			if d, err = l.scanDigits(&text, &integer, isHexDigit); err != nil {
				return Token{}, err
			}
			if d == '.' {
				v.HasFraction = true
				text.WriteRune(d)
				if d, err = l.scanDigits(&text, &fraction, isHexDigit); err != nil {
					return Token{}, err
				}
			}
		case 'b', 'B':
			v.Base = 2
			text.WriteRune(d)
			if d, err = l.scanDigits(&text, &integer, func(r rune) bool { return r == '0' || r == '1' }); err != nil {
				return Token{}, err
			}
		default:
			l.unread(d)
			if d, err = l.scanDigits(&text, &integer, isDigit); err != nil {
				return Token{}, err
			}
			if d == '.' || d == 'e' || d == 'E' {
				s := integer.String()
				integer.Reset()
				integer.WriteString("0" + s)
			} else {
				v.Base = 8
				if strings.ContainsAny(integer.String(), "89") {
					l.unread(d)
					return l.invalidNumber(&text, "Invalid digit in octal constant")
				}
			}
			if d == '.' {
				v.HasFraction = true
				text.WriteRune(d)
				if d, err = l.scanDigits(&text, &fraction, isDigit); err != nil {
					return Token{}, err
				}
			}
		}
	default:
		integer.WriteRune(c)
		if d, err = l.scanDigits(&text, &integer, isDigit); err != nil {
			return Token{}, err
		}
		if d == '.' {
			v.HasFraction = true
			text.WriteRune(d)
			if d, err = l.scanDigits(&text, &fraction, isDigit); err != nil {
				return Token{}, err
			}
		}
	}

	expChar := d == 'e' || d == 'E'
	if v.Base == 16 {
		expChar = d == 'p' || d == 'P'
	}
	if expChar && v.Base != 8 && v.Base != 2 {
		v.HasExponent = true
		text.WriteRune(d)
		if d, err = l.read(); err != nil {
			return Token{}, err
		}
		if d == '+' || d == '-' {
			text.WriteRune(d)
			if d == '-' {
				exponent.WriteRune(d)
			}
			if d, err = l.read(); err != nil {
				return Token{}, err
			}
		}
		if !isDigit(d) {
			l.unread(d)
			return l.invalidNumber(&text, "Exponent has no digits")
		}
		text.WriteRune(d)
		exponent.WriteRune(d)
		if d, err = l.scanDigits(&text, &exponent, isDigit); err != nil {
			return Token{}, err
		}
	}

	v.Integer = integer.String()
	v.Fraction = fraction.String()
	v.Exponent = exponent.String()
	return l.scanNumberSuffix(d, &text, v)
}

func (l *Lexer) scanNumberSuffix(d rune, text *strings.Builder, v NumericValue) (Token, error) {
	var err error
	for {
		switch d {
		case 'u', 'U':
			if v.Flags&NumUnsigned != 0 {
				return l.invalidSuffix(d, text)
			}
			v.Flags |= NumUnsigned
		case 'l', 'L':
			if v.Flags&numSizeMask != 0 {
				return l.invalidSuffix(d, text)
			}
			text.WriteRune(d)
			e, err := l.read()
			if err != nil {
				return Token{}, err
			}
			if e == d {
				text.WriteRune(e)
				v.Flags |= NumLongLong
			} else {
				l.unread(e)
				v.Flags |= NumLong
			}
			if d, err = l.read(); err != nil {
				return Token{}, err
			}
			continue
		case 'f', 'F':
			if v.Flags&numSizeMask != 0 {
				return l.invalidSuffix(d, text)
			}
			v.Flags |= NumFloat
		case 'd', 'D':
			if v.Flags&numSizeMask != 0 {
				return l.invalidSuffix(d, text)
			}
			v.Flags |= NumDouble
		default:
			if isIdentPart(d) {
				return l.invalidSuffix(d, text)
			}
			l.unread(d)
			return Token{Type: PP_NUMBER, Text: text.String(), Value: v}, nil
		}
		text.WriteRune(d)
		if d, err = l.read(); err != nil {
			return Token{}, err
		}
	}
}

func (l *Lexer) invalidSuffix(d rune, text *strings.Builder) (Token, error) {
	l.unread(d)
	return l.invalidNumber(text, fmt.Sprintf("Invalid suffix \"%c\" on numeric constant", d))
}

// invalidNumber consumes the rest of the preprocessing number into an
// INVALID token.
func (l *Lexer) invalidNumber(text *strings.Builder, reason string) (Token, error) {
	for {
		d, err := l.read()
		if err != nil {
			return Token{}, err
		}
		if !isIdentPart(d) && d != '.' {
			l.unread(d)
			return Token{Type: PP_INVALID, Text: text.String(), Value: reason}, nil
		}
		text.WriteRune(d)
	}
}
