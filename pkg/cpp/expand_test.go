package cpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandObjectMacro(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"simple", "#define VALUE 123\nint x = VALUE;", "int x = 123;"},
		{"chained", "#define A B\n#define B 7\nA", "7"},
		{"empty", "#define EMPTY\n[EMPTY]", "[]"},
		{"self reference", "#define A A\nA", "A"},
		{"mutual reference", "#define a b\n#define b a\na b", "a b"},
		{"body whitespace", "#define E  1   +   2\nE", "1 + 2"},
		{"undef", "#define X 1\n#undef X\nX", "X"},
		{"expands to function name", "#define f(x) [x]\n#define g f\ng(2)", "[2]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := strings.TrimSpace(preprocess(t, tc.src))
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExpandFunctionMacro(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"nested call", "#define ADD(x,y) x+y\nADD(1,ADD(2,3))", "1+2+3"},
		{"argument is macro", "#define EXPAND(x) x\n#define A 42\nEXPAND(A)", "42"},
		{"no arguments", "#define Z() 0\nZ()", "0"},
		{"nested parens", "#define F(x) [x]\nF((a,b))", "[(a,b)]"},
		{"arguments over lines", "#define F(x) [x]\nF(\n1\n)", "[1]"},
		{"argument whitespace", "#define F(x) [x]\nF(  a   +  b  )", "[a + b]"},
		{"space before paren", "#define F(x) [x]\nF  (1)", "[1]"},
		{"not invoked", "#define F(x) x\nF + 1", "F + 1"},
		{"not invoked at end", "#define F(x) x\nF", "F"},
		{"empty argument", "#define F(x) [x]\nF()", "[]"},
		{"argument used twice", "#define TWICE(x) x x\nTWICE(a)", "a a"},
		{"recursive in argument", "#define F(x) (x)\nF(F(1))", "((1))"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := strings.TrimSpace(preprocess(t, tc.src))
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStringification(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"identifier", "#define S(x) #x\nS(hello)", `"hello"`},
		{"not expanded", "#define S(x) #x\n#define A a\nS(A)", `"A"`},
		{"expanded through helper", "#define S(x) #x\n#define S2(x) S(x)\n#define A a\nS2(A)", `"a"`},
		{"whitespace collapsed", "#define S(x) #x\nS(  a   +  b  )", `"a + b"`},
		{"string escaped", "#define S(x) #x\nS(\"x\\n\")", `"\"x\\n\""`},
		{"empty", "#define S(x) #x\nS()", `""`},
		{"hash in object macro", "#define H # x\nH", "# x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := strings.TrimSpace(preprocess(t, tc.src))
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTokenPasting(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"two operands", "#define CAT(a,b) a##b\nCAT(x,y)", "xy"},
		{"three operands", "#define CAT3(a,b,c) a##b##c\nCAT3(x,y,z)", "xyz"},
		{"spaced operator", "#define CAT(a,b) a ## b\nCAT(x,y)", "xy"},
		{"literal operand", "#define VAR(n) var_##n\nVAR(1)", "var_1"},
		{"empty left", "#define CAT(a,b) a##b\nCAT(,x)", "x"},
		{"empty right", "#define CAT(a,b) a##b\nCAT(x,)", "x"},
		{"result rescanned", "#define CAT(a,b) a##b\n#define one_two good\nCAT(one_,two)", "good"},
		{"arguments not expanded", "#define _CONCAT(a,b) a##b\n#define N 5\n_CONCAT(x,N)", "xN"},
		{"indirect concat", "#define _CONCAT(a,b) a##b\n#define CONCAT(a,b) _CONCAT(a,b)\n#define N 5\nCONCAT(x,N)", "x5"},
		{"operator", "#define OP(a,b) a##b\nOP(+,=)", "+="},
		{"number", "#define NUM(a,b) a##b\nNUM(12,34)", "1234"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := strings.TrimSpace(preprocess(t, tc.src))
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTokenPastingSingleToken(t *testing.T) {
	pp, err := NewPreprocessor(PreprocessorOptions{})
	require.NoError(t, err)
	pp.AddInputString("test.c", "#define OP(a,b) a##b\nOP(<<,=)")

	var toks []Token
	for tok, err := range pp.Tokens() {
		require.NoError(t, err)
		if tok.Type != PP_NEWLINE && tok.Type != PP_WHITESPACE {
			toks = append(toks, tok)
		}
	}
	require.Len(t, toks, 1)
	assert.Equal(t, "<<=", toks[0].Text)
	assert.True(t, toks[0].Expanded)
}

func TestVariadicMacros(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"one argument", "#define V(...) f(__VA_ARGS__)\nV(a)", "f(a)"},
		{"two arguments", "#define V(...) f(__VA_ARGS__)\nV(a,b)", "f(a,b)"},
		{"spaced arguments", "#define V(...) f(__VA_ARGS__)\nV(a, b)", "f(a, b)"},
		{"no arguments", "#define V(...) f(__VA_ARGS__)\nV()", "f()"},
		{"named", "#define P(fmt, args...) printf(fmt, args)\nP(\"%d\", 1, 2)", `printf("%d", 1, 2)`},
		{"missing variadic", "#define L(fmt, ...) log(fmt)\nL(x)", "log(x)"},
		{"comma elided", "#define E(fmt, ...) g(fmt, ## __VA_ARGS__)\nE(x)", "g(x)"},
		{"comma kept", "#define E(fmt, ...) g(fmt, ## __VA_ARGS__)\nE(x, 1)", "g(x,1)"},
		{"stringified", "#define S(...) #__VA_ARGS__\nS(a, b)", `"a, b"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := strings.TrimSpace(preprocess(t, tc.src))
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRecursiveExpansionPrevention(t *testing.T) {
	src := `#define foo foo bar
#define bar foo
foo
bar
`
	got := preprocess(t, src)
	want := "\n\nfoo foo\nfoo bar\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSelfReferenceInArguments(t *testing.T) {
	src := `#define x 3
#define f(a) f(x * (a))
#undef x
#define x 2
#define z z[0]
f(y+1) + f(f(z))
`
	got := strings.TrimSpace(preprocess(t, src))
	assert.Equal(t, "f(2 * (y+1)) + f(2 * (f(2 * (z[0]))))", got)
}

func TestExpansionKeepsLines(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"name then newline at end", "#define foo() bar\nfoo ()\nfoo\n", "\nbar\nfoo\n"},
		{"name then space at end", "#define foo() bar\nfoo ", "\nfoo "},
		{"arguments over lines", "#define F(x) x\nF(\n1\n)\n__LINE__\n", "\n1\n\n\n5\n"},
		{"paren on next line", "#define F(x) [x]\nF\n(1)\nnext\n", "\n[1]\n\nnext\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, preprocess(t, tc.src))
		})
	}

	out, diags := preprocessDiag(t, "#define F(a,b) a\nF(1\n)\nx\n", PreprocessorOptions{})
	require.Equal(t, 1, diags.Errors())
	assert.Equal(t, "\nF\n\nx\n", out)
}

func TestDirectivesInArguments(t *testing.T) {
	got := preprocess(t, "#define E(x) x\nE(\n#define Q 3\n Q)\nQ\n")
	assert.Equal(t, "\n3\n\n\n3\n", got)

	got = preprocess(t, "#define F(x) [x]\nF(a\n#ifdef NOPE\nb\n#else\nc\n#endif\n)\n")
	assert.Equal(t, "\n[a c]"+strings.Repeat("\n", 7), got)

	out, diags := preprocessDiag(t, "#define F(x) x\nF(\n#include \"h.h\"\n1)\n", PreprocessorOptions{})
	require.Equal(t, 1, diags.Errors(), "diagnostics: %v", diags.Diagnostics)
	assert.Equal(t, "#include may not be used inside macro arguments", diags.Diagnostics[0].Msg)
	assert.Equal(t, "\n1\n\n\n", out)
}

func TestBuiltinMacros(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"line", "__LINE__\n\n__LINE__\n", "1\n\n3\n"},
		{"file", "__FILE__\n", "\"test.c\"\n"},
		{"counter", "__COUNTER__ __COUNTER__ __COUNTER__\n", "0 1 2\n"},
		{"line in macro", "#define L __LINE__\n\nL\n", "\n\n3\n"},
		{"line after #line", "#line 100\n__LINE__\n", "\n100\n"},
		{"file after #line", "#line 7 \"other.c\"\n__FILE__ __LINE__\n", "\n\"other.c\" 7\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := preprocess(t, tc.src)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMacroDefinitionText(t *testing.T) {
	tests := []struct {
		src  string
		name string
		want string
	}{
		{"#define A 1 + 2", "A", "A 1 + 2"},
		{"#define EMPTY", "EMPTY", "EMPTY"},
		{"#define F(x,y) x+y", "F", "F(x, y) x+y"},
		{"#define S(x) #x", "S", "S(x) #x"},
		{"#define CAT3(a,b,c) a##b##c", "CAT3", "CAT3(a, b, c) a ## b ## c"},
		{"#define V(...) f(__VA_ARGS__)", "V", "V(...) f(__VA_ARGS__)"},
		{"#define P(fmt, args...) printf(fmt, args)", "P", "P(fmt, args...) printf(fmt, args)"},
	}
	for _, tc := range tests {
		pp, err := NewPreprocessor(PreprocessorOptions{})
		require.NoError(t, err)
		_, err = pp.PreprocessString(tc.src+"\n", "test.c")
		require.NoError(t, err)
		m := pp.Macro(tc.name)
		require.NotNil(t, m, "%s not defined", tc.name)
		assert.Equal(t, tc.want, m.String())
		assert.False(t, m.IsBuiltin())
	}
}

func TestMacroParameters(t *testing.T) {
	pp, err := NewPreprocessor(PreprocessorOptions{})
	require.NoError(t, err)
	_, err = pp.PreprocessString("#define OBJ (x)\n#define FN(x) (x)\n#define VA(a, ...) a\n", "test.c")
	require.NoError(t, err)

	obj := pp.Macro("OBJ")
	assert.False(t, obj.IsFunctionLike())
	assert.Equal(t, 0, obj.NumParams())

	fn := pp.Macro("FN")
	assert.True(t, fn.IsFunctionLike())
	assert.Equal(t, []string{"x"}, fn.Params)
	require.Len(t, fn.Tokens, 3)
	assert.Equal(t, PP_MACRO_ARG, fn.Tokens[1].Type)
	assert.Equal(t, 0, fn.Tokens[1].Int())

	va := pp.Macro("VA")
	assert.True(t, va.Variadic)
	assert.Equal(t, []string{"a", "__VA_ARGS__"}, va.Params)
}

func TestExpanderErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"too few args", "#define F(a,b) a\nF(1)\n", "macro F has 2 parameters but given 1 args"},
		{"too many args", "#define F(a) a\nF(1,2)\n", "macro F has 1 parameters but given 2 args"},
		{"eof in args", "#define F(x) x\nF(1", "EOF in macro args"},
		{"paste at start", "#define F(x) ## x\n", "'##' cannot appear at either end of a macro expansion"},
		{"paste at end", "#define F(x) x ##\n", "'##' cannot appear at either end of a macro expansion"},
		{"duplicate parameter", "#define F(x,x) x\n", "Duplicate macro parameter x"},
		{"unterminated parameters", "#define F(x\n", "Unterminated macro parameter list"},
		{"missing comma", "#define F(x y) x\n", "Expected ',' or ')' in macro parameters, not y"},
		{"ellipsis not last", "#define F(..., x) x\n", "ellipsis must be on last argument"},
		{"bad parameter", "#define F(1) x\n", "error in macro parameters: 1"},
		{"redefine defined", "#define defined 1\n", "Cannot redefine name 'defined'"},
		{"not an identifier", "#define 3 x\n", "Expected identifier, not 3"},
		{"unterminated in directive", "#define F(x) x\n#if F(1\n#endif\n", "Unterminated argument list invoking macro F"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, diags := preprocessDiag(t, tc.src, PreprocessorOptions{})
			require.Equal(t, 1, diags.Errors(), "diagnostics: %v", diags.Diagnostics)
			assert.Equal(t, tc.msg, diags.Diagnostics[0].Msg)
		})
	}
}

func TestExpanderErrorWithoutListener(t *testing.T) {
	pp, err := NewPreprocessor(PreprocessorOptions{})
	require.NoError(t, err)
	_, err = pp.PreprocessString("#define F(a,b) a\nF(1)\n", "test.c")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "macro F has 2 parameters but given 1 args", perr.Msg)
	assert.Equal(t, SourceLoc{File: "test.c", Line: 2, Column: 0}, perr.Loc)
	assert.False(t, perr.Warning)
}

func TestMacroRedefinition(t *testing.T) {
	_, diags := preprocessDiag(t, "#define A 1\n#define A 1\n#define A  1\n", PreprocessorOptions{})
	assert.Empty(t, diags.Diagnostics)

	out, diags := preprocessDiag(t, "#define A 1\n#define A 2\nA\n", PreprocessorOptions{})
	require.Len(t, diags.Diagnostics, 1)
	assert.True(t, diags.Diagnostics[0].Warning)
	assert.Equal(t, `"A" redefined`, diags.Diagnostics[0].Msg)
	assert.Equal(t, "\n\n2\n", out)
}

func TestCommandLineDefine(t *testing.T) {
	pp, err := NewPreprocessor(PreprocessorOptions{})
	require.NoError(t, err)
	require.NoError(t, pp.Define("MAX(a,b)", "((a)>(b)?(a):(b))"))
	require.NoError(t, pp.DefineName("ONE"))

	got, err := pp.PreprocessString("MAX(1,2) ONE\n", "test.c")
	require.NoError(t, err)
	assert.Equal(t, "((1)>(2)?(1):(2)) 1\n", got)

	m := pp.Macro("MAX")
	require.NotNil(t, m)
	assert.Equal(t, "<command-line>", m.Loc.File)
}

func TestParseCmdlineDefine(t *testing.T) {
	tests := []struct {
		def   string
		name  string
		value string
	}{
		{"FOO", "FOO", "1"},
		{"FOO=bar", "FOO", "bar"},
		{"FOO=", "FOO", ""},
		{"F(x)=x+1", "F(x)", "x+1"},
		{"A=b=c", "A", "b=c"},
	}
	for _, tc := range tests {
		name, value := ParseCmdlineDefine(tc.def)
		if name != tc.name || value != tc.value {
			t.Errorf("ParseCmdlineDefine(%q) = %q, %q, want %q, %q", tc.def, name, value, tc.name, tc.value)
		}
	}
}
