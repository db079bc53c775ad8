package cpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evalIf reports whether #if expr selects its group.
func evalIf(t *testing.T, defines, expr string) bool {
	t.Helper()
	src := defines + "#if " + expr + "\nyes\n#else\nno\n#endif\n"
	got := strings.TrimSpace(preprocess(t, src))
	switch got {
	case "yes":
		return true
	case "no":
		return false
	}
	t.Fatalf("#if %s: unexpected output %q", expr, got)
	return false
}

func TestExpressionEvaluation(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"1", true},
		{"0", false},
		{"1+2*3 == 7", true},
		{"(1+2)*3 == 9", true},
		{"10/3 == 3", true},
		{"10%3 == 1", true},
		{"5 - 3 - 1 == 1", true},
		{"100/10/5 == 2", true},
		{"1<<4 == 16", true},
		{"256>>4 == 16", true},
		{"-1 < 0", true},
		{"~0 == -1", true},
		{"-(-3) == 3", true},
		{"+4 == 4", true},
		{"!0", true},
		{"!5", false},
		{"1 && 0", false},
		{"0 || 2", true},
		{"3 & 1", true},
		{"(5 ^ 1) == 4", true},
		{"(4 | 1) == 5", true},
		{"2 > 1 > 0", true},
		{"1 == 1 == 1", true},
		{"3 >= 3 && 2 <= 1", false},
		{"1 != 2", true},
		{"'A' == 65", true},
		{"'\\n' == 10", true},
		{"0x10 == 16", true},
		{"010 == 8", true},
		{"0b11 == 3", true},
		{"10UL == 10", true},
		{"UNDEFINED == 0", true},
		{"UNDEFINED", false},
		{"0 && 1/0", false},
		{"1 || 1/0", true},
		{"0 && (1 % 0)", false},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			if got := evalIf(t, "", tc.expr); got != tc.want {
				t.Errorf("#if %s = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestExpressionMacros(t *testing.T) {
	defines := "#define N 5\n#define TWICE(x) ((x)*2)\n#define EMPTY\n#define FOO\n"
	tests := []struct {
		expr string
		want bool
	}{
		{"N*2 == 10", true},
		{"TWICE(N) == 10", true},
		{"EMPTY 1", true},
		{"N > TWICE(3)", false},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			if got := evalIf(t, defines, tc.expr); got != tc.want {
				t.Errorf("#if %s = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestDefinedOperator(t *testing.T) {
	defines := "#define FOO\n#define ZERO 0\n"
	tests := []struct {
		expr string
		want bool
	}{
		{"defined(FOO)", true},
		{"defined FOO", true},
		{"defined ( FOO )", true},
		{"defined(BAR)", false},
		{"!defined(BAR)", true},
		{"defined(FOO) && defined(BAR)", false},
		{"defined(FOO) || defined(BAR)", true},
		{"defined(ZERO)", true},
		{"ZERO", false},
		{"defined(__LINE__)", true},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			if got := evalIf(t, defines, tc.expr); got != tc.want {
				t.Errorf("#if %s = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		msg      string
		selected bool
	}{
		{"empty", "", "#if with no expression", false},
		{"float", "1.5", "Floating point literal in expression: 1.5", false},
		{"too large", "99999999999999999999", "Integer constant is too large: 99999999999999999999", false},
		{"string", `"s"`, `Bad token in expression: "s"`, false},
		{"missing operand", "1 +", "Bad token in expression: newline", true},
		{"missing paren", "(1", "Missing ) in expression. Got newline", false},
		{"defined without name", "defined(", "defined() needs identifier, not newline", false},
		{"defined number", "defined 3", "defined() needs identifier, not 3", false},
		{"defined missing paren", "defined(X", "Missing ) in defined(). Got newline", false},
		{"missing operator", "1 2", "Missing binary operator before token 2", true},
		{"division by zero", "1/0", "Division by zero", false},
		{"modulus by zero", "1%0", "Modulus by zero", false},
		{"conditional operator", "1 ? 2 : 3", "Unexpected operator ?", false},
		// Only the faulty operation yields 0; the rest is still evaluated.
		{"division by zero or true", "1/0 || 1", "Division by zero", true},
		{"modulus by zero in sum", "(2 % 0) + 3 == 3", "Modulus by zero", true},
		{"bad operand in sum", "(1.5) + 2 == 2", "Floating point literal in expression: 1.5", true},
		{"division by zero and true", "1/0 && 1", "Division by zero", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := "#if " + tc.expr + "\nyes\n#else\nno\n#endif\n"
			got, diags := preprocessDiag(t, src, PreprocessorOptions{})
			require.Equal(t, 1, diags.Errors(), "diagnostics: %v", diags.Diagnostics)
			assert.Equal(t, tc.msg, diags.Diagnostics[0].Msg)
			want := "no"
			if tc.selected {
				want = "yes"
			}
			assert.Equal(t, want, strings.TrimSpace(got))
		})
	}
}

func TestExpressionErrorLocation(t *testing.T) {
	_, diags := preprocessDiag(t, "\n#if 1 / 0\n#endif\n", PreprocessorOptions{})
	require.Len(t, diags.Diagnostics, 1)
	assert.Equal(t, SourceLoc{File: "test.c", Line: 2, Column: 6}, diags.Diagnostics[0].Loc)
}

func TestExpressionUndefWarning(t *testing.T) {
	src := "#if FOO\n#endif\n"
	_, diags := preprocessDiag(t, src, PreprocessorOptions{})
	assert.Empty(t, diags.Diagnostics)

	_, diags = preprocessDiag(t, src, PreprocessorOptions{Warnings: []Warning{WarnUndef}})
	require.Len(t, diags.Diagnostics, 1)
	assert.True(t, diags.Diagnostics[0].Warning)
	assert.Equal(t, "Undefined token 'FOO' encountered in conditional.", diags.Diagnostics[0].Msg)

	_, diags = preprocessDiag(t, src, PreprocessorOptions{Warnings: []Warning{WarnUndef, WarnError}})
	require.Len(t, diags.Diagnostics, 1)
	assert.False(t, diags.Diagnostics[0].Warning)
}

func TestBinaryPriority(t *testing.T) {
	tests := []struct {
		op   string
		want int
	}{
		{"*", 11},
		{"+", 10},
		{"<<", 9},
		{"<=", 8},
		{"!=", 7},
		{"&", 6},
		{"^", 5},
		{"|", 4},
		{"&&", 3},
		{"||", 2},
		{"?", 1},
		{")", 0},
		{",", 0},
	}
	for _, tc := range tests {
		tok := Token{Type: PP_PUNCTUATOR, Text: tc.op}
		if got := binaryPriority(tok); got != tc.want {
			t.Errorf("binaryPriority(%q) = %d, want %d", tc.op, got, tc.want)
		}
	}
	if got := binaryPriority(Token{Type: PP_IDENTIFIER, Text: "x"}); got != 0 {
		t.Errorf("identifier priority = %d, want 0", got)
	}
}
