package cpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionalIfdef(t *testing.T) {
	src := `#define FOO
#ifdef FOO
foo_defined
#endif
#ifdef BAR
bar_defined
#endif
`
	got := preprocess(t, src)
	if !strings.Contains(got, "foo_defined") {
		t.Errorf("expected foo_defined in output, got: %q", got)
	}
	if strings.Contains(got, "bar_defined") {
		t.Errorf("did not expect bar_defined in output, got: %q", got)
	}
}

func TestConditionalIfndef(t *testing.T) {
	src := `#define FOO
#ifndef FOO
foo_missing
#endif
#ifndef BAR
bar_missing
#endif
`
	got := preprocess(t, src)
	if strings.Contains(got, "foo_missing") {
		t.Errorf("did not expect foo_missing in output, got: %q", got)
	}
	if !strings.Contains(got, "bar_missing") {
		t.Errorf("expected bar_missing in output, got: %q", got)
	}
}

func TestConditionalIf(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"true", "#if 1\nyes\n#endif\n", "yes"},
		{"false", "#if 0\nyes\n#endif\n", ""},
		{"macro", "#define V 3\n#if V > 2\nyes\n#endif\n", "yes"},
		{"else taken", "#if 0\nyes\n#else\nno\n#endif\n", "no"},
		{"else skipped", "#if 1\nyes\n#else\nno\n#endif\n", "yes"},
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

func TestConditionalLinesPreserved(t *testing.T) {
	got := preprocess(t, "#if 0\nint x;\n  int y;\n#endif\nz\n")
	want := "\n\n  \n\nz\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConditionalElif(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"first", "#if 1\na\n#elif 1\nb\n#else\nc\n#endif\n", "a"},
		{"second", "#if 0\na\n#elif 1\nb\n#elif 1\nc\n#else\nd\n#endif\n", "b"},
		{"else", "#if 0\na\n#elif 0\nb\n#else\nc\n#endif\n", "c"},
		{"none", "#if 0\na\n#elif 0\nb\n#endif\n", ""},
		{"not evaluated after taken branch", "#if 1\na\n#elif 1/0\nb\n#endif\n", "a"},
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

func TestConditionalNested(t *testing.T) {
	src := `#define A
#ifdef A
outer
#ifdef B
inner_b
#else
inner_not_b
#endif
#endif
`
	got := preprocess(t, src)
	for _, want := range []string{"outer", "inner_not_b"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %s in output, got: %q", want, got)
		}
	}
	if strings.Contains(got, "inner_b\n") {
		t.Errorf("did not expect inner_b in output, got: %q", got)
	}
}

func TestConditionalNestedInactive(t *testing.T) {
	src := `#if 0
#if 1
hidden
#else
also_hidden
#endif
#elif 1
shown
#endif
`
	got := strings.TrimSpace(preprocess(t, src))
	if got != "shown" {
		t.Errorf("got %q, want %q", got, "shown")
	}
}

func TestConditionalSkippedDirectives(t *testing.T) {
	// Nothing in a skipped group is executed or diagnosed.
	src := `#if 0
#define X 1
#error not reached
#include "missing.h"
#bogus directive
#if 1/0
#endif
#endif
X
`
	got, diags := preprocessDiag(t, src, PreprocessorOptions{})
	assert.Empty(t, diags.Diagnostics)
	assert.Equal(t, "X", strings.TrimSpace(got))
}

func TestConditionalErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"endif without if", "#endif\n", "#endif without #if"},
		{"else without if", "#else\n", "#else without #if"},
		{"elif without if", "#elif 1\n", "#elif without #if"},
		{"else after else", "#if 1\n#else\n#else\n#endif\n", "#else after #else"},
		{"elif after else", "#if 1\n#else\n#elif 1\n#endif\n", "#elif after #else"},
		{"unterminated", "#if 1\nx\n", "unterminated conditional directive"},
		{"ifdef without name", "#ifdef\n#endif\n", "Expected identifier, not newline"},
		{"ifdef number", "#ifdef 3\n#endif\n", "Expected identifier, not 3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, diags := preprocessDiag(t, tc.src, PreprocessorOptions{})
			require.Equal(t, 1, diags.Errors(), "diagnostics: %v", diags.Diagnostics)
			assert.Equal(t, tc.msg, diags.Diagnostics[0].Msg)
		})
	}
}

func TestConditionalUnterminatedLocation(t *testing.T) {
	_, diags := preprocessDiag(t, "x\n  #ifdef FOO\ny\n", PreprocessorOptions{})
	require.Len(t, diags.Diagnostics, 1)
	d := diags.Diagnostics[0]
	assert.Equal(t, "unterminated conditional directive", d.Msg)
	assert.Equal(t, SourceLoc{File: "test.c", Line: 2, Column: 2}, d.Loc)
}

func TestConditionalPerInput(t *testing.T) {
	// An unterminated conditional does not leak into the next input.
	pp, diags := newCollectingPreprocessor(t, PreprocessorOptions{})
	pp.AddInputString("a.c", "#if 0\n")
	pp.AddInputString("b.c", "visible\n")
	got := collect(t, pp)
	assert.Contains(t, got, "visible")
	require.Len(t, diags.Diagnostics, 1)
	assert.Equal(t, "a.c", diags.Diagnostics[0].Loc.File)
}

func TestConditionalExtraTokens(t *testing.T) {
	_, diags := preprocessDiag(t, "#ifdef X Y\n#endif\n", PreprocessorOptions{})
	require.Len(t, diags.Diagnostics, 1)
	assert.True(t, diags.Diagnostics[0].Warning)
	assert.Equal(t, "Unexpected nonwhite token Y", diags.Diagnostics[0].Msg)

	// Labels after #else and #endif are only reported on request.
	src := "#ifdef X\n#else X\n#endif X\n"
	_, diags = preprocessDiag(t, src, PreprocessorOptions{})
	assert.Empty(t, diags.Diagnostics)

	_, diags = preprocessDiag(t, src, PreprocessorOptions{Warnings: []Warning{WarnEndifLabels}})
	assert.Equal(t, 2, diags.Warnings())
}

func TestConditionalDepth(t *testing.T) {
	pp, err := NewPreprocessor(PreprocessorOptions{})
	require.NoError(t, err)
	pp.AddInputString("test.c", "#if 1\n#ifdef __LINE__\nx\n#endif\n#endif\n")
	defer pp.Close()

	assert.Equal(t, 0, pp.Depth())
	for tok, err := range pp.Tokens() {
		require.NoError(t, err)
		if tok.Text == "x" {
			assert.Equal(t, 2, pp.Depth())
		}
	}
	assert.Equal(t, 0, pp.Depth())
}

func TestStateString(t *testing.T) {
	s := newState(nil, SourceLoc{})
	assert.True(t, s.IsActive())
	assert.Equal(t, "parent=true, active=true, sawelse=false", s.String())

	s.active = false
	child := newState(s, SourceLoc{})
	assert.False(t, child.IsActive())
	assert.Equal(t, "parent=false, active=true, sawelse=false", child.String())
}
