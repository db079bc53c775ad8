package cpp

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type goldenCase struct {
	Name     string   `yaml:"name"`
	Input    string   `yaml:"input"`
	Want     string   `yaml:"want"`
	Defines  []string `yaml:"defines"`
	Features []string `yaml:"features"`
	Errors   []string `yaml:"errors"`
}

type goldenFile struct {
	Cases []goldenCase `yaml:"cases"`
}

// normalizeOutput collapses whitespace runs and drops blank lines.
func normalizeOutput(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			lines = append(lines, strings.Join(f, " "))
		}
	}
	return strings.Join(lines, "\n")
}

func TestGolden(t *testing.T) {
	fsys := os.DirFS("testdata")
	files, err := doublestar.Glob(fsys, "**/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		data, err := os.ReadFile(path.Join("testdata", file))
		require.NoError(t, err)
		var golden goldenFile
		require.NoError(t, yaml.Unmarshal(data, &golden), file)

		for _, tc := range golden.Cases {
			t.Run(strings.TrimSuffix(file, ".yaml")+"/"+tc.Name, func(t *testing.T) {
				opts := PreprocessorOptions{Defines: tc.Defines}
				for _, name := range tc.Features {
					f, err := ParseFeature(name)
					require.NoError(t, err)
					opts.Features = append(opts.Features, f)
				}
				got, diags := preprocessDiag(t, tc.Input, opts)

				var msgs []string
				for _, d := range diags.Diagnostics {
					msgs = append(msgs, d.Msg)
				}
				assert.Equal(t, tc.Errors, msgs)
				assert.Equal(t, normalizeOutput(tc.Want), normalizeOutput(got))
			})
		}
	}
}
