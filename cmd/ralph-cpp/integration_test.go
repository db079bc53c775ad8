package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// IntegrationTestCase represents a single integration test case
type IntegrationTestCase struct {
	Name      string   `yaml:"name"`
	Input     string   `yaml:"input"`
	Args      []string `yaml:"args"`
	Expect    []string `yaml:"expect"`     // Strings that must appear in output
	ExpectNot []string `yaml:"expect_not"` // Strings that must NOT appear in output
	Skip      string   `yaml:"skip,omitempty"`
}

// IntegrationTestFile represents the integration.yaml file structure
type IntegrationTestFile struct {
	Tests []IntegrationTestCase `yaml:"tests"`
}

func loadIntegrationTests(t *testing.T) []IntegrationTestCase {
	t.Helper()
	data, err := os.ReadFile("testdata/integration.yaml")
	if err != nil {
		t.Fatalf("failed to read integration.yaml: %v", err)
	}
	var testFile IntegrationTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse integration.yaml: %v", err)
	}
	return testFile.Tests
}

// findSystemCpp looks for a C compiler usable as cc -E.
func findSystemCpp() (string, bool) {
	if path := os.Getenv("SYSTEM_CC"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	for _, name := range []string{"cc", "gcc", "clang"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// runRalphCpp preprocesses input without line markers.
func runRalphCpp(t *testing.T, input string, args []string) string {
	t.Helper()
	testFile := filepath.Join(t.TempDir(), "test.c")
	if err := os.WriteFile(testFile, []byte(input), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	out, errOut, err := execute(t, append(append([]string{"-P"}, args...), testFile)...)
	if err != nil {
		t.Fatalf("ralph-cpp failed: %v\nStderr: %s", err, errOut)
	}
	return out
}

// normalizeOutput collapses whitespace runs and drops blank lines.
func normalizeOutput(s string) string {
	var normalized []string
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		normalized = append(normalized, strings.Join(fields, " "))
	}
	return strings.Join(normalized, "\n")
}

// TestIntegrationExpectations checks the expected fragments of each case.
func TestIntegrationExpectations(t *testing.T) {
	for _, tc := range loadIntegrationTests(t) {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			got := normalizeOutput(runRalphCpp(t, tc.Input, tc.Args))
			for _, want := range tc.Expect {
				if !strings.Contains(got, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, got)
				}
			}
			for _, unwanted := range tc.ExpectNot {
				if strings.Contains(got, unwanted) {
					t.Errorf("expected output not to contain %q, got:\n%s", unwanted, got)
				}
			}
		})
	}
}

// TestIntegrationSystemCppEquivalence compares ralph-cpp output with cc -E -P
func TestIntegrationSystemCppEquivalence(t *testing.T) {
	ccPath, found := findSystemCpp()
	if !found {
		t.Skip("no system C compiler found; set SYSTEM_CC to enable")
	}

	for _, tc := range loadIntegrationTests(t) {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			testFile := filepath.Join(t.TempDir(), "test.c")
			if err := os.WriteFile(testFile, []byte(tc.Input), 0o644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}
			cmd := exec.Command(ccPath, append(append([]string{"-E", "-P"}, tc.Args...), testFile)...)
			ccOut, err := cmd.Output()
			if err != nil {
				t.Skipf("system preprocessor failed: %v", err)
			}

			ccNorm := normalizeOutput(string(ccOut))
			ralphNorm := normalizeOutput(runRalphCpp(t, tc.Input, tc.Args))
			if ccNorm != ralphNorm {
				t.Errorf("Output mismatch\n--- cc -E ---\n%s\n--- ralph-cpp ---\n%s", ccNorm, ralphNorm)
			}
		})
	}
}
