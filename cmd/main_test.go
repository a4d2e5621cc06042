package main_test

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-specrunner/exitcodes"
)

// TestExitCodeBehavior runs the real binary against generated spec packages.
func TestExitCodeBehavior(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary and runs go test")
	}
	bin := buildBinary(t)

	testCases := []struct {
		name     string
		specs    map[string]string
		args     []string
		expected int
	}{
		{
			name: "passing specs exit with code 0",
			specs: map[string]string{
				"alpha": passingSpec,
				"beta":  passingSpec,
			},
			expected: exitcodes.Success,
		},
		{
			name: "failing spec exits with code 3",
			specs: map[string]string{
				"alpha": passingSpec,
				"beta":  failingSpec,
			},
			expected: exitcodes.TestFailure,
		},
		{
			name:     "no specs exit with code 2",
			specs:    map[string]string{"alpha": "package alpha\n"},
			expected: exitcodes.Incomplete,
		},
		{
			name:     "in-process workers",
			specs:    map[string]string{"alpha": passingSpec},
			args:     []string{"--in-process"},
			expected: exitcodes.Success,
		},
		{
			name:     "failing global setup exits with code 1",
			specs:    map[string]string{"alpha": passingSpec},
			args:     []string{"--global-setup", "exit 3"},
			expected: exitcodes.RuntimeErr,
		},
		{
			name:     "invalid config exits with code 1",
			specs:    map[string]string{"alpha": passingSpec},
			args:     []string{"--loader", "exec"},
			expected: exitcodes.RuntimeErr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := createSpecModule(t, tc.specs)
			args := append([]string{"--spec-dir", dir, "--workers", "2", "--color=false"}, tc.args...)
			require.Equal(t, tc.expected, runBinary(t, bin, args...))
		})
	}
}

func TestWorkerFatalPrintedOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary and runs worker subprocesses")
	}
	bin := buildBinary(t)
	dir := createSpecModule(t, map[string]string{"alpha": passingSpec, "beta": passingSpec})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.env"), []byte("this is not an assignment\n"), 0644))

	code, out := runBinaryOutput(t, bin, "--spec-dir", dir, "--workers", "2", "--color=false", "--helper", "bad.env")
	require.Equal(t, exitcodes.RuntimeErr, code)
	require.Equal(t, 1, strings.Count(out, "Fatal error"))
	require.NotContains(t, out, "runtime error:")
}

const passingSpec = `package spec

import "testing"

func TestAlwaysPasses(t *testing.T) {}
`

const failingSpec = `package spec

import "testing"

func TestAlwaysFails(t *testing.T) {
	t.Fatal("expected failure")
}
`

func buildBinary(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	bin := filepath.Join(t.TempDir(), "op-specrunner")

	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = wd
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, out.String())
	}
	return bin
}

// createSpecModule writes a Go module with one package per entry.
func createSpecModule(t *testing.T, specs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module specs\n\ngo 1.21\n"), 0644))
	for pkg, content := range specs {
		pkgDir := filepath.Join(dir, pkg)
		require.NoError(t, os.MkdirAll(pkgDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, pkg+"_test.go"), []byte(content), 0644))
	}
	return dir
}

func runBinary(t *testing.T, bin string, args ...string) int {
	t.Helper()
	code, _ := runBinaryOutput(t, bin, args...)
	return code
}

// runBinaryOutput returns the exit code and the combined stdout and stderr.
func runBinaryOutput(t *testing.T, bin string, args ...string) (int, string) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	t.Logf("output:\n%s", out.String())
	if err == nil {
		return 0, out.String()
	}
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "unexpected error: %v", err)
	return exitErr.ExitCode(), out.String()
}
