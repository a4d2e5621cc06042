package testlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePackageDir(t *testing.T) {
	tests := []struct {
		name     string
		pkgPath  string
		goMod    string
		expected string
		wantErr  string
	}{
		{
			name:     "module path",
			pkgPath:  "github.com/test/module/pkg",
			goMod:    "module github.com/test/module\n\ngo 1.21\n",
			expected: "pkg",
		},
		{
			name:     "module root",
			pkgPath:  "github.com/test/module",
			goMod:    "module github.com/test/module\n\ngo 1.21\n",
			expected: ".",
		},
		{
			name:     "relative path",
			pkgPath:  "./pkg/sub",
			expected: "pkg/sub",
		},
		{
			name:    "foreign module",
			pkgPath: "github.com/other/module/pkg",
			goMod:   "module github.com/test/module\n\ngo 1.21\n",
			wantErr: "is not in module",
		},
		{
			name:    "prefix is not enough",
			pkgPath: "github.com/test/modulex/pkg",
			goMod:   "module github.com/test/module\n\ngo 1.21\n",
			wantErr: "is not in module",
		},
		{
			name:    "missing go.mod",
			pkgPath: "github.com/test/module/pkg",
			wantErr: "failed to read go.mod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.goMod != "" {
				require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte(tt.goMod), 0644))
			}

			dir, err := ResolvePackageDir(tt.pkgPath, tmpDir)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(tmpDir, tt.expected), dir)
		})
	}
}

func TestFindTestFunctions(t *testing.T) {
	pkgDir := t.TempDir()
	require.NoError(t, createTestFiles(pkgDir))

	testFuncs, err := FindTestFunctions(pkgDir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"TestNormal",
		"TestAnother",
		"TestWithMain",
		"TestWithBenchmark",
		"Test",
	}, testFuncs)
	assert.True(t, HasTestFiles(pkgDir))
}

func TestFindTestFunctionsSyntaxError(t *testing.T) {
	pkgDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "broken_test.go"), []byte("package pkg\n\nfunc TestBroken( {\n"), 0644))

	_, err := FindTestFunctions(pkgDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken_test.go")
}

func TestHasTestFiles(t *testing.T) {
	pkgDir := t.TempDir()
	assert.False(t, HasTestFiles(pkgDir))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "main.go"), []byte("package main\n"), 0644))
	assert.False(t, HasTestFiles(pkgDir))
	assert.False(t, HasTestFiles(filepath.Join(pkgDir, "missing")))
}

func createTestFiles(dir string) error {
	files := map[string]string{
		"normal_test.go": `package pkg

import "testing"

func TestNormal(t *testing.T) {}
func TestAnother(t *testing.T) {}
func helperFunction() {}
func Testlowercase(t *testing.T) {}
func Test(t *testing.T) {}
`,
		"main_test.go": `package pkg

import "testing"

func TestMain(m *testing.M) {}
func TestWithMain(t *testing.T) {}
`,
		"benchmark_test.go": `package pkg

import "testing"

type suite struct{}

func (suite) TestMethod(t *testing.T) {}
func BenchmarkSomething(b *testing.B) {}
func TestWithBenchmark(t *testing.T) {}
`,
		"not_a_test.go": `package pkg

func TestNotInTestFile() {}
`,
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}
