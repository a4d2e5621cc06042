// Package testlist inspects the Go test sources of a spec package.
package testlist

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/mod/modfile"
)

// ErrNoModule is returned when an import path is resolved without a go.mod.
var ErrNoModule = errors.New("could not find module name in go.mod")

// ResolvePackageDir turns a package path into a directory below workingDir.
// Relative paths ("./pkg") are joined directly; import paths are resolved against
// the module declared in workingDir/go.mod.
func ResolvePackageDir(pkgPath string, workingDir string) (string, error) {
	if pkgPath == "." || strings.HasPrefix(pkgPath, "./") || strings.HasPrefix(pkgPath, "../") || filepath.IsAbs(pkgPath) {
		if filepath.IsAbs(pkgPath) {
			return filepath.Clean(pkgPath), nil
		}
		return filepath.Join(workingDir, pkgPath), nil
	}

	moduleName, err := ModulePath(workingDir)
	if err != nil {
		return "", err
	}
	if pkgPath != moduleName && !strings.HasPrefix(pkgPath, moduleName+"/") {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
	}
	relPath := strings.TrimPrefix(strings.TrimPrefix(pkgPath, moduleName), "/")
	if relPath == "" {
		relPath = "."
	}
	return filepath.Join(workingDir, filepath.FromSlash(relPath)), nil
}

// ModulePath returns the module path declared in dir/go.mod.
func ModulePath(dir string) (string, error) {
	goModPath := filepath.Join(dir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", ErrNoModule
	}
	return modFile.Module.Mod.Path, nil
}

// TestFiles lists the _test.go files directly inside pkgDir, sorted.
func TestFiles(pkgDir string) ([]string, error) {
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		files = append(files, filepath.Join(pkgDir, entry.Name()))
	}
	slices.Sort(files)
	return files, nil
}

// HasTestFiles reports whether pkgDir contains at least one _test.go file.
func HasTestFiles(pkgDir string) bool {
	files, err := TestFiles(pkgDir)
	return err == nil && len(files) > 0
}

// FindTestFunctions parses every _test.go file in pkgDir and returns the names of
// its top-level test functions. A file that does not parse fails the whole package.
func FindTestFunctions(pkgDir string) ([]string, error) {
	files, err := TestFiles(pkgDir)
	if err != nil {
		return nil, err
	}

	var testFunctions []string
	fset := token.NewFileSet()

	for _, filePath := range files {
		f, err := parser.ParseFile(fset, filePath, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
		}

		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil {
				continue
			}
			if isTestFunc(funcDecl.Name.Name) {
				testFunctions = append(testFunctions, funcDecl.Name.Name)
			}
		}
	}

	return testFunctions, nil
}

// isTestFunc follows `go test`: TestXxx where Xxx does not start with a lower-case letter.
func isTestFunc(name string) bool {
	if name == "TestMain" || !strings.HasPrefix(name, "Test") {
		return false
	}
	rest := name[len("Test"):]
	if rest == "" {
		return true
	}
	return !(rest[0] >= 'a' && rest[0] <= 'z')
}
