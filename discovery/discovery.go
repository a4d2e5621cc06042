// Package discovery resolves spec packages and helper files from configured patterns.
package discovery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-specrunner/testlist"
)

// DefaultSpecPattern selects every package with tests below the spec directory.
const DefaultSpecPattern = "./..."

// SpecPackages resolves Go-style package patterns relative to specDir into absolute
// package directories that contain _test.go files. Supported forms are "./...",
// "./dir/...", "./dir", module import paths, and globs over directories.
// The result is sorted and free of duplicates.
func SpecPackages(specDir string, patterns []string) ([]string, error) {
	root, err := filepath.Abs(specDir)
	if err != nil {
		return nil, fmt.Errorf("invalid spec dir %q: %w", specDir, err)
	}
	if len(patterns) == 0 {
		patterns = []string{DefaultSpecPattern}
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		out = append(out, dir)
	}

	for _, pattern := range patterns {
		switch {
		case pattern == "..." || strings.HasSuffix(pattern, "/..."):
			base := strings.TrimSuffix(strings.TrimSuffix(pattern, "..."), "/")
			dir, err := resolveDir(root, base)
			if err != nil {
				return nil, err
			}
			dirs, err := walkPackages(dir)
			if err != nil {
				return nil, fmt.Errorf("failed to expand %s: %w", pattern, err)
			}
			for _, d := range dirs {
				add(d)
			}
		case hasMeta(pattern):
			matches, err := filepath.Glob(joinPattern(root, pattern))
			if err != nil {
				return nil, fmt.Errorf("invalid spec pattern %q: %w", pattern, err)
			}
			for _, m := range matches {
				if !ignoredDir(filepath.Base(m)) && testlist.HasTestFiles(m) {
					add(m)
				}
			}
		default:
			dir, err := resolveDir(root, pattern)
			if err != nil {
				return nil, err
			}
			if !testlist.HasTestFiles(dir) {
				return nil, fmt.Errorf("no test files in %s", pattern)
			}
			add(dir)
		}
	}

	slices.Sort(out)
	return out, nil
}

// HelperFiles expands each glob pattern relative to specDir. Matches keep the order
// of the patterns; within one pattern they are sorted. Duplicates are dropped.
func HelperFiles(specDir string, patterns []string) ([]string, error) {
	root, err := filepath.Abs(specDir)
	if err != nil {
		return nil, fmt.Errorf("invalid spec dir %q: %w", specDir, err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(joinPattern(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid helper pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

func resolveDir(root, pattern string) (string, error) {
	if pattern == "" || pattern == "." {
		return root, nil
	}
	dir, err := testlist.ResolvePackageDir(pattern, root)
	if err != nil {
		// bare directory names are taken relative to the spec dir
		if !strings.Contains(pattern, ".") {
			return filepath.Join(root, pattern), nil
		}
		return "", fmt.Errorf("failed to resolve %s: %w", pattern, err)
	}
	return dir, nil
}

// walkPackages returns every directory below dir holding _test.go files, skipping
// the directories the go tool ignores.
func walkPackages(dir string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir {
			if ignoredDir(d.Name()) {
				return filepath.SkipDir
			}
		}
		if testlist.HasTestFiles(path) {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

func ignoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "vendor"
}

func joinPattern(root, pattern string) string {
	if filepath.IsAbs(pattern) {
		return pattern
	}
	return filepath.Join(root, pattern)
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[`)
}
