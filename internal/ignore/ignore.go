// Package ignore merges and applies repository ignore patterns.
//
// Patterns come from two places in combination, never as overrides: the
// profile entry's ignore_patterns list and an optional .repomixignore file
// at the repository root. Application is set-based deletion on a scratch
// copy: the flattening tool's own size limiting is unreliable when handed
// ignore flags, so matched paths are physically removed before it runs.
package ignore

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the per-repository ignore file, one glob per line,
// '#'-prefixed comments skipped.
const FileName = ".repomixignore"

// Defaults are always excluded from local repository scratch copies, on top
// of whatever the entry and ignore file declare.
var Defaults = []string{
	".git/",
	".vscode/",
	"__pycache__/",
	"node_modules/",
	"dist/",
	"build/",
	"vendor/",
	"*.pyc",
	"*.log",
	"*.swp",
	"*.DS_Store",
	".env",
}

// Resolve returns the union of entry patterns and patterns discovered in
// root's ignore file. Duplicates collapse; the result is sorted because
// materialization is order-independent.
func Resolve(root string, entryPatterns []string) ([]string, error) {
	set := map[string]struct{}{}
	for _, p := range entryPatterns {
		p = strings.TrimSpace(p)
		if p != "" && !strings.HasPrefix(p, "#") {
			set[p] = struct{}{}
		}
	}
	filePatterns, err := ReadFile(filepath.Join(root, FileName))
	if err != nil {
		return nil, err
	}
	for _, p := range filePatterns {
		set[p] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// ReadFile parses an ignore file. A missing file yields no patterns.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return patterns, nil
}

// Materialize deletes every path under workingCopy matching any pattern.
// workingCopy must be a scratch copy; the original tree is never touched.
func Materialize(workingCopy string, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	return filepath.WalkDir(workingCopy, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == workingCopy {
			return nil
		}
		rel, err := filepath.Rel(workingCopy, path)
		if err != nil {
			return err
		}
		if !Matches(filepath.ToSlash(rel), patterns) {
			return nil
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
}

// Matches reports whether the slash-separated relative path matches any
// pattern. A pattern matches the whole path, or any single path segment
// (so "build/" and "*.log" behave like their gitignore counterparts).
func Matches(rel string, patterns []string) bool {
	segments := strings.Split(rel, "/")
	for _, pattern := range patterns {
		p := strings.TrimSuffix(strings.TrimSpace(pattern), "/")
		if p == "" {
			continue
		}
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
		for _, seg := range segments {
			if ok, err := doublestar.Match(p, seg); err == nil && ok {
				return true
			}
		}
	}
	return false
}
