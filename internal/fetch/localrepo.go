package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"knowpack/internal/creds"
	"knowpack/internal/domain"
	"knowpack/internal/ignore"
	"knowpack/internal/profile"
)

// LocalRepo flattens a local repository. The source tree is never touched:
// the fetch copies it to a scratch directory, deletes ignored paths there,
// and runs the flattening tool against the copy. The scratch directory is
// removed on every exit path.
type LocalRepo struct {
	Runner CommandRunner
	Logf   func(format string, args ...any)
}

func (l *LocalRepo) Fetch(ctx context.Context, entry profile.Entry, bundle creds.Bundle) (domain.Artifact, error) {
	info, statErr := os.Stat(entry.Path)
	if statErr != nil || !info.IsDir() {
		return domain.Artifact{}, &Error{Op: "repository", Detail: "path not found or not a directory: " + entry.Path}
	}

	patterns, perr := ignore.Resolve(entry.Path, entry.IgnorePatterns)
	if perr != nil {
		return domain.Artifact{}, &Error{Op: "repository", Detail: perr.Error()}
	}

	scratch, merr := os.MkdirTemp("", "knowpack-repo-*")
	if merr != nil {
		return domain.Artifact{}, fmt.Errorf("create scratch dir: %w", merr)
	}
	defer os.RemoveAll(scratch)

	if err := copyTree(entry.Path, scratch); err != nil {
		return domain.Artifact{}, &Error{Op: "repository", Detail: "copy working tree: " + err.Error()}
	}
	if err := ignore.Materialize(scratch, patterns); err != nil {
		return domain.Artifact{}, &Error{Op: "repository", Detail: "apply ignore patterns: " + err.Error()}
	}

	if _, err := l.Runner.LookPath("npx"); err != nil {
		l.Logf("npx not found, writing directory listing for %s instead", entry.Path)
		data, lerr := directoryListing(scratch, filepath.Base(filepath.Clean(entry.Path)))
		if lerr != nil {
			return domain.Artifact{}, &Error{Op: "repository", Detail: lerr.Error()}
		}
		return domain.Artifact{Data: data, Ext: ".txt"}, nil
	}

	outFile, ferr := tempOutputFile("knowpack-repomix-*.txt")
	if ferr != nil {
		return domain.Artifact{}, ferr
	}
	args := []string{"repomix", "--style", "plain", "-o", outFile}
	if entry.Compress {
		args = append(args, "--compress")
	}
	args = append(args, scratch)

	_, stderr, rerr := l.Runner.Run(ctx, "npx", args, nil)
	if rerr != nil {
		os.Remove(outFile)
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = rerr.Error()
		}
		return domain.Artifact{}, &Error{Op: "repomix", Detail: detail}
	}
	return domain.Artifact{Path: outFile, Ext: ".txt"}, nil
}

// tempOutputFile reserves a path for a tool to write into.
func tempOutputFile(pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	name := f.Name()
	f.Close()
	return name, nil
}

// copyTree copies a directory, skipping symlinks and the default ignore
// set so .git and similar trees never reach the scratch copy.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if ignore.Matches(filepath.ToSlash(rel), ignore.Defaults) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		target := filepath.Join(dest, rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			return nil
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		default:
			return copyFile(path, target)
		}
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// directoryListing is the degraded artifact produced when the flattening
// tool is unavailable: top-level layout plus one level of nesting.
func directoryListing(root, name string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Directory structure for %s\n\n## Root\n\n", name)

	top, err := sortedEntries(root)
	if err != nil {
		return nil, err
	}
	for _, e := range top {
		if e.IsDir() {
			fmt.Fprintf(&buf, "- Directory: %s\n", e.Name())
		} else {
			fmt.Fprintf(&buf, "- File: %s\n", e.Name())
		}
	}
	for _, e := range top {
		if !e.IsDir() {
			continue
		}
		fmt.Fprintf(&buf, "\n## %s\n\n", e.Name())
		children, err := sortedEntries(filepath.Join(root, e.Name()))
		if err != nil {
			fmt.Fprintf(&buf, "error listing directory: %v\n", err)
			continue
		}
		for _, c := range children {
			fmt.Fprintf(&buf, "- %s\n", c.Name())
		}
	}
	return buf.Bytes(), nil
}

func sortedEntries(dir string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
