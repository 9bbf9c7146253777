// Package output places fetched artifacts under the profile's output
// directory with deterministic, rerun-stable names.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"knowpack/internal/domain"
)

// Writer computes artifact paths and writes payloads. Reruns overwrite the
// same paths; unrelated files in the output directory are never touched.
type Writer struct {
	Dir string
}

// FileName returns the deterministic name for a source entry's artifact.
func FileName(kind domain.SourceKind, identity, ext string) string {
	switch kind {
	case domain.KindTrello:
		return "trello_board_" + Sanitize(identity) + orDefault(ext, ".json")
	case domain.KindSheet:
		return "google_sheet_" + Sanitize(identity) + orDefault(ext, ".csv")
	case domain.KindDatabase:
		return "db_schema_" + Sanitize(identity) + orDefault(ext, ".sql")
	case domain.KindLocalRepo:
		return "repo_" + Sanitize(RepoName(identity)) + orDefault(ext, ".txt")
	case domain.KindGitHubRepo:
		return "repo_" + Sanitize(RepoSlug(identity)) + orDefault(ext, ".txt")
	}
	return Sanitize(string(kind)) + "_" + Sanitize(identity) + orDefault(ext, ".txt")
}

// Write stores one artifact and returns its absolute path. The output
// directory and parents are created on demand.
func (w Writer) Write(kind domain.SourceKind, identity string, art domain.Artifact) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	dest := filepath.Join(w.Dir, FileName(kind, identity, art.Ext))
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}
	if art.Path != "" {
		if err := moveFile(art.Path, abs); err != nil {
			return "", fmt.Errorf("place artifact: %w", err)
		}
		return abs, nil
	}
	if err := os.WriteFile(abs, art.Data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return abs, nil
}

// WriteNamed stores a supplementary artifact (issues, pull requests) under
// an explicit file name.
func (w Writer) WriteNamed(name string, data []byte) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	abs, err := filepath.Abs(filepath.Join(w.Dir, name))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", err
	}
	return abs, nil
}

// IssuesFileName names the issue-metadata artifact for a GitHub repo URL.
func IssuesFileName(repoURL string) string {
	return "repo_" + Sanitize(RepoSlug(repoURL)) + "_issues.json"
}

// PullsFileName names the pull-request artifact for a GitHub repo URL.
func PullsFileName(repoURL string) string {
	return "repo_" + Sanitize(RepoSlug(repoURL)) + "_pulls.json"
}

// RepoName derives a repository name from a local path.
func RepoName(path string) string {
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == string(filepath.Separator) {
		return "repo"
	}
	return name
}

// RepoSlug derives "owner_name" from a GitHub URL or "owner/name" string.
func RepoSlug(repoURL string) string {
	s := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "_" + parts[len(parts)-1]
	}
	return s
}

// Sanitize maps an identity to a filename-safe token.
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "unnamed"
	}
	return out
}

func orDefault(ext, def string) string {
	if ext == "" {
		return def
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// moveFile renames when possible and falls back to a copy for cross-device
// temp directories.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
