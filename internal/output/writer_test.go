package output_test

import (
	"os"
	"path/filepath"
	"testing"

	"knowpack/internal/domain"
	"knowpack/internal/output"
)

func TestFileNamesAreDeterministic(t *testing.T) {
	cases := []struct {
		kind     domain.SourceKind
		identity string
		ext      string
		want     string
	}{
		{domain.KindTrello, "abc123", "", "trello_board_abc123.json"},
		{domain.KindSheet, "1x-Y_z", "", "google_sheet_1x-Y_z.csv"},
		{domain.KindDatabase, "db.local_acme", "", "db_schema_db.local_acme.sql"},
		{domain.KindLocalRepo, "/home/dev/my repo", "", "repo_my_repo.txt"},
		{domain.KindGitHubRepo, "https://github.com/acme/api", "", "repo_acme_api.txt"},
		{domain.KindTrello, "abc", "json", "trello_board_abc.json"},
	}
	for _, c := range cases {
		got := output.FileName(c.kind, c.identity, c.ext)
		if got != c.want {
			t.Errorf("FileName(%s, %q) = %q, want %q", c.kind, c.identity, got, c.want)
		}
		if again := output.FileName(c.kind, c.identity, c.ext); again != got {
			t.Errorf("FileName not stable for %q", c.identity)
		}
	}
}

func TestWriteOverwritesOnRerun(t *testing.T) {
	dir := t.TempDir()
	w := output.Writer{Dir: filepath.Join(dir, "out")}

	first, err := w.Write(domain.KindTrello, "b1", domain.Artifact{Data: []byte("one")})
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	second, err := w.Write(domain.KindTrello, "b1", domain.Artifact{Data: []byte("two")})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if first != second {
		t.Fatalf("rerun produced a different path: %s vs %s", first, second)
	}
	data, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Fatalf("rerun did not overwrite: %q", data)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
}

func TestWriteMovesFileArtifacts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scratch.txt")
	if err := os.WriteFile(src, []byte("flattened"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := output.Writer{Dir: filepath.Join(dir, "out")}
	dest, err := w.Write(domain.KindLocalRepo, "/src/proj", domain.Artifact{Path: src, Ext: ".txt"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be gone after move, stat err = %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "flattened" {
		t.Fatalf("moved content mismatch: %q", data)
	}
	if filepath.Base(dest) != "repo_proj.txt" {
		t.Fatalf("unexpected name: %s", dest)
	}
}

func TestRepoSlug(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/api":      "acme_api",
		"https://github.com/acme/api.git":  "acme_api",
		"https://github.com/acme/api/":     "acme_api",
		"git@github.com:acme/api.git":      "git_github.com_acme_api",
		"acme/api":                         "acme_api",
		"https://github.com/Big-Co/My.Lib": "Big-Co_My.Lib",
	}
	for in, want := range cases {
		if got := output.Sanitize(output.RepoSlug(in)); got != want {
			t.Errorf("RepoSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSupplementaryFileNames(t *testing.T) {
	if got := output.IssuesFileName("https://github.com/acme/api"); got != "repo_acme_api_issues.json" {
		t.Errorf("issues name: %s", got)
	}
	if got := output.PullsFileName("https://github.com/acme/api"); got != "repo_acme_api_pulls.json" {
		t.Errorf("pulls name: %s", got)
	}
}

func TestSanitize(t *testing.T) {
	if got := output.Sanitize("a b/c:d"); got != "a_b_c_d" {
		t.Errorf("sanitize: %s", got)
	}
	if got := output.Sanitize(""); got != "unnamed" {
		t.Errorf("empty sanitize: %s", got)
	}
}
