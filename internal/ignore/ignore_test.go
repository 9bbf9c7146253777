package ignore_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"knowpack/internal/ignore"
)

func TestResolveUnionsEntryAndFilePatterns(t *testing.T) {
	root := t.TempDir()
	ignoreFile := filepath.Join(root, ignore.FileName)
	content := "# generated artifacts\n*.tmp\n\nsecrets/\n*.log\n"
	if err := os.WriteFile(ignoreFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ignore.Resolve(root, []string{"*.log", "docs/drafts/"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"*.log", "*.tmp", "docs/drafts/", "secrets/"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("union:\n got %v\nwant %v", got, want)
	}
}

func TestResolveWithoutIgnoreFile(t *testing.T) {
	got, err := ignore.Resolve(t.TempDir(), []string{"build/"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"build/"}) {
		t.Fatalf("unexpected patterns: %v", got)
	}
}

func TestMatches(t *testing.T) {
	patterns := []string{"build/", "*.log", "docs/**/drafts"}
	cases := []struct {
		rel  string
		want bool
	}{
		{"build", true},
		{"build/out.bin", true},
		{"src/build/nested.txt", true},
		{"app.log", true},
		{"logs/app.log", true},
		{"docs/a/b/drafts", true},
		{"src/main.go", false},
		{"buildinfo.go", false},
	}
	for _, c := range cases {
		if got := ignore.Matches(c.rel, patterns); got != c.want {
			t.Errorf("Matches(%q) = %v, want %v", c.rel, got, c.want)
		}
	}
}

func TestMaterializeDeletesMatchedPaths(t *testing.T) {
	scratch := t.TempDir()
	mustWrite := func(rel string) {
		path := filepath.Join(scratch, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("src/main.go")
	mustWrite("build/out.bin")
	mustWrite("build/deep/more.bin")
	mustWrite("trace.log")

	if err := ignore.Materialize(scratch, []string{"build/", "*.log"}); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "build")); !os.IsNotExist(err) {
		t.Fatalf("build/ should be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "trace.log")); !os.IsNotExist(err) {
		t.Fatalf("trace.log should be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(scratch, "src/main.go")); err != nil {
		t.Fatalf("src/main.go should survive: %v", err)
	}
}

func TestDefaultsCoverCommonNoise(t *testing.T) {
	for _, rel := range []string{".git/HEAD", "node_modules/x/index.js", "a/b.pyc", ".env"} {
		if !ignore.Matches(rel, ignore.Defaults) {
			t.Errorf("defaults should match %q", rel)
		}
	}
	if ignore.Matches("src/env.go", ignore.Defaults) {
		t.Errorf("defaults should not match src/env.go")
	}
}
