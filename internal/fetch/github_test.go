package fetch_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"knowpack/internal/creds"
	"knowpack/internal/fetch"
	"knowpack/internal/profile"
)

func TestGitHubFlattensRemoteWithoutCloning(t *testing.T) {
	runner := &fakeRunner{
		handle: func(name string, args []string, env []string) ([]byte, []byte, error) {
			return nil, nil, os.WriteFile(argAfter(args, "-o"), []byte("remote flat"), 0o644)
		},
	}
	g := &fetch.GitHub{Runner: runner}
	entry := profile.Entry{URL: "https://github.com/acme/api"}
	art, err := g.Fetch(context.Background(), entry, creds.Bundle{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer os.Remove(art.Path)

	args := runner.calls[0].args
	if argAfter(args, "--remote") != entry.URL {
		t.Fatalf("--remote not passed: %v", args)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil || string(data) != "remote flat" {
		t.Fatalf("artifact: %q, %v", data, err)
	}
}

func TestGitHubRequiresNpx(t *testing.T) {
	g := &fetch.GitHub{Runner: &fakeRunner{missing: map[string]bool{"npx": true}}}
	_, err := g.Fetch(context.Background(), profile.Entry{URL: "https://github.com/a/b"}, creds.Bundle{})
	var ferr *fetch.Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected fetch.Error, got %v", err)
	}
	if !strings.Contains(ferr.Error(), "npx not found") {
		t.Fatalf("error should name the missing tool: %v", ferr)
	}
}

func TestGitHubExtrasFailIndependently(t *testing.T) {
	runner := &fakeRunner{
		handle: func(name string, args []string, env []string) ([]byte, []byte, error) {
			if args[0] == "issue" {
				return []byte(`[{"number":1,"title":"a"},{"number":2,"title":"b"}]`), nil, nil
			}
			return nil, []byte("gh: API rate limit exceeded"), errors.New("exit status 1")
		},
	}
	g := &fetch.GitHub{Runner: runner}
	entry := profile.Entry{URL: "https://github.com/acme/api", FetchIssues: true, FetchPRs: true}
	extras := g.Extras(context.Background(), entry, creds.Bundle{})
	if len(extras) != 2 {
		t.Fatalf("expected 2 extras, got %d", len(extras))
	}

	issues, prs := extras[0], extras[1]
	if issues.Err != nil {
		t.Fatalf("issues step should succeed: %v", issues.Err)
	}
	if issues.Count != 2 || issues.Name != "repo_acme_api_issues.json" {
		t.Fatalf("unexpected issues extra: %+v", issues)
	}
	if !strings.Contains(string(issues.Data), "\n  {") {
		t.Fatalf("issues payload not indented: %s", issues.Data)
	}
	if prs.Err == nil || !strings.Contains(prs.Err.Error(), "rate limit") {
		t.Fatalf("pr failure not surfaced: %v", prs.Err)
	}
}

func TestGitHubExtrasEmptyListWritesNothing(t *testing.T) {
	runner := &fakeRunner{
		handle: func(name string, args []string, env []string) ([]byte, []byte, error) {
			return []byte("[]"), nil, nil
		},
	}
	g := &fetch.GitHub{Runner: runner}
	entry := profile.Entry{URL: "https://github.com/acme/api", FetchIssues: true}
	extras := g.Extras(context.Background(), entry, creds.Bundle{})
	if len(extras) != 1 {
		t.Fatalf("expected 1 extra, got %d", len(extras))
	}
	if extras[0].Err != nil || extras[0].Count != 0 || extras[0].Data != nil {
		t.Fatalf("empty list should produce no payload: %+v", extras[0])
	}
}

func TestGitHubExtrasPassRepoSlugAndToken(t *testing.T) {
	runner := &fakeRunner{
		handle: func(name string, args []string, env []string) ([]byte, []byte, error) {
			return []byte("[]"), nil, nil
		},
	}
	g := &fetch.GitHub{Runner: runner}
	entry := profile.Entry{URL: "https://github.com/acme/api.git", FetchIssues: true}
	g.Extras(context.Background(), entry, creds.Bundle{GitHubToken: "ghp_abc"})

	call := runner.calls[0]
	if call.name != "gh" || argAfter(call.args, "-R") != "acme/api" {
		t.Fatalf("unexpected gh invocation: %+v", call)
	}
	if argAfter(call.args, "--limit") != "500" {
		t.Fatalf("missing list limit: %v", call.args)
	}
	found := false
	for _, e := range call.env {
		if e == "GH_TOKEN=ghp_abc" {
			found = true
		}
	}
	if !found {
		t.Fatalf("token not passed through env: %v", call.env)
	}
}

func TestGitHubExtrasSkippedWhenNotRequested(t *testing.T) {
	g := &fetch.GitHub{Runner: &fakeRunner{}}
	if extras := g.Extras(context.Background(), profile.Entry{URL: "https://github.com/a/b"}, creds.Bundle{}); extras != nil {
		t.Fatalf("expected no extras, got %+v", extras)
	}
}
