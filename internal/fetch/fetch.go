// Package fetch holds the per-source adapters. Every source kind
// implements the same contract and is dispatched through a single registry
// keyed on kind, so the coordinator never branches on source type.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"knowpack/internal/creds"
	"knowpack/internal/domain"
	"knowpack/internal/profile"
)

// Fetcher turns one normalized entry plus resolved credentials into a raw
// artifact or a source-scoped failure.
type Fetcher interface {
	Fetch(ctx context.Context, entry profile.Entry, bundle creds.Bundle) (domain.Artifact, error)
}

// Error wraps an underlying API or tool failure. Per-entry, never fatal to
// the run.
type Error struct {
	Op     string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Op + " failed"
	}
	return e.Op + ": " + e.Detail
}

// Extra is a supplementary artifact collected alongside a main fetch
// (GitHub issues and pull requests). Sub-steps fail independently.
type Extra struct {
	Label string
	Name  string
	Data  []byte
	Count int
	Err   error
}

// ExtraFetcher is implemented by fetchers that produce supplementary
// artifacts under the same entry outcome.
type ExtraFetcher interface {
	Extras(ctx context.Context, entry profile.Entry, bundle creds.Bundle) []Extra
}

// CommandRunner executes external tools. The seam keeps fetchers testable
// without repomix, gh or pg_dump installed.
type CommandRunner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args []string, extraEnv []string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, name string, args []string, extraEnv []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Registry maps source kinds to their fetcher.
type Registry map[domain.SourceKind]Fetcher

// Deps carries the shared collaborators; zero values get production
// defaults.
type Deps struct {
	Runner        CommandRunner
	HTTPClient    *http.Client
	TrelloBaseURL string
	NewExporter   ExporterFactory
	Logf          func(format string, args ...any)
}

// NewRegistry wires one fetcher per source kind.
func NewRegistry(d Deps) Registry {
	if d.Runner == nil {
		d.Runner = ExecRunner{}
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if d.TrelloBaseURL == "" {
		d.TrelloBaseURL = trelloBaseURL
	}
	if d.NewExporter == nil {
		d.NewExporter = NewDriveExporter
	}
	if d.Logf == nil {
		d.Logf = func(string, ...any) {}
	}
	return Registry{
		domain.KindTrello:     &Trello{BaseURL: d.TrelloBaseURL, Client: d.HTTPClient},
		domain.KindSheet:      &Sheets{NewExporter: d.NewExporter},
		domain.KindDatabase:   &Database{Runner: d.Runner},
		domain.KindLocalRepo:  &LocalRepo{Runner: d.Runner, Logf: d.Logf},
		domain.KindGitHubRepo: &GitHub{Runner: d.Runner},
	}
}

// For returns the fetcher for a kind.
func (r Registry) For(kind domain.SourceKind) (Fetcher, error) {
	f, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for source kind %q", kind)
	}
	return f, nil
}
