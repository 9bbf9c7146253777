package domain

import "time"

// SourceKind identifies one class of data source a profile can declare.
type SourceKind string

const (
	KindTrello     SourceKind = "trello"
	KindSheet      SourceKind = "google_sheets"
	KindDatabase   SourceKind = "database"
	KindLocalRepo  SourceKind = "repository"
	KindGitHubRepo SourceKind = "github_repository"
)

// KindOrder is the fixed dispatch order for a run. Entries within a kind
// keep their profile declaration order.
var KindOrder = []SourceKind{KindTrello, KindSheet, KindDatabase, KindLocalRepo, KindGitHubRepo}

// Artifact is the raw payload a fetcher produced. Either Data holds the
// bytes, or Path points at a file the external tool already wrote (the
// output writer moves it into place).
type Artifact struct {
	Data []byte
	Path string
	Ext  string
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome records one source-entry attempt. Finalized once, never mutated.
type Outcome struct {
	Kind       SourceKind `json:"kind"`
	Identity   string     `json:"identity"`
	Status     Status     `json:"status"`
	OutputPath string     `json:"output_path,omitempty"`
	Err        string     `json:"error,omitempty"`
	Notes      []string   `json:"notes,omitempty"`
}

// Report is the ordered, append-only record of one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Profile    string    `json:"profile"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Failed counts failed outcomes; the process exit code keys off this.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			n++
		}
	}
	return n
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
