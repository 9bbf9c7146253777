package profile

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"knowpack/internal/domain"
)

// ValidationError means the profile document itself is unusable. It is the
// only error that aborts a run before any fetch is attempted; bad individual
// entries are handled per-entry during dispatch.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid profile: " + e.Reason
}

// Entry is one unit of work within a source kind. Which fields matter
// depends on the kind; unknown fields in the document are ignored.
type Entry struct {
	ID                     string   `yaml:"id" json:"id,omitempty"`
	Path                   string   `yaml:"path" json:"path,omitempty"`
	URL                    string   `yaml:"url" json:"url,omitempty"`
	DatabaseURL            string   `yaml:"database_url" json:"database_url,omitempty"`
	ConnectionEnvVarPrefix string   `yaml:"connection_env_var_prefix" json:"connection_env_var_prefix,omitempty"`
	PasswordEnvVar         string   `yaml:"password_env_var" json:"password_env_var,omitempty"`
	Compress               bool     `yaml:"compress" json:"compress,omitempty"`
	IgnorePatterns         []string `yaml:"ignore_patterns" json:"ignore_patterns,omitempty"`
	FetchIssues            bool     `yaml:"fetch_issues" json:"fetch_issues,omitempty"`
	FetchPRs               bool     `yaml:"fetch_prs" json:"fetch_prs,omitempty"`
	ExcludeSchemas         []string `yaml:"exclude_schemas" json:"exclude_schemas,omitempty"`
}

// Identity returns the field that names this entry for its kind, or "" when
// the entry is missing it.
func (e Entry) Identity(kind domain.SourceKind) string {
	switch kind {
	case domain.KindTrello, domain.KindSheet:
		return e.ID
	case domain.KindLocalRepo:
		return e.Path
	case domain.KindGitHubRepo:
		return e.URL
	case domain.KindDatabase:
		if e.DatabaseURL != "" {
			return databaseIdentity(e.DatabaseURL)
		}
		if e.ConnectionEnvVarPrefix != "" {
			return "env:" + e.ConnectionEnvVarPrefix
		}
		return "env:SUPABASE"
	}
	return ""
}

// databaseIdentity names a database entry by host and database, never by
// the raw connection string, which may embed a password.
func databaseIdentity(conn string) string {
	u, err := url.Parse(conn)
	if err != nil || u.Host == "" {
		return "database"
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return u.Hostname()
	}
	return u.Hostname() + "_" + name
}

// Profile is the canonical in-memory job description. Both schema
// generations normalize to this shape.
type Profile struct {
	Name      string                        `json:"name"`
	OutputDir string                        `json:"output_dir"`
	Sources   map[domain.SourceKind][]Entry `json:"sources"`
}

// Entries returns the entries for a kind in declaration order.
func (p *Profile) Entries(kind domain.SourceKind) []Entry {
	return p.Sources[kind]
}

// Total counts declared source entries across all kinds.
func (p *Profile) Total() int {
	n := 0
	for _, entries := range p.Sources {
		n += len(entries)
	}
	return n
}

// rawProfile accepts both schema generations. Unrecognized top-level keys
// are dropped by yaml decoding, which is the intended forward-compatible
// behavior for hand-authored profiles.
type rawProfile struct {
	Name      string               `yaml:"name"`
	OutputDir string               `yaml:"output_dir"`
	Sources   map[string]yaml.Node `yaml:"sources"`

	// legacy flat keys, used only when sources is absent
	Trello             yaml.Node         `yaml:"trello"`
	GoogleSheets       []Entry           `yaml:"google_sheets"`
	Supabase           map[string]string `yaml:"supabase"`
	DatabaseURL        string            `yaml:"database_url"`
	Repositories       []Entry           `yaml:"repositories"`
	GitHubRepositories []Entry           `yaml:"github_repositories"`
}

// kindAliases maps accepted source keys to canonical kinds. Plural and
// singular repository keys are both long-lived in hand-authored profiles.
var kindAliases = map[string]domain.SourceKind{
	"trello":              domain.KindTrello,
	"google_sheets":       domain.KindSheet,
	"database":            domain.KindDatabase,
	"supabase":            domain.KindDatabase,
	"repository":          domain.KindLocalRepo,
	"repositories":        domain.KindLocalRepo,
	"github_repository":   domain.KindGitHubRepo,
	"github_repositories": domain.KindGitHubRepo,
}

// Load reads and normalizes a profile document. Relative output_dir is
// resolved against the profile file's directory.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return parse(data, base)
}

// Parse normalizes a profile document, resolving relative output_dir
// against the current directory.
func Parse(data []byte) (*Profile, error) {
	base, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return parse(data, base)
}

func parse(data []byte, baseDir string) (*Profile, error) {
	var raw rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if raw.Name == "" {
		return nil, &ValidationError{Reason: "name is required"}
	}
	if raw.OutputDir == "" {
		return nil, &ValidationError{Reason: "output_dir is required"}
	}

	p := &Profile{
		Name:    raw.Name,
		Sources: map[domain.SourceKind][]Entry{},
	}
	if filepath.IsAbs(raw.OutputDir) {
		p.OutputDir = filepath.Clean(raw.OutputDir)
	} else {
		p.OutputDir = filepath.Join(baseDir, raw.OutputDir)
	}

	if raw.Sources != nil {
		for key, node := range raw.Sources {
			kind, ok := kindAliases[key]
			if !ok {
				continue
			}
			entries, err := decodeEntries(node)
			if err != nil {
				return nil, &ValidationError{Reason: fmt.Sprintf("sources.%s: %v", key, err)}
			}
			p.Sources[kind] = append(p.Sources[kind], entries...)
		}
		return p, nil
	}

	// Legacy flat schema.
	if !raw.Trello.IsZero() {
		entries, err := decodeEntries(raw.Trello)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("trello: %v", err)}
		}
		p.Sources[domain.KindTrello] = entries
	}
	if len(raw.GoogleSheets) > 0 {
		p.Sources[domain.KindSheet] = raw.GoogleSheets
	}
	if raw.DatabaseURL != "" {
		p.Sources[domain.KindDatabase] = []Entry{{DatabaseURL: raw.DatabaseURL}}
	} else if raw.Supabase != nil {
		// A supabase block without its own connection string falls through
		// to the SUPABASE_DB_* environment variables at resolution time.
		p.Sources[domain.KindDatabase] = []Entry{{DatabaseURL: raw.Supabase["database_url"]}}
	}
	if len(raw.Repositories) > 0 {
		p.Sources[domain.KindLocalRepo] = raw.Repositories
	}
	if len(raw.GitHubRepositories) > 0 {
		p.Sources[domain.KindGitHubRepo] = raw.GitHubRepositories
	}
	return p, nil
}

// decodeEntries accepts a list of entries, a single entry object, or a
// trello-style {boards: [...]} wrapper.
func decodeEntries(node yaml.Node) ([]Entry, error) {
	if node.IsZero() {
		return nil, nil
	}
	switch node.Kind {
	case yaml.SequenceNode:
		var entries []Entry
		if err := node.Decode(&entries); err != nil {
			return nil, err
		}
		return entries, nil
	case yaml.MappingNode:
		var wrapper struct {
			Boards []Entry `yaml:"boards"`
		}
		if err := node.Decode(&wrapper); err == nil && len(wrapper.Boards) > 0 {
			return wrapper.Boards, nil
		}
		var single Entry
		if err := node.Decode(&single); err != nil {
			return nil, err
		}
		return []Entry{single}, nil
	default:
		return nil, fmt.Errorf("expected a list or object")
	}
}
