// Package creds resolves the secret material one fetch attempt needs.
//
// Precedence is fixed: credentials carried by the profile entry itself (a
// ready connection string, a project-scoped env-var prefix) always win over
// global environment defaults. Global variables are reserved for
// user-identity secrets that are not tied to one project: TRELLO_API_KEY,
// TRELLO_TOKEN, GH_TOKEN, GOOGLE_CLIENT_SECRETS_JSON and the legacy
// SUPABASE_DB_* set.
package creds

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/subosito/gotenv"

	"knowpack/internal/domain"
	"knowpack/internal/profile"
)

// Lookup reads one environment variable. Tests inject fakes; production
// passes OSLookup.
type Lookup func(key string) (string, bool)

func OSLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// LoadDotenv merges an optional untracked .env file in dir into the process
// environment. A missing file is not an error.
func LoadDotenv(dir string) error {
	err := gotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Bundle is the resolved secret material for one fetch attempt. It lives
// for the duration of that attempt and is never persisted or logged.
type Bundle struct {
	TrelloKey   string
	TrelloToken string

	ClientSecretsPath string
	TokenPath         string

	ConnString string

	GitHubToken string
}

// MissingCredential names every variable or field that was absent. It is a
// per-entry outcome, never fatal to the run.
type MissingCredential struct {
	Kind    domain.SourceKind
	Missing []string
}

func (e *MissingCredential) Error() string {
	return fmt.Sprintf("missing credentials for %s: %s", e.Kind, strings.Join(e.Missing, ", "))
}

// AuthorizationRequired signals that the one-time Google consent flow has
// not been completed yet. It is not a fetch failure: the fix is a single
// manual step, not a retry.
type AuthorizationRequired struct {
	TokenPath string
}

func (e *AuthorizationRequired) Error() string {
	return fmt.Sprintf("google authorization required: no cached token at %s; run `kp auth google` once and retry", e.TokenPath)
}

// Resolver resolves credentials against an environment snapshot.
type Resolver struct {
	Env       Lookup
	Workspace string
}

func New(workspace string) Resolver {
	return Resolver{Env: OSLookup, Workspace: workspace}
}

// TokenPath is where the cached Google authorization token lives.
func (r Resolver) TokenPath() string {
	ws := r.Workspace
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, "auth", "token.json")
}

// Resolve produces a Bundle for one entry or a typed diagnosis. It never
// panics on absent optional fields.
func (r Resolver) Resolve(kind domain.SourceKind, entry profile.Entry) (Bundle, error) {
	env := r.Env
	if env == nil {
		env = OSLookup
	}
	switch kind {
	case domain.KindTrello:
		return r.resolveTrello(env)
	case domain.KindSheet:
		return r.resolveSheets(env)
	case domain.KindDatabase:
		return r.resolveDatabase(env, entry)
	case domain.KindGitHubRepo:
		b := Bundle{}
		if tok, ok := env("GH_TOKEN"); ok {
			b.GitHubToken = tok
		}
		return b, nil
	case domain.KindLocalRepo:
		return Bundle{}, nil
	}
	return Bundle{}, fmt.Errorf("unknown source kind %q", kind)
}

func (r Resolver) resolveTrello(env Lookup) (Bundle, error) {
	key, okKey := env("TRELLO_API_KEY")
	token, okTok := env("TRELLO_TOKEN")
	var missing []string
	if !okKey || key == "" {
		missing = append(missing, "TRELLO_API_KEY")
	}
	if !okTok || token == "" {
		missing = append(missing, "TRELLO_TOKEN")
	}
	if len(missing) > 0 {
		return Bundle{}, &MissingCredential{Kind: domain.KindTrello, Missing: missing}
	}
	return Bundle{TrelloKey: key, TrelloToken: token}, nil
}

func (r Resolver) resolveSheets(env Lookup) (Bundle, error) {
	secrets, ok := env("GOOGLE_CLIENT_SECRETS_JSON")
	if !ok || secrets == "" {
		return Bundle{}, &MissingCredential{Kind: domain.KindSheet, Missing: []string{"GOOGLE_CLIENT_SECRETS_JSON"}}
	}
	if _, err := os.Stat(secrets); err != nil {
		return Bundle{}, &MissingCredential{Kind: domain.KindSheet, Missing: []string{"GOOGLE_CLIENT_SECRETS_JSON (file not found: " + secrets + ")"}}
	}
	tokenPath := r.TokenPath()
	if _, err := os.Stat(tokenPath); err != nil {
		return Bundle{}, &AuthorizationRequired{TokenPath: tokenPath}
	}
	return Bundle{ClientSecretsPath: secrets, TokenPath: tokenPath}, nil
}

func (r Resolver) resolveDatabase(env Lookup, entry profile.Entry) (Bundle, error) {
	// A ready connection string on the entry is authoritative.
	if entry.DatabaseURL != "" {
		return Bundle{ConnString: entry.DatabaseURL}, nil
	}
	prefix := entry.ConnectionEnvVarPrefix
	if prefix != "" {
		return r.connFromEnv(env, prefix, entry.PasswordEnvVar)
	}
	// Legacy global fallback for entries that declare nothing themselves.
	return r.connFromEnv(env, "SUPABASE", entry.PasswordEnvVar)
}

// connFromEnv assembles a postgres connection string from
// {prefix}_DB_{HOST,PORT,USER,NAME,PASSWORD}. Port defaults to 5432; the
// password may come from an entry-declared variable instead.
func (r Resolver) connFromEnv(env Lookup, prefix, passwordVar string) (Bundle, error) {
	get := func(suffix string) (string, string) {
		name := prefix + "_DB_" + suffix
		v, _ := env(name)
		return v, name
	}
	host, hostVar := get("HOST")
	user, userVar := get("USER")
	name, nameVar := get("NAME")
	port, _ := get("PORT")
	password, passVar := get("PASSWORD")
	if passwordVar != "" {
		passVar = passwordVar
		password, _ = env(passwordVar)
	}

	var missing []string
	if host == "" {
		missing = append(missing, hostVar)
	}
	if user == "" {
		missing = append(missing, userVar)
	}
	if name == "" {
		missing = append(missing, nameVar)
	}
	if password == "" {
		missing = append(missing, passVar)
	}
	if len(missing) > 0 {
		return Bundle{}, &MissingCredential{Kind: domain.KindDatabase, Missing: missing}
	}
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	return Bundle{ConnString: u.String()}, nil
}
