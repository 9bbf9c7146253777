package fetch_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"knowpack/internal/creds"
	"knowpack/internal/fetch"
	"knowpack/internal/profile"
)

func TestDatabaseDumpInvokesPgDumpSchemaOnly(t *testing.T) {
	runner := &fakeRunner{
		handle: func(name string, args []string, env []string) ([]byte, []byte, error) {
			return []byte("CREATE TABLE public.users ();\n"), nil, nil
		},
	}
	d := &fetch.Database{Runner: runner}
	bundle := creds.Bundle{ConnString: "postgres://u:p@h:5432/db"}
	art, err := d.Fetch(context.Background(), profile.Entry{}, bundle)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if art.Ext != ".sql" || !strings.Contains(string(art.Data), "CREATE TABLE") {
		t.Fatalf("unexpected artifact: %+v", art)
	}

	if len(runner.calls) != 1 || runner.calls[0].name != "pg_dump" {
		t.Fatalf("unexpected calls: %+v", runner.calls)
	}
	args := runner.calls[0].args
	for _, want := range []string{"--schema-only", "--no-owner", "--no-privileges"} {
		if !hasArg(args, want) {
			t.Errorf("missing arg %s in %v", want, args)
		}
	}
	if got := argAfter(args, "--dbname"); got != bundle.ConnString {
		t.Errorf("--dbname = %q", got)
	}
	// Default platform schemas excluded when the entry declares none.
	joined := strings.Join(args, " ")
	for _, schema := range []string{"pg_catalog", "realtime", "storage"} {
		if !strings.Contains(joined, "--exclude-schema "+schema) {
			t.Errorf("default schema %s not excluded: %v", schema, args)
		}
	}
}

func TestDatabaseEntryOverridesExcludedSchemas(t *testing.T) {
	runner := &fakeRunner{}
	d := &fetch.Database{Runner: runner}
	entry := profile.Entry{ExcludeSchemas: []string{"audit"}}
	if _, err := d.Fetch(context.Background(), entry, creds.Bundle{ConnString: "c"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	joined := strings.Join(runner.calls[0].args, " ")
	if !strings.Contains(joined, "--exclude-schema audit") {
		t.Fatalf("entry schema not excluded: %s", joined)
	}
	if strings.Contains(joined, "realtime") {
		t.Fatalf("defaults should not apply when the entry declares its own: %s", joined)
	}
}

func TestDatabaseDumpFailureCarriesStderr(t *testing.T) {
	runner := &fakeRunner{
		handle: func(name string, args []string, env []string) ([]byte, []byte, error) {
			return nil, []byte("pg_dump: error: connection to server failed\n"), errors.New("exit status 1")
		},
	}
	d := &fetch.Database{Runner: runner}
	_, err := d.Fetch(context.Background(), profile.Entry{}, creds.Bundle{ConnString: "c"})
	var ferr *fetch.Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected fetch.Error, got %v", err)
	}
	if !strings.Contains(ferr.Error(), "connection to server failed") {
		t.Fatalf("stderr not surfaced: %v", ferr)
	}
}

func TestDatabaseIntrospectionFallbackWhenPgDumpMissing(t *testing.T) {
	runner := &fakeRunner{missing: map[string]bool{"pg_dump": true}}
	d := &fetch.Database{
		Runner: runner,
		OpenDB: func(conn string) (*sql.DB, error) {
			return nil, errors.New("no reachable server")
		},
	}
	_, err := d.Fetch(context.Background(), profile.Entry{}, creds.Bundle{ConnString: "c"})
	var ferr *fetch.Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected fetch.Error, got %v", err)
	}
	if !strings.Contains(ferr.Error(), "pg_dump not found") {
		t.Fatalf("error should mention the missing tool: %v", ferr)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("pg_dump should not be invoked when absent: %+v", runner.calls)
	}
}
