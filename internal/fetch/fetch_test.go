package fetch_test

import (
	"context"
	"errors"
	"testing"

	"knowpack/internal/domain"
	"knowpack/internal/fetch"
)

// fakeRunner stands in for repomix, gh and pg_dump. Tests declare which
// tools are "installed" and what each invocation produces.
type fakeRunner struct {
	missing map[string]bool
	handle  func(name string, args []string, extraEnv []string) (stdout, stderr []byte, err error)
	calls   []runnerCall
}

type runnerCall struct {
	name string
	args []string
	env  []string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", errors.New(name + ": executable file not found in $PATH")
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, extraEnv []string) ([]byte, []byte, error) {
	f.calls = append(f.calls, runnerCall{name: name, args: args, env: extraEnv})
	if f.handle != nil {
		return f.handle(name, args, extraEnv)
	}
	return nil, nil, nil
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestRegistryCoversEveryKind(t *testing.T) {
	reg := fetch.NewRegistry(fetch.Deps{Runner: &fakeRunner{}})
	for _, kind := range domain.KindOrder {
		if _, err := reg.For(kind); err != nil {
			t.Errorf("no fetcher for %s: %v", kind, err)
		}
	}
	if _, err := reg.For(domain.SourceKind("carrier_pigeon")); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
