package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"knowpack/internal/creds"
	"knowpack/internal/domain"
	"knowpack/internal/output"
	"knowpack/internal/profile"
)

const ghListLimit = "500"

var (
	ghIssueFields = "title,body,state,createdAt,updatedAt,author,comments,labels,number,url"
	ghPRFields    = ghIssueFields + ",reviews"
)

// GitHub flattens a remote repository with the flattening tool's remote
// mode (no local clone) and, when asked, collects issue and pull-request
// metadata through the gh CLI. The code step and the metadata steps fail
// independently.
type GitHub struct {
	Runner CommandRunner
}

func (g *GitHub) Fetch(ctx context.Context, entry profile.Entry, bundle creds.Bundle) (domain.Artifact, error) {
	if _, err := g.Runner.LookPath("npx"); err != nil {
		return domain.Artifact{}, &Error{Op: "repomix", Detail: "npx not found; install Node.js to flatten remote repositories"}
	}
	outFile, err := tempOutputFile("knowpack-remote-*.txt")
	if err != nil {
		return domain.Artifact{}, err
	}
	args := []string{"repomix", "--style", "plain", "-o", outFile}
	if entry.Compress {
		args = append(args, "--compress")
	}
	args = append(args, "--remote", entry.URL)

	_, stderr, rerr := g.Runner.Run(ctx, "npx", args, nil)
	if rerr != nil {
		os.Remove(outFile)
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = rerr.Error()
		}
		return domain.Artifact{}, &Error{Op: "repomix", Detail: detail}
	}
	return domain.Artifact{Path: outFile, Ext: ".txt"}, nil
}

// Extras collects issue and pull-request metadata when the entry asks for
// it. Each sub-step succeeds or fails on its own.
func (g *GitHub) Extras(ctx context.Context, entry profile.Entry, bundle creds.Bundle) []Extra {
	if !entry.FetchIssues && !entry.FetchPRs {
		return nil
	}
	slug := RepoSlug(entry.URL)
	var env []string
	if bundle.GitHubToken != "" {
		env = []string{"GH_TOKEN=" + bundle.GitHubToken}
	}

	var extras []Extra
	if entry.FetchIssues {
		extras = append(extras, g.listExtra(ctx, "issues", output.IssuesFileName(entry.URL),
			[]string{"issue", "list", "-R", slug, "--json", ghIssueFields, "--limit", ghListLimit}, env))
	}
	if entry.FetchPRs {
		extras = append(extras, g.listExtra(ctx, "pull requests", output.PullsFileName(entry.URL),
			[]string{"pr", "list", "-R", slug, "--json", ghPRFields, "--limit", ghListLimit}, env))
	}
	return extras
}

func (g *GitHub) listExtra(ctx context.Context, label, name string, args, env []string) Extra {
	ex := Extra{Label: label, Name: name}
	if _, err := g.Runner.LookPath("gh"); err != nil {
		ex.Err = &Error{Op: "gh", Detail: "gh not found; install the GitHub CLI (https://cli.github.com/)"}
		return ex
	}
	stdout, stderr, err := g.Runner.Run(ctx, "gh", args, env)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = err.Error()
		}
		ex.Err = &Error{Op: "gh " + args[0] + " list", Detail: detail}
		return ex
	}
	var items []json.RawMessage
	if err := json.Unmarshal(stdout, &items); err != nil {
		ex.Err = &Error{Op: "gh " + args[0] + " list", Detail: "unparseable JSON output: " + err.Error()}
		return ex
	}
	ex.Count = len(items)
	if len(items) == 0 {
		// Nothing open: skip file creation, like an empty board column.
		return ex
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, stdout, "", "  "); err != nil {
		ex.Data = stdout
		return ex
	}
	ex.Data = pretty.Bytes()
	return ex
}

// RepoSlug extracts "owner/name" from a GitHub URL.
func RepoSlug(repoURL string) string {
	s := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return s
}
