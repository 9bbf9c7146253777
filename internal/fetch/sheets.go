package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"knowpack/internal/creds"
	"knowpack/internal/domain"
	"knowpack/internal/profile"
)

// SheetExporter exports one spreadsheet as CSV. The Drive client sits
// behind this interface so tests never touch the Google API.
type SheetExporter interface {
	ExportCSV(ctx context.Context, sheetID string) ([]byte, error)
}

// ExporterFactory builds an exporter from a resolved credential bundle.
type ExporterFactory func(ctx context.Context, bundle creds.Bundle) (SheetExporter, error)

// Sheets exports declared sheets through a SheetExporter.
type Sheets struct {
	NewExporter ExporterFactory
}

func (s *Sheets) Fetch(ctx context.Context, entry profile.Entry, bundle creds.Bundle) (domain.Artifact, error) {
	exp, err := s.NewExporter(ctx, bundle)
	if err != nil {
		return domain.Artifact{}, &Error{Op: "google drive", Detail: err.Error()}
	}
	data, err := exp.ExportCSV(ctx, entry.ID)
	if err != nil {
		return domain.Artifact{}, &Error{
			Op:     "google drive",
			Detail: fmt.Sprintf("sheet %s: %v (check the sheet id and sharing settings)", entry.ID, err),
		}
	}
	return domain.Artifact{Data: data, Ext: ".csv"}, nil
}

// NewDriveExporter builds the production exporter from the client secrets
// file and the cached authorization token. Expired tokens refresh
// automatically when a refresh token is cached.
func NewDriveExporter(ctx context.Context, bundle creds.Bundle) (SheetExporter, error) {
	cfg, err := oauthConfig(bundle.ClientSecretsPath)
	if err != nil {
		return nil, err
	}
	tok, err := readToken(bundle.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("cached token %s: %w", bundle.TokenPath, err)
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, err
	}
	return &driveExporter{svc: svc}, nil
}

type driveExporter struct {
	svc *drive.Service
}

func (d *driveExporter) ExportCSV(ctx context.Context, sheetID string) ([]byte, error) {
	resp, err := d.svc.Files.Export(sheetID, "text/csv").Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Authorize runs the one-time interactive consent flow and caches the
// resulting token. The run command never calls this; it is the manual step
// behind `kp auth google`.
func Authorize(ctx context.Context, secretsPath, tokenPath string, in io.Reader, out io.Writer) error {
	cfg, err := oauthConfig(secretsPath)
	if err != nil {
		return err
	}
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Open this URL in your browser, approve access, then paste the code here:\n%s\n\ncode: ", authURL)

	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tokenPath, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token cached at %s\n", tokenPath)
	return nil
}

func oauthConfig(secretsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("client secrets %s: %w", secretsPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return cfg, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
