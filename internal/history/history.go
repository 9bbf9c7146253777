// Package history persists run reports so earlier runs stay inspectable
// from the CLI.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"knowpack/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

// RunSummary is one row of `kp history list`.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Profile    string    `json:"profile"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   int       `json:"outcomes"`
	Failed     int       `json:"failed"`
}

// SaveReport stores a finished report with its ordered outcomes.
func (s Store) SaveReport(ctx context.Context, r *domain.Report) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(id,profile,started_at,finished_at,failed) VALUES (?,?,?,?,?)`,
		r.RunID, r.Profile,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.FinishedAt.UTC().Format(time.RFC3339),
		r.Failed(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, o := range r.Outcomes {
		notes, err := json.Marshal(o.Notes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outcomes(run_id,seq,kind,identity,status,output_path,error,notes) VALUES (?,?,?,?,?,?,?,?)`,
			r.RunID, i, string(o.Kind), o.Identity, string(o.Status),
			nullable(o.OutputPath), nullable(o.Err), string(notes),
		); err != nil {
			return fmt.Errorf("insert outcome %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT r.id, r.profile, r.started_at, r.finished_at, r.failed, COUNT(o.run_id)
		FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var started, finished string
		if err := rows.Scan(&rs.RunID, &rs.Profile, &started, &finished, &rs.Failed, &rs.Outcomes); err != nil {
			return nil, err
		}
		rs.StartedAt, _ = time.Parse(time.RFC3339, started)
		rs.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// GetReport reloads one run with its ordered outcomes.
func (s Store) GetReport(ctx context.Context, runID string) (*domain.Report, error) {
	var r domain.Report
	var started, finished string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, profile, started_at, finished_at FROM runs WHERE id = ?`, runID,
	).Scan(&r.RunID, &r.Profile, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339, finished)

	rows, err := s.DB.QueryContext(ctx, `
		SELECT kind, identity, status, COALESCE(output_path,''), COALESCE(error,''), COALESCE(notes,'[]')
		FROM outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var o domain.Outcome
		var kind, status, notes string
		if err := rows.Scan(&kind, &o.Identity, &status, &o.OutputPath, &o.Err, &notes); err != nil {
			return nil, err
		}
		o.Kind = domain.SourceKind(kind)
		o.Status = domain.Status(status)
		_ = json.Unmarshal([]byte(notes), &o.Notes)
		r.Add(o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
