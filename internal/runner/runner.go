// Package runner drives one aggregation run: credentials, fetch, write,
// outcome — entry by entry, in a fixed order, with every failure scoped to
// its own entry.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"knowpack/internal/creds"
	"knowpack/internal/domain"
	"knowpack/internal/fetch"
	"knowpack/internal/output"
	"knowpack/internal/profile"
)

// Saver persists finished reports. Optional: a run without a history store
// still produces its artifacts.
type Saver interface {
	SaveReport(ctx context.Context, r *domain.Report) error
}

type Runner struct {
	Registry fetch.Registry
	Creds    creds.Resolver
	History  Saver
	Now      func() time.Time
	Logf     func(format string, args ...any)
}

func (r Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// Run processes every declared entry sequentially and returns the ordered
// report. No entry failure aborts the run; retrying is rerunning.
func (r Runner) Run(ctx context.Context, p *profile.Profile) *domain.Report {
	report := &domain.Report{
		RunID:     uuid.NewString(),
		Profile:   p.Name,
		StartedAt: r.now(),
	}
	writer := output.Writer{Dir: p.OutputDir}

	for _, kind := range domain.KindOrder {
		for _, entry := range p.Entries(kind) {
			report.Add(r.attempt(ctx, writer, kind, entry))
		}
	}
	report.FinishedAt = r.now()

	if r.History != nil {
		if err := r.History.SaveReport(ctx, report); err != nil {
			// History is bookkeeping; artifacts on disk are the product.
			r.logf("persist run report: %v", err)
		}
	}
	return report
}

func (r Runner) attempt(ctx context.Context, writer output.Writer, kind domain.SourceKind, entry profile.Entry) domain.Outcome {
	o := domain.Outcome{Kind: kind, Identity: entry.Identity(kind)}
	if o.Identity == "" {
		o.Status = domain.StatusFailed
		o.Err = fmt.Sprintf("entry missing its identity field for kind %s", kind)
		return o
	}
	r.logf("fetching %s %s", kind, o.Identity)

	bundle, err := r.Creds.Resolve(kind, entry)
	if err != nil {
		// A pending one-time authorization is a manual step, not a failure;
		// the entry is skipped and does not affect the exit code.
		var authReq *creds.AuthorizationRequired
		if errors.As(err, &authReq) {
			o.Status = domain.StatusSkipped
			o.Notes = append(o.Notes, err.Error())
			return o
		}
		o.Status = domain.StatusFailed
		o.Err = err.Error()
		return o
	}
	fetcher, err := r.Registry.For(kind)
	if err != nil {
		o.Status = domain.StatusFailed
		o.Err = err.Error()
		return o
	}

	art, fetchErr := fetcher.Fetch(ctx, entry, bundle)
	if fetchErr != nil {
		o.Status = domain.StatusFailed
		o.Err = fetchErr.Error()
	} else {
		path, werr := writer.Write(kind, o.Identity, art)
		if werr != nil {
			o.Status = domain.StatusFailed
			o.Err = werr.Error()
		} else {
			o.Status = domain.StatusSuccess
			o.OutputPath = path
		}
	}

	// Supplementary artifacts run regardless of the main fetch result; the
	// sub-steps are independent and report under this same outcome.
	if ef, ok := fetcher.(fetch.ExtraFetcher); ok {
		for _, ex := range ef.Extras(ctx, entry, bundle) {
			switch {
			case ex.Err != nil:
				o.Status = domain.StatusFailed
				if o.Err != "" {
					o.Err += "; "
				}
				o.Err += fmt.Sprintf("%s: %v", ex.Label, ex.Err)
			case ex.Count == 0:
				o.Notes = append(o.Notes, fmt.Sprintf("%s: none open, no file written", ex.Label))
			default:
				path, werr := writer.WriteNamed(ex.Name, ex.Data)
				if werr != nil {
					o.Status = domain.StatusFailed
					if o.Err != "" {
						o.Err += "; "
					}
					o.Err += fmt.Sprintf("%s: %v", ex.Label, werr)
				} else {
					o.Notes = append(o.Notes, fmt.Sprintf("%s: %d saved to %s", ex.Label, ex.Count, path))
				}
			}
		}
	}
	return o
}
