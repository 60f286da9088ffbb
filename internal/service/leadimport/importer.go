package leadimport

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/pkg/logger"
)

const (
	// DefaultProgressEvery is how often (in records) OnProgress fires.
	DefaultProgressEvery = 25

	msgStoreUnavailable = "lead store unavailable"
	msgCancelled        = "import cancelled"
)

// Progress is a snapshot of a running import.
type Progress struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Importer commits resolved candidates one by one. A failing record never
// aborts the batch, except when the store itself is unavailable.
type Importer struct {
	store LeadStore

	// ProgressEvery and OnProgress are optional.
	ProgressEvery int
	OnProgress    func(Progress)
}

func NewImporter(store LeadStore) *Importer {
	return &Importer{store: store, ProgressEvery: DefaultProgressEvery}
}

// Import applies every disposition and returns the outcome. Counters only
// move when the store call succeeded, and every input record is accounted
// for exactly once: Created + Updated + DuplicatesSkipped + len(Errors) ==
// len(resolved).
//
// Cancelling ctx stops the batch between records. Records already committed
// stay committed; the rest are reported as errors.
func (im *Importer) Import(ctx context.Context, resolved []Resolved, defaults domain.LeadDefaults) domain.ImportOutcome {
	out := domain.ImportOutcome{Errors: []domain.RecordError{}}

	for i := range resolved {
		if ctx.Err() != nil {
			im.failRemaining(&out, resolved[i:], msgCancelled)
			logger.Warn("import cancelled", "processed", i, "total", len(resolved))
			break
		}

		err := im.apply(ctx, &out, &resolved[i], defaults)
		if err != nil {
			switch {
			case IsUnavailable(err):
				im.failRemaining(&out, resolved[i:], msgStoreUnavailable)
				logger.Error("lead store unavailable, stopping batch",
					"processed", i, "total", len(resolved), "error", err)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				im.failRemaining(&out, resolved[i:], msgCancelled)
				logger.Warn("import cancelled", "processed", i, "total", len(resolved))
			default:
				out.Errors = append(out.Errors, recordError(&resolved[i], err.Error()))
				im.report(&out, i+1, len(resolved))
				continue
			}
			break
		}
		im.report(&out, i+1, len(resolved))
	}

	im.emit(&out, len(resolved))
	return out
}

func (im *Importer) apply(ctx context.Context, out *domain.ImportOutcome, r *Resolved, defaults domain.LeadDefaults) error {
	switch r.Disposition.Kind {
	case domain.DispositionSkip:
		out.DuplicatesSkipped++
	case domain.DispositionMerge:
		if err := im.store.UpdateLead(ctx, r.Disposition.ExistingLeadID, &r.Candidate); err != nil {
			return err
		}
		out.Updated++
	default:
		if _, err := im.store.CreateLead(ctx, &r.Candidate, defaultsFor(&r.Candidate, defaults)); err != nil {
			return err
		}
		out.Created++
	}
	return nil
}

// failRemaining reports every record that was not sent to the store as an
// error. Skips need no store call, so they still count as skipped.
func (im *Importer) failRemaining(out *domain.ImportOutcome, rest []Resolved, msg string) {
	for i := range rest {
		if rest[i].Disposition.Kind == domain.DispositionSkip {
			out.DuplicatesSkipped++
			continue
		}
		out.Errors = append(out.Errors, recordError(&rest[i], msg))
	}
}

func (im *Importer) report(out *domain.ImportOutcome, processed, total int) {
	every := im.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	if processed%every == 0 && processed < total {
		im.emit(out, total)
	}
}

func (im *Importer) emit(out *domain.ImportOutcome, total int) {
	if im.OnProgress == nil {
		return
	}
	im.OnProgress(Progress{
		Total:     total,
		Processed: out.Total(),
		Created:   out.Created,
		Updated:   out.Updated,
		Skipped:   out.DuplicatesSkipped,
		Errors:    len(out.Errors),
		UpdatedAt: time.Now().UTC(),
	})
}

func recordError(r *Resolved, msg string) domain.RecordError {
	return domain.RecordError{Contact: r.Candidate.Name, Error: msg, RowIndex: r.Candidate.RawRowIndex}
}

// FailAll builds the outcome of a batch that could not start, for example
// because the duplicate lookup failed. Every candidate becomes an error.
func FailAll(cands []domain.CandidateLead, msg string) domain.ImportOutcome {
	out := domain.ImportOutcome{Errors: make([]domain.RecordError, 0, len(cands))}
	for _, c := range cands {
		out.Errors = append(out.Errors, domain.RecordError{Contact: c.Name, Error: msg, RowIndex: c.RawRowIndex})
	}
	return out
}

// TemperatureFor buckets a warm score into hot, warm or cold.
func TemperatureFor(warmScore int) string {
	switch {
	case warmScore >= 70:
		return domain.TemperatureHot
	case warmScore >= 40:
		return domain.TemperatureWarm
	default:
		return domain.TemperatureCold
	}
}

func defaultsFor(c *domain.CandidateLead, d domain.LeadDefaults) domain.LeadDefaults {
	if d.Temperature == "" || d.Temperature == domain.TemperatureAuto {
		d.Temperature = TemperatureFor(c.WarmScore)
	}
	if c.Status != nil {
		d.Status = *c.Status
	}
	return d
}
