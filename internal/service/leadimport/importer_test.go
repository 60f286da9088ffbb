package leadimport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ignite/lead-import/internal/domain"
)

func resolveAll(cands []domain.CandidateLead) []Resolved {
	return Resolve(cands, LeadIndex{}, Policy{})
}

func assertConserved(t *testing.T, out domain.ImportOutcome, n int) {
	t.Helper()
	if out.Total() != n {
		t.Fatalf("outcome accounts for %d records, want %d: %+v", out.Total(), n, out)
	}
}

func TestImport_RecordSevenRejected(t *testing.T) {
	store := newMockStore()
	store.reject = func(c *domain.CandidateLead) error {
		if c.Name == "Lead 7" {
			return &ValidationError{Field: "email", Message: "invalid email address"}
		}
		return nil
	}

	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("Lead %d", i+1)
	}
	out := NewImporter(store).Import(context.Background(), resolveAll(candidates(names...)), domain.LeadDefaults{})

	if out.Created != 9 {
		t.Fatalf("expected 9 created, got %d", out.Created)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(out.Errors))
	}
	if out.Errors[0].Contact != "Lead 7" || out.Errors[0].Error != "email: invalid email address" {
		t.Fatalf("unexpected error entry: %+v", out.Errors[0])
	}
	if out.Errors[0].RowIndex != 8 {
		t.Fatalf("expected row index 8, got %d", out.Errors[0].RowIndex)
	}
	if store.count() != 9 {
		t.Fatalf("expected 9 leads stored, got %d", store.count())
	}
	assertConserved(t, out, 10)
}

func TestImport_SkipDuplicates(t *testing.T) {
	store := newMockStore()
	store.fingerprints["email:anna@example.com"] = "lead-0"

	cands := candidates("Anna", "Bob")
	resolved := Resolve(cands, LeadIndex{"email:anna@example.com": "lead-0"}, Policy{SkipDuplicates: true})
	out := NewImporter(store).Import(context.Background(), resolved, domain.LeadDefaults{})

	if out.DuplicatesSkipped != 1 || out.Created != 1 || out.Updated != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	assertConserved(t, out, 2)
}

func TestImport_MergeCountsUpdated(t *testing.T) {
	store := newMockStore()
	id, _ := store.CreateLead(context.Background(), &domain.CandidateLead{Name: "Anna", Email: strPtr("anna@example.com")}, domain.LeadDefaults{})

	resolved := Resolve(candidates("Anna"), LeadIndex{"email:anna@example.com": id}, Policy{UpdateExisting: true})
	out := NewImporter(store).Import(context.Background(), resolved, domain.LeadDefaults{})

	if out.Updated != 1 || out.Created != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if store.updates != 1 {
		t.Fatalf("expected 1 update, got %d", store.updates)
	}
}

func TestImport_StoreUnavailableFailsRemainder(t *testing.T) {
	store := newMockStore()
	store.unavailableAfter = 3

	cands := candidates("A", "B", "C", "D", "E", "F")
	resolved := resolveAll(cands)
	resolved[5].Disposition = domain.SkipDuplicate(DuplicateReason)

	out := NewImporter(store).Import(context.Background(), resolved, domain.LeadDefaults{})

	if out.Created != 3 {
		t.Fatalf("expected 3 created, got %d", out.Created)
	}
	if out.DuplicatesSkipped != 1 {
		t.Fatalf("skips need no store call and must still count, got %d", out.DuplicatesSkipped)
	}
	if len(out.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(out.Errors))
	}
	for _, e := range out.Errors {
		if e.Error != msgStoreUnavailable {
			t.Fatalf("unexpected message %q", e.Error)
		}
	}
	if out.Errors[0].Contact != "D" {
		t.Fatalf("expected remainder to start at D, got %s", out.Errors[0].Contact)
	}
	assertConserved(t, out, 6)
}

func TestImport_CancelStopsBetweenRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMockStore()
	store.afterCreate = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	out := NewImporter(store).Import(ctx, resolveAll(candidates("A", "B", "C", "D", "E")), domain.LeadDefaults{})

	if out.Created != 2 {
		t.Fatalf("committed records stay committed: expected 2, got %d", out.Created)
	}
	if len(out.Errors) != 3 || out.Errors[0].Error != msgCancelled {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}
	assertConserved(t, out, 5)
}

type ctxErrStore struct{ *mockStore }

func (s ctxErrStore) CreateLead(context.Context, *domain.CandidateLead, domain.LeadDefaults) (string, error) {
	return "", fmt.Errorf("insert lead: %w", context.DeadlineExceeded)
}

func TestImport_DeadlineFromStoreCancelsBatch(t *testing.T) {
	out := NewImporter(ctxErrStore{newMockStore()}).Import(context.Background(), resolveAll(candidates("A", "B")), domain.LeadDefaults{})
	if len(out.Errors) != 2 || out.Errors[1].Error != msgCancelled {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestImport_ReportsProgress(t *testing.T) {
	store := newMockStore()
	im := NewImporter(store)
	im.ProgressEvery = 2

	var snapshots []Progress
	im.OnProgress = func(p Progress) { snapshots = append(snapshots, p) }
	im.Import(context.Background(), resolveAll(candidates("A", "B", "C", "D", "E")), domain.LeadDefaults{})

	// after 2, after 4, final
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}
	last := snapshots[len(snapshots)-1]
	if last.Processed != 5 || last.Total != 5 || last.Created != 5 {
		t.Fatalf("unexpected final snapshot: %+v", last)
	}
}

func TestImport_EmptyBatch(t *testing.T) {
	out := NewImporter(newMockStore()).Import(context.Background(), nil, domain.LeadDefaults{})
	if out.Total() != 0 || out.Errors == nil {
		t.Fatalf("expected empty outcome with non-nil errors, got %+v", out)
	}
}

func TestImport_AppliesDefaults(t *testing.T) {
	store := newMockStore()
	cands := candidates("Hot", "Cold", "Status")
	cands[0].WarmScore = 85
	cands[1].WarmScore = 10
	cands[2].Status = strPtr("customer")

	NewImporter(store).Import(context.Background(), resolveAll(cands),
		domain.LeadDefaults{Status: "new", Temperature: domain.TemperatureAuto})

	if d := store.defaults["lead-1"]; d.Temperature != domain.TemperatureHot || d.Status != "new" {
		t.Fatalf("unexpected defaults for hot lead: %+v", d)
	}
	if d := store.defaults["lead-2"]; d.Temperature != domain.TemperatureCold {
		t.Fatalf("unexpected defaults for cold lead: %+v", d)
	}
	if d := store.defaults["lead-3"]; d.Status != "customer" {
		t.Fatalf("row status should win, got %+v", d)
	}
}

func TestTemperatureFor(t *testing.T) {
	for score, want := range map[int]string{0: "cold", 39: "cold", 40: "warm", 69: "warm", 70: "hot", 100: "hot"} {
		if got := TemperatureFor(score); got != want {
			t.Errorf("TemperatureFor(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestFailAll(t *testing.T) {
	out := FailAll(candidates("A", "B"), msgStoreUnavailable)
	if len(out.Errors) != 2 || out.Created != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !errors.Is(fmt.Errorf("x: %w", ErrStoreUnavailable), ErrStoreUnavailable) {
		t.Fatal("sentinel must unwrap")
	}
}

func TestSummarize_BoundsErrors(t *testing.T) {
	var o domain.ImportOutcome
	o.Created = 5
	for i := 0; i < 15; i++ {
		o.Errors = append(o.Errors, domain.RecordError{Contact: fmt.Sprint(i), Error: "bad"})
	}
	s := Summarize(o, 0)
	if len(s.Errors) != DefaultMaxReportedErrors || !s.ErrorsTruncated {
		t.Fatalf("expected %d errors truncated, got %d (%v)", DefaultMaxReportedErrors, len(s.Errors), s.ErrorsTruncated)
	}
	if s.Failed != 15 || s.Total != 20 {
		t.Fatalf("counts must stay complete: %+v", s)
	}
	if len(o.Errors) != 15 {
		t.Fatal("outcome must keep every error")
	}
}
