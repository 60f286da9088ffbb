package leadimport

import (
	"errors"
	"testing"
	"time"

	"github.com/ignite/lead-import/internal/config"
	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/domain"
)

func loadedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession("org-1")
	if err := s.BeginParsing("leads.csv"); err != nil {
		t.Fatalf("BeginParsing: %v", err)
	}
	src := &datanorm.Source{
		Kind:  datanorm.KindCSV,
		Table: &datanorm.RawTable{Header: []string{"Name"}, Rows: [][]string{{"Anna"}, {"Bob"}, {"Cleo"}}},
	}
	if err := s.Loaded(src, datanorm.ColumnMapping{datanorm.FieldName: "Name"}, candidates("Anna", "Bob", "Cleo"), nil); err != nil {
		t.Fatalf("Loaded: %v", err)
	}
	return s
}

func TestSession_HappyPath(t *testing.T) {
	s := loadedSession(t)
	if s.State != StatePreviewReady || s.Source != domain.SourceCSVImport {
		t.Fatalf("unexpected session: state=%s source=%s", s.State, s.Source)
	}
	if err := s.Remap(s.Mapping, s.Candidates[:1], []int{3, 4}); err != nil {
		t.Fatalf("Remap: %v", err)
	}
	if err := s.BeginImport(); err != nil {
		t.Fatalf("BeginImport: %v", err)
	}
	if err := s.Finish(domain.ImportOutcome{Created: 1}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if s.State != StateDone || s.Outcome == nil || s.Table != nil {
		t.Fatalf("unexpected finished session: %+v", s)
	}
}

func TestSession_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		op   func(s *Session) error
	}{
		{"import from idle", StateIdle, (*Session).BeginImport},
		{"import twice", StateImporting, (*Session).BeginImport},
		{"parse while importing", StateImporting, func(s *Session) error { return s.BeginParsing("x.csv") }},
		{"remap after done", StateDone, func(s *Session) error { return s.Remap(nil, nil, nil) }},
		{"finish before import", StatePreviewReady, func(s *Session) error { return s.Finish(domain.ImportOutcome{}) }},
		{"cancel while importing", StateImporting, (*Session).Cancel},
		{"cancel after done", StateDone, (*Session).Cancel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("org-1")
			s.State = tt.from
			err := tt.op(s)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if s.State != tt.from {
				t.Fatalf("state changed to %s", s.State)
			}
		})
	}
}

func TestSession_ParseFailedReturnsToIdle(t *testing.T) {
	s := NewSession("org-1")
	if err := s.BeginParsing("broken.pdf"); err != nil {
		t.Fatalf("BeginParsing: %v", err)
	}
	if err := s.ParseFailed(datanorm.ErrUnsupportedFormat); err != nil {
		t.Fatalf("ParseFailed: %v", err)
	}
	if s.State != StateIdle {
		t.Fatalf("expected idle, got %s", s.State)
	}
	if s.LastError != datanorm.ErrUnsupportedFormat.Error() || s.Filename != "" {
		t.Fatalf("unexpected session after failure: %+v", s)
	}
	// a new file can be tried on the same session
	if err := s.BeginParsing("leads.csv"); err != nil {
		t.Fatalf("BeginParsing after error: %v", err)
	}
	if s.LastError != "" {
		t.Fatal("LastError should clear on a new attempt")
	}
}

func TestSession_CancelDropsState(t *testing.T) {
	s := loadedSession(t)
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.State != StateIdle || s.Candidates != nil || s.Table != nil {
		t.Fatalf("cancel must drop all partial state: %+v", s)
	}
}

func TestSession_Preview(t *testing.T) {
	s := loadedSession(t)
	p := s.Preview(2)
	if len(p.SampleRows) != 2 || len(p.Candidates) != 2 {
		t.Fatalf("expected 2 sample rows and candidates, got %d/%d", len(p.SampleRows), len(p.Candidates))
	}
	if p.CandidateCount != 3 {
		t.Fatalf("expected full count 3, got %d", p.CandidateCount)
	}
	if p.Headers[0] != "Name" {
		t.Fatalf("unexpected headers %v", p.Headers)
	}

	empty := NewSession("org-1").Preview(5)
	if empty.Candidates == nil {
		t.Fatal("candidates must serialize as an empty list")
	}
}

func TestSession_CanRemap(t *testing.T) {
	s := NewSession("org-1")
	if err := s.LoadExtracted(candidates("Anna"), nil); err != nil {
		t.Fatalf("LoadExtracted: %v", err)
	}
	if s.CanRemap() {
		t.Fatal("extracted sessions have no table to remap")
	}
	if s.Source != domain.SourceScreenshotImport {
		t.Fatalf("unexpected source %s", s.Source)
	}
	if !loadedSession(t).CanRemap() {
		t.Fatal("table sessions can be remapped")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Default().Import
	cfg.SkipDuplicates = true
	cfg.MaxFileMB = 2

	s := SettingsFromConfig(cfg)
	if !s.Policy.SkipDuplicates || s.Policy.UpdateExisting {
		t.Fatalf("unexpected policy %+v", s.Policy)
	}
	if s.MaxFileBytes != 2<<20 {
		t.Fatalf("expected 2 MiB limit, got %d", s.MaxFileBytes)
	}
	if s.DefaultStatus != "new" || s.PreviewRows != 20 {
		t.Fatalf("defaults not carried over: %+v", s)
	}
	if s.CommitLockTTL != 15*time.Minute {
		t.Fatalf("expected 15m commit lock, got %s", s.CommitLockTTL)
	}

	if _, err := MapperFromConfig(cfg); err != nil {
		t.Fatalf("embedded dictionary: %v", err)
	}
	cfg.KeywordsFile = "does-not-exist.yaml"
	if _, err := MapperFromConfig(cfg); err == nil {
		t.Fatal("expected error for missing keywords file")
	}
}
