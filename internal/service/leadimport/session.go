package leadimport

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/domain"
)

// State is the position of an import session in its lifecycle:
//
//	Idle → Parsing → PreviewReady ⟲ (remap) → Importing → Done
//	           ↘ Error → Idle
type State string

const (
	StateIdle         State = "idle"
	StateParsing      State = "parsing"
	StatePreviewReady State = "preview_ready"
	StateImporting    State = "importing"
	StateDone         State = "done"
	StateError        State = "error"
)

var transitions = map[State][]State{
	StateIdle:         {StateParsing, StatePreviewReady},
	StateParsing:      {StatePreviewReady, StateError},
	StateError:        {StateIdle},
	StatePreviewReady: {StatePreviewReady, StateImporting},
	StateImporting:    {StateDone},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one import wizard run. It is plain data so it can be stored as
// JSON between requests.
type Session struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	State          State             `json:"state"`
	Filename       string            `json:"filename,omitempty"`
	Kind           datanorm.FileKind `json:"kind,omitempty"`
	Source         domain.LeadSource `json:"source,omitempty"`
	ArchiveKey     string            `json:"archive_key,omitempty"`

	Table   *datanorm.RawTable     `json:"table,omitempty"`
	Cards   []datanorm.ParsedVCard `json:"cards,omitempty"`
	Mapping datanorm.ColumnMapping `json:"mapping,omitempty"`

	Candidates     []domain.CandidateLead `json:"candidates,omitempty"`
	Excluded       []int                  `json:"excluded,omitempty"`
	Warnings       []string               `json:"warnings,omitempty"`
	MalformedCount int                    `json:"malformed_count"`

	Outcome   *domain.ImportOutcome `json:"outcome,omitempty"`
	LastError string                `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an idle session for an organization.
func NewSession(orgID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		State:          StateIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Session) transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// BeginParsing starts decoding a file.
func (s *Session) BeginParsing(filename string) error {
	if err := s.transition(StateParsing); err != nil {
		return err
	}
	s.Filename = filename
	s.LastError = ""
	return nil
}

// ParseFailed rejects the file: the session passes through Error back to
// Idle with no partial state kept, only the message.
func (s *Session) ParseFailed(cause error) error {
	if err := s.transition(StateError); err != nil {
		return err
	}
	s.reset()
	s.LastError = cause.Error()
	return s.transition(StateIdle)
}

// Loaded stores the decoded file and its first normalization.
func (s *Session) Loaded(src *datanorm.Source, mapping datanorm.ColumnMapping, cands []domain.CandidateLead, excluded []int) error {
	if err := s.transition(StatePreviewReady); err != nil {
		return err
	}
	s.Kind = src.Kind
	s.Source = datanorm.SourceFor(src.Kind)
	s.Table = src.Table
	s.Cards = src.Cards
	s.Warnings = src.Warnings
	s.MalformedCount = src.MalformedCount
	s.Mapping = mapping
	s.Candidates = cands
	s.Excluded = excluded
	return nil
}

// LoadExtracted starts a session from pre-normalized extraction records,
// skipping file parsing.
func (s *Session) LoadExtracted(cands []domain.CandidateLead, excluded []int) error {
	if err := s.transition(StatePreviewReady); err != nil {
		return err
	}
	s.Source = domain.SourceScreenshotImport
	s.Candidates = cands
	s.Excluded = excluded
	return nil
}

// Remap replaces the mapping and the candidates derived from it.
func (s *Session) Remap(mapping datanorm.ColumnMapping, cands []domain.CandidateLead, excluded []int) error {
	if err := s.transition(StatePreviewReady); err != nil {
		return err
	}
	s.Mapping = mapping
	s.Candidates = cands
	s.Excluded = excluded
	return nil
}

// BeginImport freezes the candidates for commit.
func (s *Session) BeginImport() error {
	return s.transition(StateImporting)
}

// Finish records the outcome. An import always finishes, whatever the
// per-record errors.
func (s *Session) Finish(outcome domain.ImportOutcome) error {
	if err := s.transition(StateDone); err != nil {
		return err
	}
	s.Outcome = &outcome
	s.Table = nil
	s.Cards = nil
	return nil
}

// Cancel abandons the session before import. Nothing has been written at
// that point, so dropping the state is enough.
func (s *Session) Cancel() error {
	switch s.State {
	case StateIdle, StateParsing, StatePreviewReady:
		s.reset()
		s.LastError = ""
		s.State = StateIdle
		s.UpdatedAt = time.Now().UTC()
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel in state %s", ErrInvalidTransition, s.State)
	}
}

// CanRemap reports whether the mapping applies to this session, i.e. it was
// loaded from a spreadsheet.
func (s *Session) CanRemap() bool {
	return s.Table != nil
}

func (s *Session) reset() {
	s.Filename = ""
	s.Kind = ""
	s.Source = ""
	s.ArchiveKey = ""
	s.Table = nil
	s.Cards = nil
	s.Mapping = nil
	s.Candidates = nil
	s.Excluded = nil
	s.Warnings = nil
	s.MalformedCount = 0
}

// Preview is the user-facing summary of a session awaiting confirmation.
type Preview struct {
	SessionID      string                 `json:"session_id"`
	State          State                  `json:"state"`
	Filename       string                 `json:"filename,omitempty"`
	Kind           datanorm.FileKind      `json:"kind,omitempty"`
	Headers        []string               `json:"headers,omitempty"`
	Mapping        datanorm.ColumnMapping `json:"mapping,omitempty"`
	SampleRows     [][]string             `json:"sample_rows,omitempty"`
	Candidates     []domain.CandidateLead `json:"candidates"`
	CandidateCount int                    `json:"candidate_count"`
	Excluded       []int                  `json:"excluded_rows,omitempty"`
	Warnings       []string               `json:"warnings,omitempty"`
	MalformedCount int                    `json:"malformed_count"`
	Outcome        *domain.ImportOutcome  `json:"outcome,omitempty"`
	LastError      string                 `json:"last_error,omitempty"`
}

// Preview builds the summary, limiting sample rows and candidates to rows.
func (s *Session) Preview(rows int) Preview {
	p := Preview{
		SessionID:      s.ID,
		State:          s.State,
		Filename:       s.Filename,
		Kind:           s.Kind,
		Mapping:        s.Mapping,
		Candidates:     head(s.Candidates, rows),
		CandidateCount: len(s.Candidates),
		Excluded:       s.Excluded,
		Warnings:       s.Warnings,
		MalformedCount: s.MalformedCount,
		Outcome:        s.Outcome,
		LastError:      s.LastError,
	}
	if s.Table != nil {
		p.Headers = s.Table.Header
		p.SampleRows = head(s.Table.Rows, rows)
	}
	if p.Candidates == nil {
		p.Candidates = []domain.CandidateLead{}
	}
	return p
}

func head[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n]
}
