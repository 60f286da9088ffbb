package domain

import "time"

// DispositionKind enumerates the outcomes the resolver can decide for a candidate.
type DispositionKind string

const (
	DispositionCreate DispositionKind = "create"
	DispositionMerge  DispositionKind = "merge"
	DispositionSkip   DispositionKind = "skip"
)

// Disposition is the decided outcome for one candidate, prior to commit.
// ExistingLeadID is set for DispositionMerge, Reason for DispositionSkip.
type Disposition struct {
	Kind           DispositionKind `json:"kind"`
	ExistingLeadID string          `json:"existing_lead_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// Create returns a create disposition.
func Create() Disposition { return Disposition{Kind: DispositionCreate} }

// MergeInto returns a merge disposition targeting an existing lead.
func MergeInto(leadID string) Disposition {
	return Disposition{Kind: DispositionMerge, ExistingLeadID: leadID}
}

// SkipDuplicate returns a skip disposition with the given reason.
func SkipDuplicate(reason string) Disposition {
	return Disposition{Kind: DispositionSkip, Reason: reason}
}

// RecordError is one per-record failure in an import outcome.
type RecordError struct {
	Contact  string `json:"contact,omitempty"`
	Error    string `json:"error"`
	RowIndex int    `json:"row_index,omitempty"`
}

// ImportOutcome is the aggregate result of a committed batch.
// Created + Updated + DuplicatesSkipped + len(Errors) always equals the number
// of candidates submitted.
type ImportOutcome struct {
	Created           int           `json:"created"`
	Updated           int           `json:"updated"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	Errors            []RecordError `json:"errors"`
}

// Total returns the number of candidates accounted for by the outcome.
func (o ImportOutcome) Total() int {
	return o.Created + o.Updated + o.DuplicatesSkipped + len(o.Errors)
}

// ImportJobStatus enumerates the states of a persisted import job.
type ImportJobStatus string

const (
	ImportJobCompleted ImportJobStatus = "completed"
	ImportJobFailed    ImportJobStatus = "failed"
)

// ImportJob is the persisted record of one committed import session.
type ImportJob struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	SessionID      string          `json:"session_id" db:"session_id"`
	Filename       string          `json:"filename" db:"filename"`
	Source         LeadSource      `json:"source" db:"source"`
	Status         ImportJobStatus `json:"status" db:"status"`
	TotalRecords   int             `json:"total_records" db:"total_records"`
	Outcome        ImportOutcome   `json:"outcome" db:"outcome"`
	StartedAt      time.Time       `json:"started_at" db:"started_at"`
	CompletedAt    time.Time       `json:"completed_at" db:"completed_at"`
}
