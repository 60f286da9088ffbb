package leadimport

import (
	"context"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/domain"
)

// LeadStore is the lead persistence collaborator, scoped to one organization.
// Every call may fail on its own; implementations wrap connectivity failures
// in ErrStoreUnavailable and record rejections in *ValidationError.
type LeadStore interface {
	// LookupByFingerprint returns the id of an existing lead with the given
	// fingerprint ("email:<addr>" or "phone:<last8>").
	LookupByFingerprint(ctx context.Context, fingerprint string) (id string, found bool, err error)

	// CreateLead inserts a new lead and returns its id.
	CreateLead(ctx context.Context, lead *domain.CandidateLead, defaults domain.LeadDefaults) (string, error)

	// UpdateLead merges lead into an existing one. Non-nil incoming values
	// win; existing values are kept otherwise.
	UpdateLead(ctx context.Context, id string, lead *domain.CandidateLead) error
}

// FingerprintBatcher is implemented by lead stores that can look up many
// fingerprints in one round trip. The result maps fingerprint to lead id and
// omits fingerprints without a match.
type FingerprintBatcher interface {
	LookupFingerprints(ctx context.Context, fingerprints []string) (map[string]string, error)
}

// LeadStoreFactory returns the lead store for an organization.
type LeadStoreFactory func(orgID string) LeadStore

// JobRepository persists the outcome log of committed imports.
type JobRepository interface {
	SaveJob(ctx context.Context, job *domain.ImportJob) error
	GetJob(ctx context.Context, orgID, id string) (*domain.ImportJob, error)
	ListJobs(ctx context.Context, orgID string, limit int) ([]domain.ImportJob, error)
}

// SessionRepository keeps import sessions, their progress and outcomes.
// Returns ErrSessionNotFound for unknown or expired ids.
type SessionRepository interface {
	Save(ctx context.Context, s *Session) error
	// SaveIfState replaces the stored session only while its stored state is
	// want, and returns ErrInvalidTransition otherwise.
	SaveIfState(ctx context.Context, s *Session, want State) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error

	SaveProgress(ctx context.Context, p *Progress) error
	LoadProgress(ctx context.Context, id string) (*Progress, error)

	// Outcomes outlive their session and are scoped to the organization.
	SaveOutcome(ctx context.Context, orgID, id string, o *domain.ImportOutcome) error
	LoadOutcome(ctx context.Context, orgID, id string) (*domain.ImportOutcome, error)
}

// UploadArchive stores raw upload files.
type UploadArchive interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	MarkProcessed(ctx context.Context, key string) (string, error)
}

// Extractor turns a screenshot into loosely typed contact records.
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) ([]datanorm.ExtractedContact, error)
}
