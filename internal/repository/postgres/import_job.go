package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

const defaultJobListLimit = 50

// ImportJobRepo persists the outcome log of committed imports.
type ImportJobRepo struct{ db *sql.DB }

// NewImportJobRepo creates a Postgres-backed import job repository.
func NewImportJobRepo(db *sql.DB) *ImportJobRepo { return &ImportJobRepo{db: db} }

// SaveJob upserts by session id, so a retried save does not duplicate the job.
func (r *ImportJobRepo) SaveJob(ctx context.Context, job *domain.ImportJob) error {
	errs, err := json.Marshal(job.Outcome.Errors)
	if err != nil {
		return fmt.Errorf("encode import errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lead_import_jobs (
			id, organization_id, session_id, filename, source, status, total_records,
			created_count, updated_count, skipped_count, error_count, errors,
			started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_records = EXCLUDED.total_records,
			created_count = EXCLUDED.created_count,
			updated_count = EXCLUDED.updated_count,
			skipped_count = EXCLUDED.skipped_count,
			error_count = EXCLUDED.error_count,
			errors = EXCLUDED.errors,
			completed_at = EXCLUDED.completed_at
	`, job.ID, job.OrganizationID, job.SessionID, job.Filename, string(job.Source), string(job.Status),
		job.TotalRecords, job.Outcome.Created, job.Outcome.Updated, job.Outcome.DuplicatesSkipped,
		len(job.Outcome.Errors), string(errs), job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return classify("save import job", err)
	}
	return nil
}

const jobColumns = `id, organization_id, session_id, filename, source, status, total_records,
	created_count, updated_count, skipped_count, errors, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.ImportJob, error) {
	var (
		j    domain.ImportJob
		errs []byte
	)
	err := row.Scan(&j.ID, &j.OrganizationID, &j.SessionID, &j.Filename, &j.Source, &j.Status,
		&j.TotalRecords, &j.Outcome.Created, &j.Outcome.Updated, &j.Outcome.DuplicatesSkipped,
		&errs, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Outcome.Errors = []domain.RecordError{}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &j.Outcome.Errors); err != nil {
			return nil, fmt.Errorf("decode import errors: %w", err)
		}
	}
	return &j, nil
}

func (r *ImportJobRepo) GetJob(ctx context.Context, orgID, id string) (*domain.ImportJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM lead_import_jobs WHERE organization_id = $1 AND (id = $2 OR session_id = $2)`,
		orgID, id))
	if err == sql.ErrNoRows {
		return nil, leadimport.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (r *ImportJobRepo) ListJobs(ctx context.Context, orgID string, limit int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM lead_import_jobs WHERE organization_id = $1 ORDER BY started_at DESC LIMIT $2`,
		orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
