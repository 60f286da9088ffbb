package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

// LeadRepo stores leads in the leads table. The table carries generated
// lookup columns email_lower and phone_suffix that match fingerprints.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

// ForOrganization returns a lead store scoped to orgID.
func (r *LeadRepo) ForOrganization(orgID string) leadimport.LeadStore {
	return &LeadStore{db: r.db, orgID: orgID}
}

// LeadStore implements leadimport.LeadStore for one organization.
type LeadStore struct {
	db    *sql.DB
	orgID string
}

func lookupColumn(fingerprint string) (column, value string, ok bool) {
	kind, value, found := strings.Cut(fingerprint, ":")
	if !found || value == "" {
		return "", "", false
	}
	switch kind {
	case "email":
		return "email_lower", value, true
	case "phone":
		return "phone_suffix", value, true
	}
	return "", "", false
}

func (s *LeadStore) LookupByFingerprint(ctx context.Context, fingerprint string) (string, bool, error) {
	column, value, ok := lookupColumn(fingerprint)
	if !ok {
		return "", false, nil
	}

	var id string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id FROM leads
		WHERE organization_id = $1 AND %s = $2
		ORDER BY created_at
		LIMIT 1
	`, column), s.orgID, value).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("lookup lead", err)
	}
	return id, true, nil
}

// LookupFingerprints resolves many fingerprints in two queries. The oldest
// lead wins when several share a fingerprint.
func (s *LeadStore) LookupFingerprints(ctx context.Context, fingerprints []string) (map[string]string, error) {
	var emails, phones []string
	for _, fp := range fingerprints {
		column, value, ok := lookupColumn(fp)
		if !ok {
			continue
		}
		if column == "email_lower" {
			emails = append(emails, value)
		} else {
			phones = append(phones, value)
		}
	}

	out := make(map[string]string, len(fingerprints))
	if err := s.lookupMany(ctx, "email_lower", "email:", emails, out); err != nil {
		return nil, err
	}
	if err := s.lookupMany(ctx, "phone_suffix", "phone:", phones, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LeadStore) lookupMany(ctx context.Context, column, prefix string, values []string, out map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT ON (%[1]s) %[1]s, id
		FROM leads
		WHERE organization_id = $1 AND %[1]s = ANY($2)
		ORDER BY %[1]s, created_at
	`, column), s.orgID, pq.Array(values))
	if err != nil {
		return classify("lookup leads", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return classify("scan lead lookup", err)
		}
		out[prefix+key] = id
	}
	return classify("lookup leads", rows.Err())
}

func (s *LeadStore) CreateLead(ctx context.Context, c *domain.CandidateLead, defaults domain.LeadDefaults) (string, error) {
	social, err := socialJSON(c.Social)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (
			id, organization_id, name, email, phone, whatsapp, company, position,
			notes, source, status, temperature, social, warm_score, source_score,
			last_contact_at, follow_up_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
	`, id, s.orgID, c.Name, c.Email, c.Phone, c.WhatsApp, c.Company, c.Position,
		c.Notes, c.Source, defaults.Status, defaults.Temperature, social, c.WarmScore, c.SourceScore,
		c.LastContactAt, defaults.FollowUpAt,
	)
	if err != nil {
		return "", classify("create lead", err)
	}
	return id, nil
}

// UpdateLead merges the candidate into an existing lead: incoming non-empty
// values win, existing values are kept otherwise, social handles are merged
// key by key and the warm score never drops.
func (s *LeadStore) UpdateLead(ctx context.Context, id string, c *domain.CandidateLead) error {
	social, err := socialJSON(c.Social)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET
			name            = COALESCE(NULLIF($3, ''), name),
			email           = COALESCE(NULLIF($4, ''), email),
			phone           = COALESCE(NULLIF($5, ''), phone),
			whatsapp        = COALESCE(NULLIF($6, ''), whatsapp),
			company         = COALESCE(NULLIF($7, ''), company),
			position        = COALESCE(NULLIF($8, ''), position),
			notes           = COALESCE(NULLIF($9, ''), notes),
			social          = CASE WHEN $10::jsonb IS NULL THEN social
			                       ELSE COALESCE(social, '{}'::jsonb) || $10::jsonb END,
			warm_score      = GREATEST(warm_score, $11),
			source_score    = COALESCE($12, source_score),
			last_contact_at = COALESCE($13, last_contact_at),
			updated_at      = NOW()
		WHERE organization_id = $1 AND id = $2
	`, s.orgID, id, c.Name, c.Email, c.Phone, c.WhatsApp, c.Company, c.Position,
		c.Notes, social, c.WarmScore, c.SourceScore, c.LastContactAt,
	)
	if err != nil {
		return classify("update lead", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &leadimport.ValidationError{Field: "id", Message: "lead not found"}
	}
	return nil
}

// socialJSON encodes only the handles that are set, so a merge never
// overwrites a stored handle with null.
func socialJSON(s *domain.Social) (interface{}, error) {
	if s.Count() == 0 {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode social: %w", err)
	}
	return string(data), nil
}
