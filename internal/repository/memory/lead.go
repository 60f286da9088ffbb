// Package memory provides in-process repository implementations for tests,
// dry runs and single-node development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

// LeadRepo holds leads of every organization in memory.
type LeadRepo struct {
	mu    sync.Mutex
	leads map[string]map[string]*domain.Lead // org → id → lead
	seq   map[string]uint64                  // id → insertion order
	next  uint64
}

func NewLeadRepo() *LeadRepo {
	return &LeadRepo{leads: make(map[string]map[string]*domain.Lead), seq: make(map[string]uint64)}
}

// ForOrganization returns a lead store scoped to orgID.
func (r *LeadRepo) ForOrganization(orgID string) leadimport.LeadStore {
	return &LeadStore{repo: r, orgID: orgID}
}

// Leads returns a copy of an organization's leads ordered by creation.
func (r *LeadRepo) Leads(orgID string) []domain.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Lead, 0, len(r.leads[orgID]))
	for _, l := range r.leads[orgID] {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out
}

// LeadStore implements leadimport.LeadStore for one organization.
type LeadStore struct {
	repo  *LeadRepo
	orgID string
}

func (s *LeadStore) LookupByFingerprint(_ context.Context, fingerprint string) (string, bool, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()

	kind, value, ok := strings.Cut(fingerprint, ":")
	if !ok || value == "" {
		return "", false, nil
	}
	var matches []*domain.Lead
	for _, l := range s.repo.leads[s.orgID] {
		switch kind {
		case "email":
			if l.Email != nil && strings.ToLower(*l.Email) == value {
				matches = append(matches, l)
			}
		case "phone":
			if l.Phone != nil && leadimport.PhoneSuffix(*l.Phone) == value {
				matches = append(matches, l)
			}
		}
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	// oldest lead wins, same as the Postgres store
	sort.Slice(matches, func(i, j int) bool { return s.repo.seq[matches[i].ID] < s.repo.seq[matches[j].ID] })
	return matches[0].ID, true, nil
}

func (s *LeadStore) CreateLead(_ context.Context, c *domain.CandidateLead, defaults domain.LeadDefaults) (string, error) {
	if err := validate(c); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	l := &domain.Lead{
		ID:             uuid.New().String(),
		OrganizationID: s.orgID,
		Name:           c.Name,
		Email:          c.Email,
		Phone:          c.Phone,
		WhatsApp:       c.WhatsApp,
		Company:        c.Company,
		Position:       c.Position,
		Notes:          c.Notes,
		Source:         c.Source,
		Status:         defaults.Status,
		Temperature:    defaults.Temperature,
		Social:         c.Social,
		WarmScore:      c.WarmScore,
		LastContactAt:  c.LastContactAt,
		FollowUpAt:     defaults.FollowUpAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	if s.repo.leads[s.orgID] == nil {
		s.repo.leads[s.orgID] = make(map[string]*domain.Lead)
	}
	s.repo.leads[s.orgID][l.ID] = l
	s.repo.next++
	s.repo.seq[l.ID] = s.repo.next
	return l.ID, nil
}

func (s *LeadStore) UpdateLead(_ context.Context, id string, c *domain.CandidateLead) error {
	if err := validate(c); err != nil {
		return err
	}
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()

	l, ok := s.repo.leads[s.orgID][id]
	if !ok {
		return &leadimport.ValidationError{Field: "id", Message: "lead not found"}
	}
	l.Name = c.Name
	l.Email = coalesce(c.Email, l.Email)
	l.Phone = coalesce(c.Phone, l.Phone)
	l.WhatsApp = coalesce(c.WhatsApp, l.WhatsApp)
	l.Company = coalesce(c.Company, l.Company)
	l.Position = coalesce(c.Position, l.Position)
	l.Notes = coalesce(c.Notes, l.Notes)
	if c.Social != nil {
		l.Social = mergeSocial(l.Social, c.Social)
	}
	if c.LastContactAt != nil {
		l.LastContactAt = c.LastContactAt
	}
	if c.WarmScore > l.WarmScore {
		l.WarmScore = c.WarmScore
	}
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// validate mirrors the CHECK constraints of the leads table.
func validate(c *domain.CandidateLead) error {
	if strings.TrimSpace(c.Name) == "" {
		return &leadimport.ValidationError{Field: "name", Message: "name is required"}
	}
	if c.Email != nil && !strings.Contains(*c.Email, "@") {
		return &leadimport.ValidationError{Field: "email", Message: "invalid email address"}
	}
	return nil
}

func coalesce(incoming, existing *string) *string {
	if incoming != nil && *incoming != "" {
		return incoming
	}
	return existing
}

func mergeSocial(existing, incoming *domain.Social) *domain.Social {
	if existing == nil {
		cp := *incoming
		return &cp
	}
	merged := *existing
	merged.Instagram = coalesce(incoming.Instagram, merged.Instagram)
	merged.Facebook = coalesce(incoming.Facebook, merged.Facebook)
	merged.LinkedIn = coalesce(incoming.LinkedIn, merged.LinkedIn)
	merged.Twitter = coalesce(incoming.Twitter, merged.Twitter)
	merged.TikTok = coalesce(incoming.TikTok, merged.TikTok)
	merged.Website = coalesce(incoming.Website, merged.Website)
	return &merged
}
