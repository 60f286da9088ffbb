package leadimport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ignite/lead-import/internal/domain"
)

// mockStore is an in-memory LeadStore for testing.
type mockStore struct {
	mu           sync.Mutex
	leads        map[string]*domain.CandidateLead
	fingerprints map[string]string // first lead wins
	defaults     map[string]domain.LeadDefaults
	creates      int
	updates      int
	lookups      int

	// unavailableAfter > 0 makes every write after that many succeed fail
	// with ErrStoreUnavailable.
	unavailableAfter int
	reject           func(c *domain.CandidateLead) error
	afterCreate      func(n int)
}

func newMockStore() *mockStore {
	return &mockStore{
		leads:        make(map[string]*domain.CandidateLead),
		fingerprints: make(map[string]string),
		defaults:     make(map[string]domain.LeadDefaults),
	}
}

func (m *mockStore) LookupByFingerprint(_ context.Context, fp string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	id, ok := m.fingerprints[fp]
	return id, ok, nil
}

func (m *mockStore) CreateLead(_ context.Context, c *domain.CandidateLead, d domain.LeadDefaults) (string, error) {
	m.mu.Lock()
	if err := m.check(c); err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.creates++
	n := m.creates
	id := fmt.Sprintf("lead-%d", n)
	cp := *c
	m.leads[id] = &cp
	m.defaults[id] = d
	if fp := Fingerprint(c); fp != "" {
		if _, taken := m.fingerprints[fp]; !taken {
			m.fingerprints[fp] = id
		}
	}
	hook := m.afterCreate
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return id, nil
}

func (m *mockStore) UpdateLead(_ context.Context, id string, c *domain.CandidateLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(c); err != nil {
		return err
	}
	l, ok := m.leads[id]
	if !ok {
		return &ValidationError{Field: "id", Message: "lead not found"}
	}
	m.updates++
	l.Name = c.Name
	if c.Phone != nil {
		l.Phone = c.Phone
	}
	return nil
}

func (m *mockStore) check(c *domain.CandidateLead) error {
	if m.unavailableAfter > 0 && m.creates+m.updates >= m.unavailableAfter {
		return fmt.Errorf("insert lead: %w: connection refused", ErrStoreUnavailable)
	}
	if m.reject != nil {
		if err := m.reject(c); err != nil {
			return err
		}
	}
	if c.Email != nil && !strings.Contains(*c.Email, "@") {
		return &ValidationError{Field: "email", Message: "invalid email address"}
	}
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}

func strPtr(s string) *string { return &s }

func candidates(names ...string) []domain.CandidateLead {
	out := make([]domain.CandidateLead, len(names))
	for i, n := range names {
		out[i] = domain.CandidateLead{
			Name:        n,
			Email:       strPtr(strings.ToLower(strings.ReplaceAll(n, " ", ".")) + "@example.com"),
			RawRowIndex: i + 2,
		}
	}
	return out
}
