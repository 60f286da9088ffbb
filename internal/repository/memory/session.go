package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

// SessionRepo keeps import sessions in memory. Values are stored as JSON so
// callers never share a *Session with the repository, as with Redis.
type SessionRepo struct {
	mu       sync.Mutex
	sessions map[string][]byte
	progress map[string][]byte
	outcomes map[string][]byte // org/id → outcome
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions: make(map[string][]byte),
		progress: make(map[string][]byte),
		outcomes: make(map[string][]byte),
	}
}

func (r *SessionRepo) Save(_ context.Context, s *leadimport.Session) error {
	s.UpdatedAt = time.Now().UTC()
	return r.put(r.sessions, s.ID, s)
}

// SaveIfState replaces the session only while the stored copy is in state want.
func (r *SessionRepo) SaveIfState(_ context.Context, s *leadimport.Session, want leadimport.State) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.sessions[s.ID]
	if !ok {
		return leadimport.ErrSessionNotFound
	}
	var stored leadimport.Session
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("unmarshal %s: %w", s.ID, err)
	}
	if stored.State != want {
		return fmt.Errorf("%w: session is %s, not %s", leadimport.ErrInvalidTransition, stored.State, want)
	}
	r.sessions[s.ID] = data
	return nil
}

func (r *SessionRepo) Load(_ context.Context, id string) (*leadimport.Session, error) {
	var s leadimport.Session
	if err := r.get(r.sessions, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.progress, id)
	return nil
}

func (r *SessionRepo) SaveProgress(_ context.Context, p *leadimport.Progress) error {
	return r.put(r.progress, p.SessionID, p)
}

func (r *SessionRepo) LoadProgress(_ context.Context, id string) (*leadimport.Progress, error) {
	var p leadimport.Progress
	if err := r.get(r.progress, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *SessionRepo) SaveOutcome(_ context.Context, orgID, id string, o *domain.ImportOutcome) error {
	return r.put(r.outcomes, orgID+"/"+id, o)
}

func (r *SessionRepo) LoadOutcome(_ context.Context, orgID, id string) (*domain.ImportOutcome, error) {
	var o domain.ImportOutcome
	if err := r.get(r.outcomes, orgID+"/"+id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *SessionRepo) put(m map[string][]byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	r.mu.Lock()
	m[key] = data
	r.mu.Unlock()
	return nil
}

func (r *SessionRepo) get(m map[string][]byte, key string, v interface{}) error {
	r.mu.Lock()
	data, ok := m[key]
	r.mu.Unlock()
	if !ok {
		return leadimport.ErrSessionNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
