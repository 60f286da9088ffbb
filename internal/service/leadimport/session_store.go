package leadimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-import/internal/domain"
)

const (
	SessionTTL = 24 * time.Hour
	OutcomeTTL = 7 * 24 * time.Hour
)

// SessionStore keeps sessions, progress and outcomes in Redis as JSON.
type SessionStore struct {
	redis      *redis.Client
	sessionTTL time.Duration
	outcomeTTL time.Duration
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{redis: client, sessionTTL: SessionTTL, outcomeTTL: OutcomeTTL}
}

func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, s.sessionKey(sess.ID), data, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// SaveIfState replaces the session only while the stored copy is in state
// want. The key is watched, so a concurrent write between the check and the
// set aborts the transaction.
func (s *SessionStore) SaveIfState(ctx context.Context, sess *Session, want State) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := s.sessionKey(sess.ID)

	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		var stored struct {
			State State `json:"state"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if stored.State != want {
			return fmt.Errorf("%w: session is %s, not %s", ErrInvalidTransition, stored.State, want)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.sessionTTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: session %s changed concurrently", ErrInvalidTransition, sess.ID)
	}
	if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return err
}

func (s *SessionStore) Load(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := s.getJSON(ctx, s.sessionKey(id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes the session and its progress. A stored outcome is kept
// until it expires.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.sessionKey(id), s.progressKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (s *SessionStore) SaveProgress(ctx context.Context, p *Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.redis.Set(ctx, s.progressKey(p.SessionID), data, s.sessionTTL).Err()
}

func (s *SessionStore) LoadProgress(ctx context.Context, id string) (*Progress, error) {
	var p Progress
	if err := s.getJSON(ctx, s.progressKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type storedOutcome struct {
	OrganizationID string               `json:"organization_id"`
	Outcome        domain.ImportOutcome `json:"outcome"`
}

func (s *SessionStore) SaveOutcome(ctx context.Context, orgID, id string, o *domain.ImportOutcome) error {
	data, err := json.Marshal(storedOutcome{OrganizationID: orgID, Outcome: *o})
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := s.redis.Set(ctx, s.outcomeKey(id), data, s.outcomeTTL).Err(); err != nil {
		return fmt.Errorf("save outcome %s: %w", id, err)
	}
	return nil
}

func (s *SessionStore) LoadOutcome(ctx context.Context, orgID, id string) (*domain.ImportOutcome, error) {
	var stored storedOutcome
	if err := s.getJSON(ctx, s.outcomeKey(id), &stored); err != nil {
		return nil, err
	}
	if stored.OrganizationID != orgID {
		return nil, ErrSessionNotFound
	}
	return &stored.Outcome, nil
}

func (s *SessionStore) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("leadimport:session:%s", id)
}

func (s *SessionStore) progressKey(id string) string {
	return fmt.Sprintf("leadimport:progress:%s", id)
}

func (s *SessionStore) outcomeKey(id string) string {
	return fmt.Sprintf("leadimport:outcome:%s", id)
}
