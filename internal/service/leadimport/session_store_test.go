package leadimport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-import/internal/domain"
)

func setupSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewSessionStore(client), mr
}

func TestSessionStore_RoundTrip(t *testing.T) {
	store, mr := setupSessionStore(t)
	ctx := context.Background()

	s := loadedSession(t)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("leadimport:session:" + s.ID); ttl != SessionTTL {
		t.Fatalf("expected TTL %s, got %s", SessionTTL, ttl)
	}

	got, err := store.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.State != StatePreviewReady || len(got.Candidates) != 3 || got.Mapping["name"] != "Name" {
		t.Fatalf("session did not survive the round trip: %+v", got)
	}
	if got.Table == nil || got.Table.Rows[2][0] != "Cleo" {
		t.Fatal("table did not survive the round trip")
	}

	mr.FastForward(SessionTTL + time.Second)
	if _, err := store.Load(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after expiry, got %v", err)
	}
}

func TestSessionStore_ProgressAndDelete(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()

	s := NewSession("org-1")
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.SaveProgress(ctx, &Progress{SessionID: s.ID, State: StateImporting, Total: 10, Processed: 4}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	p, err := store.LoadProgress(ctx, s.ID)
	if err != nil || p.Processed != 4 {
		t.Fatalf("LoadProgress: %+v %v", p, err)
	}

	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.LoadProgress(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("progress should be deleted with the session, got %v", err)
	}
}

func TestSessionStore_OutcomeScopedToOrganization(t *testing.T) {
	store, mr := setupSessionStore(t)
	ctx := context.Background()

	o := &domain.ImportOutcome{Created: 2, Errors: []domain.RecordError{}}
	if err := store.SaveOutcome(ctx, "org-1", "sess-1", o); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}
	got, err := store.LoadOutcome(ctx, "org-1", "sess-1")
	if err != nil || got.Created != 2 {
		t.Fatalf("LoadOutcome: %+v %v", got, err)
	}
	if _, err := store.LoadOutcome(ctx, "org-2", "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("other organizations must not see the outcome, got %v", err)
	}

	// outcomes outlive sessions
	mr.FastForward(SessionTTL + time.Hour)
	if _, err := store.LoadOutcome(ctx, "org-1", "sess-1"); err != nil {
		t.Fatalf("outcome expired too early: %v", err)
	}
}

func TestSessionStore_RedisDown(t *testing.T) {
	store, mr := setupSessionStore(t)
	mr.SetError("LOADING dataset in memory")

	_, err := store.Load(context.Background(), "any")
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected a connection error, got %v", err)
	}
}

func TestSessionStore_SaveIfState(t *testing.T) {
	store, mr := setupSessionStore(t)
	ctx := context.Background()

	s := loadedSession(t)
	if err := store.SaveIfState(ctx, s, StatePreviewReady); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	importing := *s
	if err := importing.BeginImport(); err != nil {
		t.Fatalf("BeginImport: %v", err)
	}
	if err := store.SaveIfState(ctx, &importing, StatePreviewReady); err != nil {
		t.Fatalf("SaveIfState: %v", err)
	}
	if ttl := mr.TTL("leadimport:session:" + s.ID); ttl != SessionTTL {
		t.Fatalf("expected TTL %s, got %s", SessionTTL, ttl)
	}

	// a second writer holding the PreviewReady copy loses
	if err := store.SaveIfState(ctx, &importing, StatePreviewReady); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	got, err := store.Load(ctx, s.ID)
	if err != nil || got.State != StateImporting {
		t.Fatalf("expected importing session, got %+v %v", got, err)
	}
}
