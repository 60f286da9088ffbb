package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

func TestSessionRepo_RoundTrip(t *testing.T) {
	repo := NewSessionRepo()
	ctx := context.Background()

	sess := leadimport.NewSession("org-1")
	require.NoError(t, repo.Save(ctx, sess))

	loaded, err := repo.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "org-1", loaded.OrganizationID)
	assert.NotSame(t, sess, loaded)

	require.NoError(t, repo.SaveProgress(ctx, &leadimport.Progress{SessionID: sess.ID, Processed: 3}))
	p, err := repo.LoadProgress(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Processed)

	require.NoError(t, repo.Delete(ctx, sess.ID))
	_, err = repo.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, leadimport.ErrSessionNotFound)
	_, err = repo.LoadProgress(ctx, sess.ID)
	assert.ErrorIs(t, err, leadimport.ErrSessionNotFound)
}

func TestSessionRepo_OutcomeScopedToOrganization(t *testing.T) {
	repo := NewSessionRepo()
	ctx := context.Background()

	require.NoError(t, repo.SaveOutcome(ctx, "org-1", "s1", &domain.ImportOutcome{Created: 2}))

	o, err := repo.LoadOutcome(ctx, "org-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, o.Created)

	_, err = repo.LoadOutcome(ctx, "org-2", "s1")
	assert.ErrorIs(t, err, leadimport.ErrSessionNotFound)
}

func TestSessionRepo_SaveIfState(t *testing.T) {
	repo := NewSessionRepo()
	ctx := context.Background()

	sess := leadimport.NewSession("org-1")
	assert.ErrorIs(t, repo.SaveIfState(ctx, sess, leadimport.StateIdle), leadimport.ErrSessionNotFound)

	require.NoError(t, repo.Save(ctx, sess))
	sess.State = leadimport.StatePreviewReady
	require.NoError(t, repo.SaveIfState(ctx, sess, leadimport.StateIdle))

	// the stored copy moved on, a stale writer must not overwrite it
	sess.State = leadimport.StateImporting
	err := repo.SaveIfState(ctx, sess, leadimport.StateIdle)
	assert.ErrorIs(t, err, leadimport.ErrInvalidTransition)

	loaded, err := repo.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, leadimport.StatePreviewReady, loaded.State)
}
