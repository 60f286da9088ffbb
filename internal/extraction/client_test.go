package extraction

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/pkg/httpretry"
)

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "png-bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"contacts":[{"name":"Anna Schmidt","email":"anna@example.com","social":{"instagram":"anna"}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithDoer(srv.URL+"/", "key-1", srv.Client())
	recs, err := c.Extract(context.Background(), []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Anna Schmidt", recs[0]["name"])

	cands, excluded := datanorm.NormalizeExtracted(recs)
	require.Len(t, cands, 1)
	assert.Empty(t, excluded)
	assert.Equal(t, "anna", *cands[0].Social.Instagram)
}

func TestExtract_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"not an image"}`))
	}))
	defer srv.Close()

	_, err := NewClientWithDoer(srv.URL, "", srv.Client()).Extract(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "not an image")
}

func TestExtract_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"contacts":[]}`))
	}))
	defer srv.Close()

	doer := httpretry.NewRetryClient(srv.Client(), 2).WithBackoff(time.Millisecond, 2*time.Millisecond)
	recs, err := NewClientWithDoer(srv.URL, "", doer).Extract(context.Background(), []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 2, calls)
}

func TestExtract_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClientWithDoer(srv.URL, "", srv.Client()).Extract(context.Background(), []byte("x"), "image/png")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}
