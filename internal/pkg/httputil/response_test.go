package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		body   string
	}{
		{"ok", func(w http.ResponseWriter) { OK(w, map[string]int{"n": 1}) }, http.StatusOK, `{"n":1}`},
		{"created", func(w http.ResponseWriter) { Created(w, map[string]string{"id": "x"}) }, http.StatusCreated, `{"id":"x"}`},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "busy") }, http.StatusConflict, `{"error":"busy"}`},
		{"unprocessable", func(w http.ResponseWriter) { Unprocessable(w, "empty") }, http.StatusUnprocessableEntity, `{"error":"empty"}`},
		{"internal hides cause", func(w http.ResponseWriter) { InternalError(w, errors.New("pq: password authentication failed")) }, http.StatusInternalServerError, `{"error":"internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestDecode(t *testing.T) {
	var dst struct {
		Key string `json:"key"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"key":"uploads/a.csv"}`))
	rec := httptest.NewRecorder()
	require.True(t, Decode(rec, req, &dst))
	assert.Equal(t, "uploads/a.csv", dst.Key)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bucket":"x"}`))
	rec = httptest.NewRecorder()
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
