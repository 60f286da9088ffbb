package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-import/internal/config"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthChecker_AllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectPing()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM lead_import_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hc := NewHealthChecker(db, client, fakePinger{})
	rec := httptest.NewRecorder()
	hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["database"].Status)
	assert.Equal(t, "up", status.Checks["redis"].Status)
	assert.Equal(t, "up", status.Checks["s3"].Status)
	assert.Equal(t, "up", status.Checks["imports"].Status)
}

func TestHealthChecker_ReadinessFailsWhenDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM lead_import_jobs`).WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(db, nil, fakePinger{err: errors.New("forbidden")})
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Ready  bool                      `json:"ready"`
		Status string                    `json:"status"`
		Checks map[string]ComponentCheck `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "not configured", body.Checks["redis"].Message)
	assert.Equal(t, "down", body.Checks["s3"].Status)
}

func TestDetermineOverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]ComponentCheck
		want   string
	}{
		{"all up", map[string]ComponentCheck{"database": {Status: "up"}, "redis": {Status: "up"}}, "healthy"},
		{"optional not configured", map[string]ComponentCheck{"database": {Status: "up"}, "s3": {Status: "down", Message: "not configured"}}, "healthy"},
		{"redis down", map[string]ComponentCheck{"database": {Status: "up"}, "redis": {Status: "down", Message: "ping failed"}}, "degraded"},
		{"many failed imports", map[string]ComponentCheck{"database": {Status: "up"}, "imports": {Status: "degraded"}}, "degraded"},
		{"database down", map[string]ComponentCheck{"database": {Status: "down", Message: "ping failed"}}, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineOverallStatus(tt.checks))
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	hc := NewHealthChecker(nil, nil, nil)
	handler := SetupRoutes(config.ServerConfig{}, NewImportHandlers(nil, nil), hc)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)
}

func TestDependencyCheck_Run(t *testing.T) {
	slow := dependencyCheck{
		name:    "redis",
		timeout: time.Second,
		slow:    time.Millisecond,
		upMsg:   "connected",
		ping: func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		},
	}
	assert.Equal(t, "degraded", slow.run(context.Background()).Status)

	slow.slow = 0
	got := slow.run(context.Background())
	assert.Equal(t, "up", got.Status)
	assert.Equal(t, "connected", got.Message)

	timedOut := dependencyCheck{
		timeout: 10 * time.Millisecond,
		ping: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	got = timedOut.run(context.Background())
	assert.Equal(t, "down", got.Status)
	assert.Contains(t, got.Message, "deadline exceeded")

	assert.Equal(t, notConfigured, dependencyCheck{}.run(context.Background()).Message)
}
