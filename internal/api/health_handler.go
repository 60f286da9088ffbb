package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-import/internal/pkg/httputil"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string                    `json:"status"` // healthy, degraded or unhealthy
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the result of checking one dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // up, down or degraded
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	healthVersion          = "1.0.0"
	failedImportsThreshold = 5
	notConfigured          = "not configured"
)

// criticalChecks make the service unhealthy when they are configured and down.
var criticalChecks = map[string]bool{"database": true}

// dependencyCheck pings one dependency. A nil ping means the dependency was
// not wired.
type dependencyCheck struct {
	name    string
	timeout time.Duration
	slow    time.Duration
	upMsg   string
	ping    func(ctx context.Context) error
}

// HealthChecker reports on the lead store, the session store, the upload
// archive and the recent import log.
type HealthChecker struct {
	db        *sql.DB
	deps      []dependencyCheck
	startTime time.Time
}

// NewHealthChecker wires the checks. Any dependency can be nil.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, archive Pinger) *HealthChecker {
	hc := &HealthChecker{db: db, startTime: time.Now()}

	database := dependencyCheck{name: "database", timeout: 3 * time.Second, slow: time.Second, upMsg: "connected"}
	if db != nil {
		database.ping = db.PingContext
	}
	sessions := dependencyCheck{name: "redis", timeout: 2 * time.Second, slow: 500 * time.Millisecond, upMsg: "connected"}
	if redisClient != nil {
		sessions.ping = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	uploads := dependencyCheck{name: "s3", timeout: 3 * time.Second, upMsg: "bucket accessible"}
	if archive != nil {
		uploads.ping = archive.Ping
	}
	hc.deps = []dependencyCheck{database, sessions, uploads}
	return hc
}

// RegisterRoutes registers /health, /health/live and /health/ready.
func (hc *HealthChecker) RegisterRoutes(r chi.Router) {
	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)
}

// HandleHealth always answers 200; the body carries the aggregate status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  hc.uptime(),
		Checks:  checks,
	})
}

// HandleLiveness answers 200 while the process is serving.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "alive",
		"uptime": hc.uptime(),
	})
}

// HandleReadiness answers 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(hc.deps)+1)

	for _, d := range hc.deps {
		go func(d dependencyCheck) { ch <- result{d.name, d.run(ctx)} }(d)
	}
	go func() { ch <- result{"imports", hc.checkImports(ctx)} }()

	checks := make(map[string]ComponentCheck, len(hc.deps)+1)
	for i := 0; i < len(hc.deps)+1; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (d dependencyCheck) run(ctx context.Context) ComponentCheck {
	if d.ping == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.ping(ctx)
	latency := time.Since(start)

	switch {
	case err != nil:
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	case d.slow > 0 && latency > d.slow:
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: d.upMsg}
}

// checkImports degrades when more than failedImportsThreshold imports
// failed in the last hour.
func (hc *HealthChecker) checkImports(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	var failed int
	err := hc.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lead_import_jobs WHERE status = 'failed' AND completed_at > NOW() - INTERVAL '1 hour'`,
	).Scan(&failed)
	latency := time.Since(start)

	if err != nil {
		// lead_import_jobs is missing until migrations run
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("import log check failed: %v", err)}
	}

	status := "up"
	if failed > failedImportsThreshold {
		status = "degraded"
	}
	return ComponentCheck{
		Status:  status,
		Latency: latency.String(),
		Message: fmt.Sprintf("%d failed imports in the last hour", failed),
	}
}

// determineOverallStatus is unhealthy when a configured critical check is
// down, degraded when anything else configured is down or slow.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	status := "healthy"
	for name, c := range checks {
		configuredDown := c.Status == "down" && c.Message != notConfigured
		if configuredDown && criticalChecks[name] {
			return "unhealthy"
		}
		if configuredDown || c.Status == "degraded" {
			status = "degraded"
		}
	}
	return status
}

func (hc *HealthChecker) uptime() string {
	return time.Since(hc.startTime).Truncate(time.Second).String()
}
