package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-import/internal/api"
	"github.com/ignite/lead-import/internal/config"
	"github.com/ignite/lead-import/internal/extraction"
	"github.com/ignite/lead-import/internal/pkg/distlock"
	"github.com/ignite/lead-import/internal/pkg/logger"
	"github.com/ignite/lead-import/internal/repository/postgres"
	"github.com/ignite/lead-import/internal/service/leadimport"
	"github.com/ignite/lead-import/internal/storage"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

// lockRedis returns the client commit locks should use, or nil when Redis
// is unreachable at startup so the locks fall back to Postgres.
func lockRedis(ctx context.Context, client *redis.Client) *redis.Client {
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, commit locks fall back to postgres", "error", err)
		return nil
	}
	return client
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := flag.String("config", os.Getenv("LEADIMPORT_CONFIG"), "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Server.LogLevel))
	logger.SetRedactPII(cfg.Server.Redaction())

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL: lead store and import job log
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime())

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		return fmt.Errorf("ping database %s: %w", extractHost(cfg.Database.URL), err)
	}
	logger.Info("connected to database", "host", extractHost(cfg.Database.URL))

	// Redis: sessions, progress, outcomes and commit locks
	if cfg.Redis.URL == "" {
		return errors.New("REDIS_URL is required")
	}
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	lockClient := lockRedis(ctx, redisClient)

	mapper, err := leadimport.MapperFromConfig(cfg.Import)
	if err != nil {
		return err
	}

	leads := postgres.NewLeadRepo(db)
	lockTTL := cfg.Import.CommitLockTTL()
	deps := leadimport.Deps{
		Sessions: leadimport.NewSessionStore(redisClient),
		Stores:   leads.ForOrganization,
		Mapper:   mapper,
		Jobs:     postgres.NewImportJobRepo(db),
		Locks: func(key string) distlock.DistLock {
			return distlock.NewLock(lockClient, db, key, lockTTL)
		},
	}

	// S3 upload archive (optional)
	var pending api.PendingLister
	var archivePinger api.Pinger
	if cfg.Storage.Enabled() {
		archive, err := storage.NewS3Archive(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("init upload archive: %w", err)
		}
		archive.SetMaxBytes(cfg.Import.MaxFileBytes())
		deps.Archive = archive
		pending = archive
		archivePinger = archive
		logger.Info("upload archive enabled", "bucket", cfg.Storage.S3Bucket, "region", cfg.Storage.S3Region)
	} else {
		logger.Info("upload archive disabled (no bucket configured)")
	}

	// Screenshot extraction (optional)
	if cfg.Extraction.BaseURL != "" {
		deps.Extractor = extraction.NewClient(cfg.Extraction)
		logger.Info("screenshot extraction enabled", "base_url", cfg.Extraction.BaseURL)
	}

	svc := leadimport.NewService(deps, leadimport.SettingsFromConfig(cfg.Import))
	health := api.NewHealthChecker(db, redisClient, archivePinger)
	server := api.NewServer(cfg.Server, api.NewImportHandlers(svc, pending), health)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
		logger.Info("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Cancel background tasks
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
