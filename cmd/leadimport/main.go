// Command leadimport previews and imports lead files from the shell, using
// the same pipeline as the HTTP API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/ignite/lead-import/internal/config"
	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/pkg/distlock"
	"github.com/ignite/lead-import/internal/pkg/logger"
	"github.com/ignite/lead-import/internal/repository/memory"
	"github.com/ignite/lead-import/internal/repository/postgres"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

const (
	storeAuto     = "auto"
	storeMemory   = "memory"
	storePostgres = "postgres"
)

type rootOptions struct {
	configPath string
	orgID      string
	store      string
	jsonOut    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "leadimport",
		Short:         "Preview and import lead files (CSV, XLSX, XLS, vCard)",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("LEADIMPORT_CONFIG"), "Path to config.yaml")
	root.PersistentFlags().StringVar(&opts.orgID, "org", "default", "Organization the leads belong to")
	root.PersistentFlags().StringVar(&opts.store, "store", storeAuto, "Lead store: auto, memory or postgres (auto uses postgres when DATABASE_URL is set)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(newPreviewCmd(opts), newImportCmd(opts), newKeywordsCmd(opts))
	return root
}

// app is the wired pipeline for one command run.
type app struct {
	cfg    *config.Config
	svc    *leadimport.Service
	stores leadimport.LeadStoreFactory
	db     *sql.DB
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// newApp loads the config and wires the service. Sessions live in memory
// for the duration of the command.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.LoadFromEnv(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Server.LogLevel))
	logger.SetRedactPII(cfg.Server.Redaction())

	mapper, err := leadimport.MapperFromConfig(cfg.Import)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	deps := leadimport.Deps{
		Sessions: memory.NewSessionRepo(),
		Mapper:   mapper,
	}

	switch kind := resolveStore(opts.store, cfg.Database.URL); kind {
	case storeMemory:
		deps.Stores = memory.NewLeadRepo().ForOrganization
	case storePostgres:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("--store postgres needs DATABASE_URL")
		}
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.db = db
		deps.Stores = postgres.NewLeadRepo(db).ForOrganization
		deps.Jobs = postgres.NewImportJobRepo(db)
		deps.Locks = func(key string) distlock.DistLock {
			return distlock.NewPGAdvisoryLock(db, key)
		}
	default:
		return nil, fmt.Errorf("unknown store %q", opts.store)
	}

	a.stores = deps.Stores
	a.svc = leadimport.NewService(deps, leadimport.SettingsFromConfig(cfg.Import))
	return a, nil
}

func resolveStore(flag, databaseURL string) string {
	if flag != storeAuto {
		return flag
	}
	if databaseURL != "" {
		return storePostgres
	}
	return storeMemory
}

// parseMappings turns repeated field=header flags into a remap patch.
// An empty header unassigns the field.
func parseMappings(values []string) (map[datanorm.CanonicalField]*string, error) {
	patch := make(map[datanorm.CanonicalField]*string, len(values))
	for _, v := range values {
		field, header, ok := strings.Cut(v, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --map %q, want field=header", v)
		}
		f := datanorm.CanonicalField(field)
		if !datanorm.IsCanonicalField(f) {
			return nil, fmt.Errorf("invalid --map %q: unknown field %q", v, field)
		}
		if header = strings.TrimSpace(header); header == "" {
			patch[f] = nil
			continue
		}
		h := header
		patch[f] = &h
	}
	return patch, nil
}
