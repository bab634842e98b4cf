package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/thebtf/promptrium/internal/clipboard"
	"github.com/thebtf/promptrium/internal/config"
	gormdb "github.com/thebtf/promptrium/internal/db/gorm"
	"github.com/thebtf/promptrium/internal/metrics"
	"github.com/thebtf/promptrium/internal/persist"
	"github.com/thebtf/promptrium/internal/seed"
	"github.com/thebtf/promptrium/internal/worker"
)

var (
	debug     bool
	ephemeral bool
	dbPath    string
)

// primaryClipboard is the first writer a copy tries.
var primaryClipboard clipboard.Writer = clipboard.SystemWriter{}

var rootCmd = &cobra.Command{
	Use:   "promptrium",
	Short: "Local-first prompt manager",
	Long: `Promptrium keeps a personal library of reusable AI prompts on this machine.

Prompts can be searched, tagged, favorited and copied to the clipboard.
The whole library can be exported to and restored from a JSON file.
"promptrium serve" exposes the same operations over a local HTTP API
with a small dashboard.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(debug)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep data in memory only")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.promptrium/promptrium.db)")
}

// setupLogging writes human-readable logs to stderr so stdout stays free for
// command output.
func setupLogging(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
}

// app bundles the objects every command needs.
type app struct {
	cfg     *config.Config
	adapter *persist.Adapter
	svc     *worker.Service

	mu    sync.Mutex
	store *gormdb.Store
	// seen is the newest kv write the library has loaded, in epoch ms.
	seen int64
}

// openApp loads configuration, opens storage and initializes the service.
func openApp(ctx context.Context) (*app, error) {
	if err := config.EnsureAll(); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if !debug {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	a := &app{cfg: cfg}
	if ephemeral {
		a.adapter = persist.NewAdapter(persist.NewMemoryBackend())
	} else {
		store, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.adapter = persist.NewAdapter(gormdb.NewKVStore(store))
	}

	seeds, err := seed.Load(cfg.SeedPath, cfg.SeedDefaultTags)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.SeedPath).Msg("Failed to load starter prompts")
	}

	a.svc = worker.NewService(worker.Dependencies{
		Version:   Version,
		Config:    cfg,
		Adapter:   a.adapter,
		Clipboard: newClipboard(cfg),
		Metrics:   metrics.New(),
		Seeds:     seeds,
	})
	if err := a.svc.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.store != nil {
		seen, err := latestWrite(ctx, a.store)
		if err != nil {
			log.Debug().Err(err).Msg("Failed to read last write time")
		}
		a.seen = seen
	}
	return a, nil
}

func openStore(cfg *config.Config) (*gormdb.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := gormdb.NewStore(gormdb.Config{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

// reopenStore swaps in a fresh database after the file was removed, then
// writes the in-memory library back to it.
func (a *app) reopenStore(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	store, err := openStore(a.cfg)
	if err != nil {
		return err
	}
	old := a.store
	a.store = store
	a.adapter.SetBackend(gormdb.NewKVStore(store))
	_ = old.Close()

	a.svc.Library().Flush(ctx)
	a.seen, _ = latestWrite(ctx, store)
	return nil
}

// syncFromStore reloads the library when the database holds a write newer
// than the last one loaded, e.g. from another promptrium process.
func (a *app) syncFromStore(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	latest, err := latestWrite(ctx, a.store)
	if err != nil {
		return err
	}
	if latest <= a.seen {
		return nil
	}
	a.seen = latest
	log.Info().Int64("last_write", latest).Msg("Database changed, reloading library")
	return a.svc.Library().Reload(ctx)
}

func latestWrite(ctx context.Context, store *gormdb.Store) (int64, error) {
	kv := gormdb.NewKVStore(store)
	var latest int64
	for _, key := range []string{persist.KeyPrompts, persist.KeySettings} {
		ts, err := kv.LastWrite(ctx, key)
		if err != nil {
			return 0, err
		}
		latest = max(latest, ts)
	}
	return latest, nil
}

// Close disposes the service and closes the database.
func (a *app) Close() {
	if a.svc != nil {
		a.svc.Dispose()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close database")
		}
	}
}

// newClipboard writes to the desktop clipboard and, when enabled, falls back
// to an OSC 52 sequence on stderr.
func newClipboard(cfg *config.Config) *clipboard.Manager {
	var fallback clipboard.Writer
	if cfg.ClipboardOSC52 {
		fallback = clipboard.NewOSC52Writer(os.Stderr)
	}
	return clipboard.NewManager(primaryClipboard, fallback)
}
