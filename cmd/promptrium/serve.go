package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/promptrium/internal/config"
	"github.com/thebtf/promptrium/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API and dashboard",
	Long: `Start the promptrium HTTP server.

The server binds to loopback by default and provides:
  - /             - Dashboard
  - /api/health   - Health check
  - /api/prompts  - Prompt library
  - /api/events   - Server-sent events for live updates

Deleting the database file while the server runs recreates it from memory.
Editing settings.json stops the server so a supervisor can restart it.

Examples:
  promptrium serve               # Start on 127.0.0.1:37790
  promptrium serve --port 4000   # Start on a custom port
  promptrium serve --ephemeral   # Do not touch the database`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if serveHost != "" {
			a.cfg.WorkerHost = serveHost
		}
		if servePort > 0 {
			a.cfg.WorkerPort = servePort
		}

		stop := startWatchers(ctx, a, cancel)
		defer stop()

		srv := &http.Server{
			Addr:              a.cfg.Addr(),
			Handler:           a.svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("Starting promptrium server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: 37790)")

	rootCmd.AddCommand(serveCmd)
}

// startWatchers watches the database for deletion and for writes from other
// processes, and the settings file for edits. It returns a function that
// stops every watcher it started.
func startWatchers(ctx context.Context, a *app, restart context.CancelFunc) func() {
	var watchers []*watcher.Watcher

	if a.store != nil {
		dbPath := a.cfg.DBPath
		reload := func() {
			if err := a.syncFromStore(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to reload library from database")
			}
		}
		// SQLite in WAL mode writes the -wal file first and the main file on
		// checkpoint.
		targets := []struct {
			path     string
			handlers watcher.Handlers
		}{
			{dbPath, watcher.Handlers{
				OnRemove: func() {
					log.Warn().Str("path", dbPath).Msg("Database deleted, recreating...")
					if err := a.reopenStore(ctx); err != nil {
						log.Error().Err(err).Msg("Failed to recreate database after deletion")
					}
				},
				OnChange: reload,
			}},
			{dbPath + "-wal", watcher.Handlers{OnChange: reload}},
		}
		for _, target := range targets {
			w, err := watcher.New(target.path, target.handlers)
			if err != nil {
				log.Warn().Err(err).Str("path", target.path).Msg("Failed to create database watcher")
				continue
			}
			if err := w.Start(); err != nil {
				log.Warn().Err(err).Str("path", target.path).Msg("Failed to start database watcher")
				continue
			}
			log.Info().Str("path", target.path).Msg("Database file watcher started")
			watchers = append(watchers, w)
		}
	}

	configPath := config.SettingsPath()
	w, err := watcher.New(configPath, watcher.Handlers{
		OnChange: func() {
			log.Warn().Str("path", configPath).Msg("Config file changed, stopping for restart...")
			restart()
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
	} else if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
	} else {
		log.Info().Str("path", configPath).Msg("Config file watcher started")
		watchers = append(watchers, w)
	}

	return func() {
		for _, w := range watchers {
			_ = w.Stop()
		}
	}
}
