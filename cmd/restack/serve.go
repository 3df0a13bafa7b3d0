package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kamostudio/restack/adapters/clock"
	"github.com/kamostudio/restack/adapters/idgen"
	"github.com/kamostudio/restack/adapters/metrics"
	"github.com/kamostudio/restack/adapters/remap"
	"github.com/kamostudio/restack/adapters/sqlite"
	"github.com/kamostudio/restack/app"
	"github.com/kamostudio/restack/config"
	"github.com/kamostudio/restack/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resource engine server",
	Long: `Start the restack server.

The server will:
  - Load configuration from restack.yaml (or --config)
  - Apply RESTACK_* environment variable overrides
  - Load app definitions from the apps directory
  - Serve the resource API and sweep expired resources

Environment variables (for Docker deployments):
  RESTACK_DATABASE_PATH    - Database path (default: restack.db)
  RESTACK_APPS_DIR         - App definitions directory (default: apps)
  RESTACK_SERVER_PORT      - Server port (default: 8080)
  RESTACK_LOG_LEVEL        - Log level: debug, info, warn, error`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	applied, err := db.Migrate()
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if applied > 0 {
		logger.Info().Int("applied", applied).Msg("database migrations applied")
	}

	registry, err := app.NewRegistry(cfg.Apps.Dir, logger)
	if err != nil {
		return fmt.Errorf("load app definitions: %w", err)
	}
	defer registry.Close()

	if cfg.Apps.Watch {
		if err := registry.Watch(); err != nil {
			return fmt.Errorf("watch app definitions: %w", err)
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	store := sqlite.NewResourceStore(db)
	clk := clock.Real{}

	engine := app.NewEngine(app.EngineDeps{
		Types:    registry,
		Store:    store,
		Remapper: remap.New(),
		Clock:    clk,
		IDs:      idgen.UUID{},
		Logger:   logger,
		Metrics:  collector,
	})

	if cfg.Reaper.Enabled {
		reaper := app.NewReaper(store, clk, logger, collector)
		if err := reaper.Start(cfg.Reaper.Schedule); err != nil {
			return fmt.Errorf("start reaper: %w", err)
		}
		defer reaper.Stop()
	}

	handler := web.New(engine, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(cfg.Metrics.Enabled),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stopCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func newLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
