/*
main.go - Application entry point

PURPOSE:
  Starts the co-op bank tracker. Handles configuration, dependency
  injection, and graceful shutdown.

COMMANDS:
  serve       Run the HTTP server and the periodic reconciliation scheduler
  reconcile   Run a single pass against the configured store and exit

STARTUP SEQUENCE (serve):
  1. Load configuration (YAML file, then environment)
  2. Open the configured store and load the last snapshot
  3. Create the feed client, metrics recorder and Manager
  4. Configure the HTTP router
  5. Start the scheduler and the server, with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (a running pass is allowed to finish)
  2. Stop accepting new connections and close websockets
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

EXAMPLES:
  HYPIXEL_API_KEY=... PROFILE_UUID=... ./server serve
  ./server serve --config coopbank.yaml --addr :3000
  ./server reconcile --store sqlite --db ./data/coopbank.db

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/warp/coop-banker/api"
	"github.com/warp/coop-banker/config"
)

type flags struct {
	configPath string
	addr       string
	store      string
	db         string
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "coopbank",
		Short:         "Tracks each member's share of a SkyBlock co-op bank",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&f.store, "store", "", "store backend: json, sqlite, redis or memory")
	root.PersistentFlags().StringVar(&f.db, "db", "", "data.json or SQLite database path")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and periodic reconciliation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	serve.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address")

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd.Context(), f)
		},
	}

	root.AddCommand(serve, reconcile)
	return root
}

// loadConfig applies command-line flags over the file and environment.
func loadConfig(f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.store != "" {
		cfg.Store = f.store
	}
	if f.db != "" {
		cfg.DBPath = f.db
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	zerolog.SetGlobalLevel(cfg.Level())
	return cfg, nil
}

func runServe(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	app, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	handler := api.NewHandler(app.manager, log.Logger)
	handler.Runs = app.runs
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        app.metrics.Handler(),
	})

	scheduler := api.NewReconciliationScheduler(handler, log.Logger)
	scheduler.CheckInterval = cfg.FetchInterval
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("shutting down")
	scheduler.Stop()
	handler.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func runReconcile(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	app, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	report, err := app.manager.RunPass(ctx)
	if err != nil {
		return err
	}

	state := app.manager.Snapshot()
	event := log.Info().
		Int("new", report.NewEntries).
		Bool("anomaly", report.Anomaly).
		Str("drift", report.Drift.String()).
		Str("balance", state.Balance.String())
	if report.UpgradeCap != nil {
		event = event.Int64("upgrade_cap", *report.UpgradeCap)
	}
	event.Msg("reconciled")
	for name, amount := range state.Balances {
		log.Info().Str("member", string(name)).Str("balance", amount.String()).Send()
	}
	return nil
}
