package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/coop-banker/api"
	"github.com/warp/coop-banker/config"
	"github.com/warp/coop-banker/hypixel"
	"github.com/warp/coop-banker/ledger"
	memstore "github.com/warp/coop-banker/ledger/store"
	"github.com/warp/coop-banker/metrics"
	"github.com/warp/coop-banker/store/jsonfile"
	"github.com/warp/coop-banker/store/redisstore"
	"github.com/warp/coop-banker/store/sqlite"
)

// app holds the wired components shared by every command.
type app struct {
	manager *ledger.Manager
	metrics *metrics.Recorder
	runs    api.RunLister

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	st, recorder, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := hypixel.New(cfg.APIKey, cfg.ProfileUUID,
		hypixel.WithBaseURL(cfg.APIBaseURL),
		hypixel.WithLogger(logger.With().Str("component", "hypixel").Logger()),
	)

	var manager *ledger.Manager
	a.metrics = metrics.NewRecorder(func() *ledger.State {
		if manager == nil {
			return nil
		}
		return manager.Snapshot()
	})

	opts := []ledger.ManagerOption{
		ledger.WithLogger(logger.With().Str("component", "ledger").Logger()),
		ledger.WithObserver(a.metrics),
	}
	if recorder != nil {
		opts = append(opts, ledger.WithRunRecorder(recorder))
	}
	manager = ledger.NewManager(st, client, opts...)

	if err := manager.Open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.manager = manager
	return a, nil
}

// openStore returns the configured store and, when it keeps one, its run
// audit.
func (a *app) openStore(ctx context.Context, cfg config.Config) (ledger.Store, ledger.RunRecorder, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.runs = db
		return db, db, nil

	case config.StoreRedis:
		st, client, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Close)
		return st, nil, nil

	case config.StoreMemory:
		runs := &memstore.RunLog{}
		a.runs = runs
		return memstore.NewMemory(), runs, nil

	default:
		return jsonfile.New(cfg.DBPath), nil, nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
