/*
scheduler.go - Periodic reconciliation scheduler

PURPOSE:
  Runs a reconciliation pass on a fixed interval so the ledger follows the
  bank without anyone opening the dashboard.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs one pass immediately on start
  - A failed pass is logged and retried on the next tick only; the
    previous snapshot stays published meanwhile
  - Passes are serialized by the Manager, so a manual pass and a tick
    never interleave

CONFIGURATION:
  - CheckInterval: How often to run (default: 10 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerReconcile endpoint (manual pass)
  - ledger/manager.go: RunPass
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler is the command the scheduler triggers.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// ReconciliationScheduler runs passes on a ticker.
type ReconciliationScheduler struct {
	Target        Reconciler
	CheckInterval time.Duration
	// PassTimeout bounds a single pass, fetch included.
	PassTimeout time.Duration
	Enabled     bool

	logger zerolog.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(target Reconciler, logger zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Target:        target,
		CheckInterval: 10 * time.Minute,
		PassTimeout:   time.Minute,
		Enabled:       true,
		logger:        logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info().Msg("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.cancel = cancel
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker)

	rs.logger.Info().Dur("interval", rs.CheckInterval).Msg("started")
}

// Stop stops the scheduler. A running pass is cancelled and Stop waits for
// it to return.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		rs.cancel()
		rs.wg.Wait()
		rs.ticker = nil
		rs.cancel = nil
		rs.logger.Info().Msg("stopped")
	}
}

func (rs *ReconciliationScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.pass(ctx)

	for {
		select {
		case <-ticker.C:
			rs.pass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs one pass synchronously.
func (rs *ReconciliationScheduler) RunNow() error {
	return rs.pass(context.Background())
}

func (rs *ReconciliationScheduler) pass(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, rs.PassTimeout)
	defer cancel()

	start := time.Now()
	if err := rs.Target.Reconcile(ctx); err != nil {
		rs.logger.Error().Err(err).Msg("scheduled pass failed, keeping previous snapshot")
		return err
	}
	rs.logger.Debug().Dur("took", time.Since(start)).Msg("scheduled pass completed")
	return nil
}
