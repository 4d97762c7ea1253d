/*
manager.go - Pass orchestration and snapshot publication

PURPOSE:
  The Manager owns the ledger between passes. It is the only writer:
  reconciliation passes and manual transfers go through it, one at a time.
  Readers get the last complete snapshot and never see a pass in progress.

PASS FLOW:
  1. Fetch the feed (I/O, before any mutation)
  2. Reconcile against the current snapshot (pure, on a clone)
  3. Save the new state (I/O)
  4. Publish it to readers

  Any failure before step 4 keeps both the persisted and published snapshot
  at the last known-good state, so a retried pass starts from it.

SEE ALSO:
  - reconcile.go: the pass itself
  - api/scheduler.go: periodic passes
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Manager struct {
	store      Store
	source     FeedSource
	reconciler Reconciler
	recorder   RunRecorder
	observer   PassObserver
	logger     zerolog.Logger

	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[State]
}

type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.reconciler.Now = now }
}

func WithRunRecorder(recorder RunRecorder) ManagerOption {
	return func(m *Manager) { m.recorder = recorder }
}

func WithObserver(observer PassObserver) ManagerOption {
	return func(m *Manager) { m.observer = observer }
}

func NewManager(store Store, source FeedSource, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, source: source, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	m.reconciler.Logger = m.logger
	m.snapshot.Store(NewState())
	return m
}

// Open loads the persisted snapshot. A store that was never written starts
// an empty ledger.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		m.logger.Info().Msg("no ledger snapshot, starting empty")
		state = NewState()
	case err != nil:
		return fmt.Errorf("loading ledger snapshot: %w", err)
	}
	if state.Balances == nil {
		state.Balances = make(map[Username]decimal.Decimal)
	}

	m.snapshot.Store(state)
	m.logger.Info().
		Int("operations", len(state.Journal)).
		Int("members", len(state.Balances)).
		Str("cursor", state.Cursor.String()).
		Msg("ledger loaded")
	return nil
}

// Snapshot returns the last complete state. Callers must not modify it.
func (m *Manager) Snapshot() *State {
	return m.snapshot.Load()
}

// RunPass fetches the feed and runs one reconciliation pass.
func (m *Manager) RunPass(ctx context.Context) (PassReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := Run{ID: uuid.NewString(), StartedAt: m.reconciler.now()}
	report, err := m.runPassLocked(ctx)

	run.CompletedAt = m.reconciler.now()
	run.Report = report
	run.Status = RunCompleted
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		m.logger.Error().Err(err).Str("run", run.ID).Msg("reconciliation pass failed")
	}

	if m.recorder != nil {
		if recErr := m.recorder.RecordRun(ctx, run); recErr != nil {
			m.logger.Warn().Err(recErr).Str("run", run.ID).Msg("failed to record run")
		}
	}
	if m.observer != nil {
		m.observer.ObservePass(report, err)
	}
	return report, err
}

func (m *Manager) runPassLocked(ctx context.Context) (PassReport, error) {
	feed, err := m.source.Fetch(ctx)
	if err != nil {
		return PassReport{}, fmt.Errorf("fetching feed: %w", err)
	}

	next, report, err := m.reconciler.Reconcile(m.snapshot.Load(), feed)
	if err != nil {
		return PassReport{}, fmt.Errorf("reconciling: %w", err)
	}

	if err := m.store.Save(ctx, next); err != nil {
		return PassReport{}, fmt.Errorf("saving ledger snapshot: %w", err)
	}
	m.snapshot.Store(next)

	m.logger.Info().
		Int("new", report.NewEntries).
		Bool("anomaly", report.Anomaly).
		Str("drift", report.Drift.String()).
		Msg("reconciliation pass completed")
	return report, nil
}

// Transfer records a manual transfer between two known members. It is
// journaled at the current time and does not move the feed cursor.
func (m *Manager) Transfer(ctx context.Context, amount decimal.Decimal, sender, receiver Username) (Entry, error) {
	if !amount.IsPositive() {
		return Entry{}, fmt.Errorf("%w: transfer amount must be positive, got %s", ErrInvalidAmount, amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := Entry{At: TimestampOf(m.reconciler.now()), Operation: PlayerTransfer(amount, sender, receiver)}
	next := m.snapshot.Load().Clone()
	if err := next.Apply(entry); err != nil {
		return Entry{}, err
	}

	if err := m.store.Save(ctx, next); err != nil {
		return Entry{}, fmt.Errorf("saving ledger snapshot: %w", err)
	}
	m.snapshot.Store(next)

	m.logger.Info().Msg(entry.Operation.String())
	return entry, nil
}
