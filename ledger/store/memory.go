// Package store provides in-process ledger.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/coop-banker/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the latest snapshot in memory. Snapshots are cloned on the
// way in and out, so callers never share state with the store.
type Memory struct {
	mu    sync.RWMutex
	state *ledger.State
	saves int

	// FailSave, when set, is returned by Save instead of persisting.
	FailSave error
}

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWith returns a store that already holds state.
func NewMemoryWith(state *ledger.State) *Memory {
	return &Memory{state: state.Clone()}
}

func (m *Memory) Load(_ context.Context) (*ledger.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, ledger.ErrNoSnapshot
	}
	return m.state.Clone(), nil
}

func (m *Memory) Save(_ context.Context, state *ledger.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}
	m.state = state.Clone()
	m.saves++
	return nil
}

// Saves returns how many snapshots were persisted.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// =============================================================================
// RUN LOG - In-memory ledger.RunRecorder
// =============================================================================

type RunLog struct {
	mu   sync.Mutex
	runs []ledger.Run
}

func (l *RunLog) RecordRun(_ context.Context, run ledger.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

// ListRuns returns up to limit runs, most recent first. A limit of zero or
// less returns every run.
func (l *RunLog) ListRuns(_ context.Context, limit int) ([]ledger.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ledger.Run, 0, len(l.runs))
	for i := len(l.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, l.runs[i])
	}
	return out, nil
}

// Runs returns recorded runs, oldest first.
func (l *RunLog) Runs() []ledger.Run {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Run(nil), l.runs...)
}
