/*
store.go - Persistence and feed interfaces

PURPOSE:
  Defines the boundary between the reconciliation core and the outside world.
  The core never performs I/O itself: a FeedSource is called before a pass,
  a Store after it.

SNAPSHOT CONTRACT:
  - Load returns ErrNoSnapshot when nothing was ever saved.
  - Save persists every State field; Load(Save(s)) must equal s, including
    journal order and a nil UpgradeCap.
  - Save is all-or-nothing: a failed Save leaves the previous snapshot intact.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite with an append-only journal table
  - store/jsonfile/jsonfile.go: the data.json file format
  - store/redisstore/redis.go: a single Redis key
*/
package ledger

import (
	"context"
	"time"
)

// Store persists ledger snapshots.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// FeedSource fetches the data for one pass.
type FeedSource interface {
	Fetch(ctx context.Context) (Feed, error)
}

// FeedSourceFunc adapts a function to FeedSource.
type FeedSourceFunc func(ctx context.Context) (Feed, error)

func (f FeedSourceFunc) Fetch(ctx context.Context) (Feed, error) { return f(ctx) }

// =============================================================================
// RUN AUDIT - Separate from the journal, tracks every pass attempt
// =============================================================================

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one pass attempt.
type Run struct {
	ID          string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Report      PassReport
	Error       string
}

// RunRecorder stores pass attempts. Optional.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// PassObserver is notified after every pass attempt. Optional.
type PassObserver interface {
	ObservePass(report PassReport, err error)
}
