package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coop-banker/ledger"
	"github.com/warp/coop-banker/ledger/ledgertest"
	"github.com/warp/coop-banker/ledger/store"
)

func staticFeed(feed ledger.Feed) ledger.FeedSource {
	return ledger.FeedSourceFunc(func(context.Context) (ledger.Feed, error) { return feed, nil })
}

type passSpy struct {
	mu      sync.Mutex
	reports []ledger.PassReport
	errs    []error
}

func (s *passSpy) ObservePass(report ledger.PassReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	s.errs = append(s.errs, err)
}

func newManager(t *testing.T, st ledger.Store, source ledger.FeedSource, opts ...ledger.ManagerOption) *ledger.Manager {
	t.Helper()
	opts = append([]ledger.ManagerOption{ledger.WithClock(fixedClock(10_000))}, opts...)
	m := ledger.NewManager(st, source, opts...)
	require.NoError(t, m.Open(context.Background()))
	return m
}

// =============================================================================
// OPEN
// =============================================================================

func TestManager_OpenWithoutSnapshot(t *testing.T) {
	m := newManager(t, store.NewMemory(), staticFeed(sampleFeed()))

	snap := m.Snapshot()
	assert.Equal(t, ledger.CurrentVersion, snap.Version)
	assert.Empty(t, snap.Journal)
	assert.NotNil(t, snap.Balances)
}

func TestManager_OpenLoadsSnapshot(t *testing.T) {
	m := newManager(t, store.NewMemoryWith(ledgertest.SampleState()), staticFeed(sampleFeed()))

	ledgertest.AssertStateEqual(t, ledgertest.SampleState(), m.Snapshot())
}

type brokenStore struct{ err error }

func (b brokenStore) Load(context.Context) (*ledger.State, error) { return nil, b.err }
func (b brokenStore) Save(context.Context, *ledger.State) error   { return b.err }

func TestManager_OpenPropagatesLoadErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	m := ledger.NewManager(brokenStore{err: boom}, staticFeed(sampleFeed()))

	err := m.Open(context.Background())

	assert.ErrorIs(t, err, boom)
}

// =============================================================================
// RECONCILIATION PASSES
// =============================================================================

func TestManager_RunPassPersistsAndPublishes(t *testing.T) {
	// GIVEN: An empty store, a run log and an observer
	mem := store.NewMemory()
	runs := &store.RunLog{}
	spy := &passSpy{}
	m := newManager(t, mem, staticFeed(sampleFeed()), ledger.WithRunRecorder(runs), ledger.WithObserver(spy))

	// WHEN: One pass runs
	report, err := m.RunPass(context.Background())

	// THEN: The new state is saved, published, recorded and observed
	require.NoError(t, err)
	assert.Equal(t, 4, report.NewEntries)
	assert.Equal(t, 1, mem.Saves())

	saved, err := mem.Load(context.Background())
	require.NoError(t, err)
	ledgertest.AssertStateEqual(t, saved, m.Snapshot())
	assert.Equal(t, ledger.Timestamp(400), m.Snapshot().Cursor)

	recorded := runs.Runs()
	require.Len(t, recorded, 1)
	assert.Equal(t, ledger.RunCompleted, recorded[0].Status)
	assert.NotEmpty(t, recorded[0].ID)
	assert.Empty(t, recorded[0].Error)

	require.Len(t, spy.errs, 1)
	assert.NoError(t, spy.errs[0])
}

func TestManager_FetchFailureLeavesStateUntouched(t *testing.T) {
	// GIVEN: A ledger with history and a feed that is down
	mem := store.NewMemoryWith(ledgertest.SampleState())
	runs := &store.RunLog{}
	spy := &passSpy{}
	source := ledger.FeedSourceFunc(func(context.Context) (ledger.Feed, error) {
		return ledger.Feed{}, ledger.ErrFeedUnavailable
	})
	m := newManager(t, mem, source, ledger.WithRunRecorder(runs), ledger.WithObserver(spy))

	// WHEN: A pass runs
	_, err := m.RunPass(context.Background())

	// THEN: Nothing is saved and the snapshot is the previous one
	require.ErrorIs(t, err, ledger.ErrFeedUnavailable)
	assert.Zero(t, mem.Saves())
	ledgertest.AssertStateEqual(t, ledgertest.SampleState(), m.Snapshot())

	recorded := runs.Runs()
	require.Len(t, recorded, 1)
	assert.Equal(t, ledger.RunFailed, recorded[0].Status)
	assert.Contains(t, recorded[0].Error, "fetching feed")

	require.Len(t, spy.errs, 1)
	assert.Error(t, spy.errs[0])
}

func TestManager_SaveFailureDoesNotPublish(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(t, mem, staticFeed(sampleFeed()))
	mem.FailSave = errors.New("read-only filesystem")

	_, err := m.RunPass(context.Background())

	require.Error(t, err)
	assert.Empty(t, m.Snapshot().Journal)
	assert.Zero(t, m.Snapshot().Cursor)

	// The next pass starts again from the last good state
	mem.FailSave = nil
	report, err := m.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.NewEntries)
}

func TestManager_RepeatedPassesAreIdempotent(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(t, mem, staticFeed(sampleFeed()))

	_, err := m.RunPass(context.Background())
	require.NoError(t, err)
	report, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.NewEntries)
	assert.Len(t, m.Snapshot().Journal, 4)
	assert.Equal(t, 2, mem.Saves())
}

func TestManager_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	m := newManager(t, store.NewMemory(), staticFeed(sampleFeed()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := m.Snapshot()
				n := len(snap.Journal)
				assert.True(t, n == 0 || n == 4, "partial journal of %d entries", n)
			}
		}()
	}
	_, err := m.RunPass(context.Background())
	wg.Wait()

	require.NoError(t, err)
}

// =============================================================================
// MANUAL TRANSFERS
// =============================================================================

func TestManager_Transfer(t *testing.T) {
	// GIVEN: A reconciled ledger with Steve and Alex
	mem := store.NewMemory()
	m := newManager(t, mem, staticFeed(sampleFeed()))
	_, err := m.RunPass(context.Background())
	require.NoError(t, err)

	// WHEN: Steve hands 300 coins to Alex
	entry, err := m.Transfer(context.Background(), dec("300"), "Steve", "Alex")

	// THEN: Shares move, the total and cursor do not
	require.NoError(t, err)
	assert.Equal(t, ledger.OpPlayerTransfer, entry.Operation.Kind)
	assert.Equal(t, ledger.Timestamp(10_000), entry.At)

	snap := m.Snapshot()
	assertDecimal(t, "700", snap.Balances["Steve"])
	assertDecimal(t, "800", snap.Balances["Alex"])
	assertDecimal(t, "1550", snap.Total())
	assert.Equal(t, ledger.Timestamp(400), snap.Cursor)
	assert.Len(t, snap.Journal, 5)
	assert.Equal(t, 2, mem.Saves())
}

func TestManager_TransferRejected(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		sender   ledger.Username
		receiver ledger.Username
		wantErr  error
	}{
		{"zero amount", "0", "Steve", "Alex", ledger.ErrInvalidAmount},
		{"negative amount", "-5", "Steve", "Alex", ledger.ErrInvalidAmount},
		{"same member", "5", "Steve", "Steve", ledger.ErrInvalidTransfer},
		{"unknown sender", "5", "Notch", "Alex", ledger.ErrInvalidTransfer},
		{"unknown receiver", "5", "Steve", "Notch", ledger.ErrInvalidTransfer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemoryWith(ledgertest.SampleState())
			m := newManager(t, mem, staticFeed(sampleFeed()))

			_, err := m.Transfer(context.Background(), dec(tt.amount), tt.sender, tt.receiver)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, ledger.IsClientError(err))
			assert.Zero(t, mem.Saves())
			ledgertest.AssertStateEqual(t, ledgertest.SampleState(), m.Snapshot())
		})
	}
}
