package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coop-banker/ledger"
	"github.com/warp/coop-banker/ledger/ledgertest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_LoadEmpty(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background())

	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct {
		name  string
		state *ledger.State
	}{
		{"full", ledgertest.SampleState()},
		{"unknown cap", func() *ledger.State { s := ledgertest.SampleState(); s.UpgradeCap = nil; return s }()},
		{"empty", ledger.NewState()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)

			require.NoError(t, store.Save(ctx, tt.state))
			loaded, err := store.Load(ctx)

			require.NoError(t, err)
			ledgertest.AssertStateEqual(t, tt.state, loaded)
		})
	}
}

func TestStore_SaveAppendsJournalTail(t *testing.T) {
	// GIVEN: A stored snapshot
	ctx := context.Background()
	store := newTestStore(t)
	state := ledgertest.SampleState()
	require.NoError(t, store.Save(ctx, state))

	// WHEN: The next snapshot extends the journal and changes balances
	next := state.Clone()
	require.NoError(t, next.Apply(ledger.Entry{At: 1_700_000_500_000, Operation: ledger.PlayerPurse(ledgertest.D("42"), "Herobrine")}))
	delete(next.Balances, "Alex")
	require.NoError(t, store.Save(ctx, next))

	// THEN: The stored journal is the extended one and balances are replaced
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	ledgertest.AssertStateEqual(t, next, loaded)

	tail, err := store.JournalSince(ctx, 1_700_000_500_000)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, ledger.Username("Herobrine"), tail[0].Operation.Member)
}

func TestStore_RejectsJournalTruncation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	state := ledgertest.SampleState()
	require.NoError(t, store.Save(ctx, state))

	shorter := state.Clone()
	shorter.Journal = shorter.Journal[:2]
	shorter.Balance = ledgertest.D("1")

	err := store.Save(ctx, shorter)

	require.ErrorIs(t, err, ErrJournalRewritten)
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	ledgertest.AssertStateEqual(t, state, loaded)
}

func TestStore_RejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	state := ledgertest.SampleState()
	state.Version = 2
	require.NoError(t, store.Save(ctx, state))

	_, err := store.Load(ctx)

	var versionErr *ledger.VersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, 2, versionErr.Found)
	assert.ErrorIs(t, err, ledger.ErrUnsupportedVersion)
}

func TestStore_RecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordRun(ctx, ledger.Run{
		ID:          "run-1",
		Status:      ledger.RunCompleted,
		StartedAt:   base,
		CompletedAt: base.Add(time.Second),
		Report:      ledger.PassReport{NewEntries: 3, Drift: ledgertest.D("0.5"), Cursor: 1234},
	}))
	require.NoError(t, store.RecordRun(ctx, ledger.Run{
		ID:          "run-2",
		Status:      ledger.RunFailed,
		StartedAt:   base.Add(10 * time.Minute),
		CompletedAt: base.Add(10*time.Minute + time.Second),
		Error:       "fetching feed: timeout",
	}))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, ledger.RunFailed, runs[0].Status)
	assert.Equal(t, "fetching feed: timeout", runs[0].Error)

	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, 3, runs[1].Report.NewEntries)
	assert.Equal(t, ledger.Timestamp(1234), runs[1].Report.Cursor)
	ledgertest.AssertDecimal(t, "0.5", runs[1].Report.Drift)
	assert.True(t, base.Equal(runs[1].StartedAt))

	limited, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_ListRunsWithinOneSecond(t *testing.T) {
	// GIVEN: Two runs started in the same second, the first on the second boundary
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	require.NoError(t, store.RecordRun(ctx, ledger.Run{ID: "early", Status: ledger.RunCompleted, StartedAt: base, CompletedAt: base}))
	later := base.Add(500 * time.Millisecond)
	require.NoError(t, store.RecordRun(ctx, ledger.Run{ID: "late", Status: ledger.RunCompleted, StartedAt: later, CompletedAt: later}))

	// WHEN: Listing runs
	runs, err := store.ListRuns(ctx, 0)

	// THEN: The later run comes first and keeps its milliseconds
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "late", runs[0].ID)
	assert.True(t, later.Equal(runs[0].StartedAt))
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Save(ctx, ledgertest.SampleState()))
	require.NoError(t, store.RecordRun(ctx, ledger.Run{ID: "run-1", Status: ledger.RunCompleted}))

	require.NoError(t, store.Reset(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)
	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// A cleared journal accepts a fresh, shorter history
	require.NoError(t, store.Save(ctx, ledger.NewState()))
}

func TestStore_WithManager(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := ledger.Feed{
		Balance: ledgertest.D("100"),
		Transactions: []ledger.RawTransaction{
			{Amount: ledgertest.D("100"), Timestamp: 50, Action: ledger.ActionDeposit, InitiatorName: "§6Steve"},
		},
	}
	m := ledger.NewManager(store,
		ledger.FeedSourceFunc(func(context.Context) (ledger.Feed, error) { return feed, nil }),
		ledger.WithRunRecorder(store),
	)
	require.NoError(t, m.Open(ctx))

	_, err := m.RunPass(ctx)
	require.NoError(t, err)

	// A fresh manager over the same database resumes from the saved cursor
	resumed := ledger.NewManager(store, ledger.FeedSourceFunc(func(context.Context) (ledger.Feed, error) { return feed, nil }))
	require.NoError(t, resumed.Open(ctx))
	report, err := resumed.RunPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.NewEntries)
	ledgertest.AssertDecimal(t, "100", resumed.Snapshot().Balances["Steve"])

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
