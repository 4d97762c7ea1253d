package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coop-banker/ledger"
	"github.com/warp/coop-banker/ledger/ledgertest"
)

func TestStore_MissingFile(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "data.json"))

	_, err := store.Load(context.Background())

	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(filepath.Join(t.TempDir(), "nested", "data.json"))

	state := ledgertest.SampleState()
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	ledgertest.AssertStateEqual(t, state, loaded)

	// Overwriting leaves no temp files behind
	state.UpgradeCap = nil
	require.NoError(t, store.Save(ctx, state))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.UpgradeCap)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_DocumentFields(t *testing.T) {
	ctx := context.Background()
	store := New(filepath.Join(t.TempDir(), "data.json"))
	state := ledgertest.SampleState()
	state.UpgradeCap = nil
	require.NoError(t, store.Save(ctx, state))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	for _, key := range []string{
		`"version": 4`,
		`"last_transaction_timestamp"`,
		`"last_check_timestamp"`,
		`"balance"`,
		`"drift"`,
		`"max_balance": null`,
		`"bank_interests"`,
		`"users"`,
		`"operations"`,
	} {
		assert.Contains(t, string(data), key)
	}
}

func TestStore_RejectsOtherVersions(t *testing.T) {
	tests := []struct {
		name     string
		document string
		found    int
	}{
		{"older version", `{"version": 2, "users": {}, "operations": []}`, 2},
		{"missing version", `{"users": {}, "operations": []}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.document), 0o644))

			_, err := New(path).Load(context.Background())

			var versionErr *ledger.VersionError
			require.ErrorAs(t, err, &versionErr)
			assert.Equal(t, tt.found, versionErr.Found)
		})
	}
}

// originalDocument is a data.json written by the first tracker.
const originalDocument = `{
  "version": 3,
  "last_transaction_timestamp": 1700000300000,
  "last_check_timestamp": 1700000400000,
  "balance": 1250000.5,
  "drift": 0.0,
  "max_balance": 250000000,
  "bank_interests": 300000.75,
  "users": {"Steve": 1000000.0, "Alex": -50000.25},
  "operations": [
    [1700000300000, {"type": "PlayerPurse", "amount": 1000000.0, "username": "Steve", "repeat_count": 1}],
    [1700000200000, {"type": "PlayerPurse", "amount": -50000.25, "username": "Alex", "repeat_count": 1}],
    [1700000100000, {"type": "BankInterests", "amount": 300000.75}],
    [1700000350000, {"type": "PlayerTransfer", "amount": 10.0, "receiver": "Alex", "sender": "Steve", "repeat_count": 1}],
    [1700000350000, {"type": "PlayerTransfer", "amount": 10.0, "receiver": "Steve", "sender": "Alex", "repeat_count": 1}],
    [1700000360000, {"type": "WeirdWaypoint"}]
  ]
}`

func TestStore_MigratesOriginalDocument(t *testing.T) {
	// GIVEN: A version 3 document from the first tracker
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(originalDocument), 0o644))
	store := New(path)

	// WHEN: Loading it
	loaded, err := store.Load(ctx)

	// THEN: Every field is carried over to the current format
	require.NoError(t, err)
	ledgertest.AssertStateEqual(t, ledgertest.SampleState(), loaded)

	// AND: Saving rewrites it at the current version
	require.NoError(t, store.Save(ctx, loaded))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 4`)

	reloaded, err := store.Load(ctx)
	require.NoError(t, err)
	ledgertest.AssertStateEqual(t, ledgertest.SampleState(), reloaded)
}

func TestStore_MigrationRejectsUnknownOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	document := `{"version": 3, "users": {}, "operations": [[1, {"type": "Refund", "amount": 5}]]}`
	require.NoError(t, os.WriteFile(path, []byte(document), 0o644))

	_, err := New(path).Load(context.Background())

	assert.ErrorIs(t, err, ledger.ErrUnknownOperation)
}

func TestStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New(path).Load(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrNoSnapshot)
}
