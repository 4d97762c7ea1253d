// Package ledgertest provides fixtures and assertions shared by the ledger
// and store test suites.
package ledgertest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coop-banker/ledger"
)

// D parses a decimal literal, failing loudly on typos in test tables.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Cap returns a pointer for UpgradeCap fields.
func Cap(v int64) *int64 { return &v }

// SampleState returns a state exercising every field and every operation kind.
func SampleState() *ledger.State {
	s := ledger.NewState()
	s.Cursor = 1_700_000_300_000
	s.LastCheck = 1_700_000_400_000
	s.Balance = D("1250000.5")
	s.Balances["Steve"] = D("1000000")
	s.Balances["Alex"] = D("-50000.25")
	s.BankInterest = D("300000.75")
	s.Drift = D("0")
	s.UpgradeCap = Cap(250_000_000)
	s.Journal = []ledger.Entry{
		{At: 1_700_000_300_000, Operation: ledger.PlayerPurse(D("1000000"), "Steve")},
		{At: 1_700_000_200_000, Operation: ledger.PlayerPurse(D("-50000.25"), "Alex")},
		{At: 1_700_000_100_000, Operation: ledger.BankInterest(D("300000.75"))},
		{At: 1_700_000_350_000, Operation: ledger.PlayerTransfer(D("10"), "Steve", "Alex")},
		{At: 1_700_000_350_000, Operation: ledger.PlayerTransfer(D("10"), "Alex", "Steve")},
		{At: 1_700_000_360_000, Operation: ledger.AnomalyMarker()},
	}
	return s
}

// AssertDecimal compares a decimal against a literal by value.
func AssertDecimal(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, D(want).Equal(got), append([]any{"expected %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// AssertStateEqual compares two states field by field. Decimals are compared
// by value, since their internal representation does not survive encoding.
func AssertStateEqual(t testing.TB, want, got *ledger.State) {
	t.Helper()
	require.NotNil(t, got)

	assert.Equal(t, want.Version, got.Version, "version")
	assert.Equal(t, want.Cursor, got.Cursor, "cursor")
	assert.Equal(t, want.LastCheck, got.LastCheck, "last check")
	assert.True(t, want.Balance.Equal(got.Balance), "balance: want %s got %s", want.Balance, got.Balance)
	assert.True(t, want.BankInterest.Equal(got.BankInterest), "bank interest: want %s got %s", want.BankInterest, got.BankInterest)
	assert.True(t, want.Drift.Equal(got.Drift), "drift: want %s got %s", want.Drift, got.Drift)

	if want.UpgradeCap == nil {
		assert.Nil(t, got.UpgradeCap, "upgrade cap")
	} else if assert.NotNil(t, got.UpgradeCap, "upgrade cap") {
		assert.Equal(t, *want.UpgradeCap, *got.UpgradeCap, "upgrade cap")
	}

	require.Len(t, got.Balances, len(want.Balances), "balances")
	for name, amount := range want.Balances {
		gotAmount, ok := got.Balances[name]
		if assert.True(t, ok, "missing balance for %s", name) {
			assert.True(t, amount.Equal(gotAmount), "balance of %s: want %s got %s", name, amount, gotAmount)
		}
	}

	require.Len(t, got.Journal, len(want.Journal), "journal")
	for i := range want.Journal {
		w, g := want.Journal[i], got.Journal[i]
		assert.Equal(t, w.At, g.At, "journal[%d] timestamp", i)
		assert.True(t, w.Operation.SameAs(g.Operation), "journal[%d]: want %s got %s", i, w.Operation, g.Operation)
		assert.Equal(t, w.Operation.RepeatCount, g.Operation.RepeatCount, "journal[%d] repeat count", i)
	}
}
