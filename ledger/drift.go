package ledger

import "github.com/shopspring/decimal"

// DriftTolerance is the drift above which a pass is flagged. Below it the
// difference is rounding noise from the game's own bookkeeping.
var DriftTolerance = decimal.NewFromInt(1)

// ComputeDrift returns |authoritative - (sum(balances) + interest)|.
func ComputeDrift(balances map[Username]decimal.Decimal, interest, authoritative decimal.Decimal) decimal.Decimal {
	sum := interest
	for _, amount := range balances {
		sum = sum.Add(amount)
	}
	return authoritative.Sub(sum).Abs()
}

// DriftExceeded reports whether a drift value must be surfaced as a warning.
func DriftExceeded(drift decimal.Decimal) bool {
	return drift.GreaterThan(DriftTolerance)
}
