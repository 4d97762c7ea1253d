/*
reconcile.go - One reconciliation pass

PASS SEQUENCE:
  1. Select feed records strictly newer than the cursor (feed order kept)
  2. Classify them into journal entries
  3. Apply them to a clone of the previous state (anomaly policy included)
  4. Recompute drift against the authoritative balance
  5. Resolve the upgrade cap from member progression
  6. Return the new state; the previous one is never touched

Reconcile does no I/O. Fetching happens before it and persistence after it
(see manager.go), so a pass either produces a complete new State or an
error and nothing else.
*/
package ledger

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Feed is everything one pass consumes from the external source.
type Feed struct {
	// Balance is the authoritative pool balance.
	Balance decimal.Decimal
	// Transactions in feed order (newest first).
	Transactions []RawTransaction
	// Members maps each member to its progression, for the upgrade cap.
	Members map[MemberID]MemberProgress
}

// PassReport summarizes a pass for logs, metrics and the run audit.
type PassReport struct {
	NewEntries    int
	Anomaly       bool
	Drift         decimal.Decimal
	DriftExceeded bool
	UpgradeCap    *int64
	Cursor        Timestamp
	CheckedAt     Timestamp
}

// Reconciler runs passes. The zero value is usable; Now defaults to
// time.Now and the logger to a no-op.
type Reconciler struct {
	Now    func() time.Time
	Logger zerolog.Logger
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Reconcile applies one feed to prev and returns the resulting state.
// On error prev is returned unchanged alongside the error.
func (r *Reconciler) Reconcile(prev *State, feed Feed) (*State, PassReport, error) {
	now := r.now()
	next := prev.Clone()

	entries := ClassifyNew(feed.Transactions, prev.Cursor)
	switch {
	case len(entries) == 0:
		r.Logger.Info().Msg("no new transactions")
	case len(entries) > AnomalyThreshold:
		r.Logger.Warn().Int("count", len(entries)).
			Msg("more new transactions than the feed window, some may not be attributed")
	default:
		r.Logger.Info().Int("count", len(entries)).Msg("new transactions")
	}

	batch, err := next.ApplyBatch(entries, now)
	if err != nil {
		return prev, PassReport{}, err
	}
	for _, e := range entries {
		r.Logger.Debug().Int64("at", int64(e.At)).Msg(e.Operation.String())
	}

	next.Drift = ComputeDrift(next.Balances, next.BankInterest, feed.Balance)
	next.Balance = feed.Balance
	next.LastCheck = TimestampOf(now)

	if upgradeCap, ok := ResolveUpgradeCap(feed.Members); ok {
		next.UpgradeCap = &upgradeCap
	} else {
		next.UpgradeCap = nil
		r.Logger.Warn().Msg("upgrade cap unknown: no member completed a bank upgrade")
	}

	report := PassReport{
		NewEntries:    batch.Applied,
		Anomaly:       batch.Anomaly,
		Drift:         next.Drift,
		DriftExceeded: DriftExceeded(next.Drift),
		UpgradeCap:    next.UpgradeCap,
		Cursor:        next.Cursor,
		CheckedAt:     next.LastCheck,
	}
	if report.DriftExceeded {
		r.Logger.Warn().
			Str("drift", next.Drift.String()).
			Str("balance", feed.Balance.String()).
			Str("sum", next.Total().String()).
			Msg("drift between reported balance and ledger sum")
	}
	return next, report, nil
}
