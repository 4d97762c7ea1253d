package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EvolutionWindow is the trailing window used for member deltas.
const EvolutionWindow = 24 * time.Hour

// Evolution returns each member's net balance change over [now-window, now].
// Entries are selected by comparing their age with now, never by position:
// the journal is ordered by application, not chronologically.
//
// Interest and anomaly markers belong to no member and are ignored.
func Evolution(journal []Entry, window time.Duration, now time.Time) map[Username]decimal.Decimal {
	from := TimestampOf(now.Add(-window))
	to := TimestampOf(now)

	deltas := make(map[Username]decimal.Decimal)
	for _, e := range journal {
		if e.At.Before(from) || e.At.After(to) {
			continue
		}
		op := e.Operation
		switch op.Kind {
		case OpPlayerPurse:
			deltas[op.Member] = deltas[op.Member].Add(op.Amount)
		case OpPlayerTransfer:
			deltas[op.Sender] = deltas[op.Sender].Sub(op.Amount)
			deltas[op.Receiver] = deltas[op.Receiver].Add(op.Amount)
		}
	}
	return deltas
}
