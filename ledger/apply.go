/*
apply.go - The ledger state machine

PURPOSE:
  Folds an ordered batch of journal entries into a State. This is the only
  code that mutates balances, the interest accumulator, the cursor and the
  journal.

TRANSITIONS:
  player_purse     balances[member] += amount (member created at 0)
  bank_interest    bank_interest += amount
  player_transfer  balances[sender] -= amount, balances[receiver] += amount
                   rejected if sender == receiver or either is unknown
  anomaly_marker   no balance effect, journaled as-is

ORDERING:
  Entries are applied in the order received. The feed is newest-first, so the
  journal records the newest transaction of a batch first.

ATOMICITY:
  Apply validates before it mutates, so a rejected entry leaves the State
  untouched. ApplyBatch is not atomic on its own: callers run it against a
  Clone and discard the clone on error (see reconcile.go).
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AnomalyThreshold is the number of new entries in one pass above which
// individual attribution is considered unreliable.
const AnomalyThreshold = 50

// Apply folds a single entry into the state and appends it to the journal.
// It does not move the cursor.
func (s *State) Apply(e Entry) error {
	if s.Balances == nil {
		s.Balances = make(map[Username]decimal.Decimal)
	}

	op := e.Operation
	switch op.Kind {
	case OpPlayerPurse:
		s.Balances[op.Member] = s.Balances[op.Member].Add(op.Amount)

	case OpBankInterest:
		s.BankInterest = s.BankInterest.Add(op.Amount)

	case OpPlayerTransfer:
		if err := s.validateTransfer(op); err != nil {
			return err
		}
		s.Balances[op.Sender] = s.Balances[op.Sender].Sub(op.Amount)
		s.Balances[op.Receiver] = s.Balances[op.Receiver].Add(op.Amount)

	case OpAnomalyMarker:
		// journaled only

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, string(op.Kind))
	}

	s.Journal = append(s.Journal, e)
	return nil
}

func (s *State) validateTransfer(op Operation) error {
	switch {
	case op.Sender == op.Receiver:
		return &InvalidTransferError{Sender: op.Sender, Receiver: op.Receiver, Reason: "sender and receiver are the same member"}
	case !s.HasMember(op.Sender):
		return &InvalidTransferError{Sender: op.Sender, Receiver: op.Receiver, Reason: "unknown sender"}
	case !s.HasMember(op.Receiver):
		return &InvalidTransferError{Sender: op.Sender, Receiver: op.Receiver, Reason: "unknown receiver"}
	case op.Amount.IsNegative():
		return &InvalidTransferError{Sender: op.Sender, Receiver: op.Receiver, Reason: "negative amount"}
	}
	return nil
}

// BatchResult summarizes what ApplyBatch did.
type BatchResult struct {
	Applied int  // feed-derived entries applied
	Anomaly bool // an anomaly marker was appended
}

// ApplyBatch applies newly classified feed entries in order. When the batch
// is larger than AnomalyThreshold an anomaly marker stamped with now is
// appended after every entry. The cursor moves to the newest feed-derived
// timestamp; the marker does not move it, since it does not come from the feed.
func (s *State) ApplyBatch(entries []Entry, now time.Time) (BatchResult, error) {
	result := BatchResult{}

	newest := s.Cursor
	for _, e := range entries {
		if err := s.Apply(e); err != nil {
			return result, fmt.Errorf("applying entry at %s: %w", e.At, err)
		}
		if e.At.After(newest) {
			newest = e.At
		}
		result.Applied++
	}

	if len(entries) > AnomalyThreshold {
		if err := s.Apply(Entry{At: TimestampOf(now), Operation: AnomalyMarker()}); err != nil {
			return result, err
		}
		result.Anomaly = true
	}

	s.Cursor = newest
	return result, nil
}
