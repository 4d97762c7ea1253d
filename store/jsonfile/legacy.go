package jsonfile

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/coop-banker/ledger"
)

// =============================================================================
// VERSION 3 DOCUMENTS - Written by the first tracker, migrated on load
// =============================================================================
//
// Version 3 stores amounts as JSON numbers and operations as
// [timestamp, {"type": "PlayerPurse", "username": ...}] tuples. Loading one
// converts it to the current State; the next Save writes the current version,
// so a file is migrated at most once.

const legacyVersion = 3

type legacyDocument struct {
	Version                  int                        `json:"version"`
	LastTransactionTimestamp int64                      `json:"last_transaction_timestamp"`
	LastCheckTimestamp       int64                      `json:"last_check_timestamp"`
	Balance                  decimal.Decimal            `json:"balance"`
	Drift                    decimal.Decimal            `json:"drift"`
	MaxBalance               *int64                     `json:"max_balance"`
	BankInterests            decimal.Decimal            `json:"bank_interests"`
	Users                    map[string]decimal.Decimal `json:"users"`
	Operations               []legacyEntry              `json:"operations"`
}

type legacyEntry struct {
	At        int64
	Operation legacyOperation
}

// UnmarshalJSON decodes the [timestamp, operation] tuple.
func (e *legacyEntry) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("operation tuple has %d elements, expected 2", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &e.At); err != nil {
		return fmt.Errorf("operation timestamp: %w", err)
	}
	return json.Unmarshal(tuple[1], &e.Operation)
}

type legacyOperation struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Username    string          `json:"username"`
	Sender      string          `json:"sender"`
	Receiver    string          `json:"receiver"`
	RepeatCount int             `json:"repeat_count"`
}

func (op legacyOperation) toOperation() (ledger.Operation, error) {
	repeat := op.RepeatCount
	if repeat < 1 {
		repeat = 1
	}

	switch op.Type {
	case "PlayerPurse":
		out := ledger.PlayerPurse(op.Amount, ledger.Username(op.Username))
		out.RepeatCount = repeat
		return out, nil
	case "PlayerTransfer":
		out := ledger.PlayerTransfer(op.Amount, ledger.Username(op.Sender), ledger.Username(op.Receiver))
		out.RepeatCount = repeat
		return out, nil
	case "BankInterests":
		return ledger.BankInterest(op.Amount), nil
	case "WeirdWaypoint":
		return ledger.AnomalyMarker(), nil
	default:
		return ledger.Operation{}, fmt.Errorf("%w: %q", ledger.ErrUnknownOperation, op.Type)
	}
}

// migrate converts the document to a current-version State.
func (d *legacyDocument) migrate() (*ledger.State, error) {
	state := ledger.NewState()
	state.Cursor = ledger.Timestamp(d.LastTransactionTimestamp)
	state.LastCheck = ledger.Timestamp(d.LastCheckTimestamp)
	state.Balance = d.Balance
	state.Drift = d.Drift
	state.BankInterest = d.BankInterests
	state.UpgradeCap = d.MaxBalance

	for name, amount := range d.Users {
		state.Balances[ledger.Username(name)] = amount
	}

	state.Journal = make([]ledger.Entry, 0, len(d.Operations))
	for i, e := range d.Operations {
		op, err := e.Operation.toOperation()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		state.Journal = append(state.Journal, ledger.Entry{At: ledger.Timestamp(e.At), Operation: op})
	}
	return state, nil
}
