package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// RAW FEED RECORDS
// =============================================================================

type Action string

const (
	ActionDeposit  Action = "DEPOSIT"
	ActionWithdraw Action = "WITHDRAW"
)

// RawTransaction is one record of the bank feed as the game reports it.
// Amount is always non-negative; Action carries the direction.
type RawTransaction struct {
	Amount        decimal.Decimal
	Timestamp     Timestamp
	Action        Action
	InitiatorName string
}

// bankInterestLabels are the initiator names the game uses for interest
// payouts.
var bankInterestLabels = map[Username]bool{
	"Bank Interest":      true,
	"Bank Interest (x2)": true,
}

// IsBankInterestLabel reports whether a canonical name denotes interest.
func IsBankInterestLabel(name Username) bool {
	return bankInterestLabels[name]
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classify maps a raw record to a journal entry. It is total: every record
// yields exactly one entry. Transfers are never produced here; the feed
// models them as an independent withdraw and deposit.
func Classify(tx RawTransaction) Entry {
	name := Canonicalize(tx.InitiatorName)

	var op Operation
	switch {
	case tx.Action == ActionWithdraw:
		op = PlayerPurse(tx.Amount.Neg(), name)
	case IsBankInterestLabel(name):
		op = BankInterest(tx.Amount)
	default:
		op = PlayerPurse(tx.Amount, name)
	}
	return Entry{At: tx.Timestamp, Operation: op}
}

// ClassifyNew classifies, in feed order, every record strictly newer than
// the cursor. Records at or before the cursor were applied by an earlier pass.
func ClassifyNew(txs []RawTransaction, cursor Timestamp) []Entry {
	var entries []Entry
	for _, tx := range txs {
		if !tx.Timestamp.After(cursor) {
			continue
		}
		entries = append(entries, Classify(tx))
	}
	return entries
}
