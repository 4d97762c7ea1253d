package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OPERATION - Typed journal payload
// =============================================================================

type OperationKind string

const (
	// OpPlayerPurse is a member deposit (positive) or withdrawal (negative).
	OpPlayerPurse OperationKind = "player_purse"
	// OpPlayerTransfer moves coins between two members' shares of the pool.
	OpPlayerTransfer OperationKind = "player_transfer"
	// OpBankInterest is interest credited to the pool, owned by no member.
	OpBankInterest OperationKind = "bank_interest"
	// OpAnomalyMarker flags a pass with too many new entries to trust
	// individual attribution. It has no financial effect.
	OpAnomalyMarker OperationKind = "anomaly_marker"
)

// Operation is a tagged variant; Kind selects which fields are meaningful.
// Operations are values and are never modified once journaled.
type Operation struct {
	Kind        OperationKind   `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Member      Username        `json:"member,omitempty"`
	Sender      Username        `json:"sender,omitempty"`
	Receiver    Username        `json:"receiver,omitempty"`
	RepeatCount int             `json:"repeat_count,omitempty"`
}

func PlayerPurse(amount decimal.Decimal, member Username) Operation {
	return Operation{Kind: OpPlayerPurse, Amount: amount, Member: member, RepeatCount: 1}
}

func PlayerTransfer(amount decimal.Decimal, sender, receiver Username) Operation {
	return Operation{Kind: OpPlayerTransfer, Amount: amount, Sender: sender, Receiver: receiver, RepeatCount: 1}
}

func BankInterest(amount decimal.Decimal) Operation {
	return Operation{Kind: OpBankInterest, Amount: amount}
}

func AnomalyMarker() Operation {
	return Operation{Kind: OpAnomalyMarker}
}

// IsDeposit and IsWithdrawal only apply to purse operations.
func (op Operation) IsDeposit() bool    { return op.Kind == OpPlayerPurse && op.Amount.IsPositive() }
func (op Operation) IsWithdrawal() bool { return op.Kind == OpPlayerPurse && op.Amount.IsNegative() }

// SameAs reports whether two operations are identical apart from their
// repeat count.
func (op Operation) SameAs(other Operation) bool {
	return op.Kind == other.Kind &&
		op.Amount.Equal(other.Amount) &&
		op.Member == other.Member &&
		op.Sender == other.Sender &&
		op.Receiver == other.Receiver
}

// String is the audit description used in logs and history rendering.
func (op Operation) String() string {
	switch op.Kind {
	case OpPlayerPurse:
		verb := "deposited"
		if op.Amount.IsNegative() {
			verb = "withdrew"
		}
		return fmt.Sprintf("%s %s %s coins", op.Member, verb, op.Amount.Abs().StringFixed(1))
	case OpPlayerTransfer:
		return fmt.Sprintf("%s transferred %s coins to %s", op.Sender, op.Amount.StringFixed(1), op.Receiver)
	case OpBankInterest:
		return fmt.Sprintf("bank interest: %s coins", op.Amount.StringFixed(1))
	case OpAnomalyMarker:
		return "anomaly: too many new transactions, attribution may be incomplete"
	default:
		return fmt.Sprintf("unknown operation %q", string(op.Kind))
	}
}
