package hypixel

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/coop-banker/ledger"
)

// =============================================================================
// WIRE MODELS - /v2/skyblock/profile response
// =============================================================================

type profileResponse struct {
	Success bool     `json:"success"`
	Cause   string   `json:"cause"`
	Profile *profile `json:"profile"`
}

type profile struct {
	ProfileID string            `json:"profile_id"`
	Members   map[string]member `json:"members"`
	Banking   *banking          `json:"banking"`
}

type member struct {
	Leveling struct {
		CompletedTasks []string `json:"completed_tasks"`
	} `json:"leveling"`
}

type banking struct {
	Balance      decimal.Decimal `json:"balance"`
	Transactions []transaction   `json:"transactions"`
}

type transaction struct {
	Amount        decimal.Decimal  `json:"amount"`
	Timestamp     ledger.Timestamp `json:"timestamp"`
	Action        string           `json:"action"`
	InitiatorName string           `json:"initiator_name"`
}

// toFeed converts a decoded profile. Transactions keep the order the API
// returned them in. An action other than DEPOSIT or WITHDRAW rejects the
// whole profile, since its direction cannot be inferred.
func (p *profile) toFeed() (ledger.Feed, error) {
	feed := ledger.Feed{
		Balance:      p.Banking.Balance,
		Transactions: make([]ledger.RawTransaction, 0, len(p.Banking.Transactions)),
		Members:      make(map[ledger.MemberID]ledger.MemberProgress, len(p.Members)),
	}
	for i, tx := range p.Banking.Transactions {
		action := ledger.Action(tx.Action)
		if action != ledger.ActionDeposit && action != ledger.ActionWithdraw {
			return ledger.Feed{}, fmt.Errorf("%w: transaction %d has unknown action %q", ErrMalformedProfile, i, tx.Action)
		}
		feed.Transactions = append(feed.Transactions, ledger.RawTransaction{
			Amount:        tx.Amount,
			Timestamp:     tx.Timestamp,
			Action:        action,
			InitiatorName: tx.InitiatorName,
		})
	}
	for id, m := range p.Members {
		feed.Members[ledger.MemberID(id)] = ledger.MemberProgress{CompletedTasks: m.Leveling.CompletedTasks}
	}
	return feed, nil
}
