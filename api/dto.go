/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's persisted format from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Coin amounts are decimal strings ("1250000.5"), never floats.
  Timestamps are RFC3339; an unset timestamp is omitted.
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/coop-banker/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// LedgerDTO summarizes the current snapshot.
type LedgerDTO struct {
	Balance       decimal.Decimal `json:"balance"`
	LedgerTotal   decimal.Decimal `json:"ledger_total"`
	BankInterest  decimal.Decimal `json:"bank_interest"`
	Drift         decimal.Decimal `json:"drift"`
	DriftExceeded bool            `json:"drift_exceeded"`
	UpgradeCap    *int64          `json:"upgrade_cap"`
	Members       int             `json:"members"`
	Operations    int             `json:"operations"`
	LastFeedTx    *time.Time      `json:"last_transaction_at,omitempty"`
	LastCheck     *time.Time      `json:"last_check_at,omitempty"`
}

// MemberDTO is one member's share and its change over the evolution window.
type MemberDTO struct {
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Change24h decimal.Decimal `json:"change_24h"`
}

// HistoryItemDTO is a stacked journal row.
type HistoryItemDTO struct {
	At          time.Time       `json:"at"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Member      string          `json:"member,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	Receiver    string          `json:"receiver,omitempty"`
	RepeatCount int             `json:"repeat_count"`
	Description string          `json:"description"`
}

// PassReportDTO is returned by POST /api/reconcile.
type PassReportDTO struct {
	NewEntries    int             `json:"new_entries"`
	Anomaly       bool            `json:"anomaly"`
	Drift         decimal.Decimal `json:"drift"`
	DriftExceeded bool            `json:"drift_exceeded"`
	UpgradeCap    *int64          `json:"upgrade_cap"`
	CheckedAt     *time.Time      `json:"checked_at,omitempty"`
}

// RunDTO is a recorded pass attempt.
type RunDTO struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	NewEntries  int       `json:"new_entries"`
	Anomaly     bool      `json:"anomaly"`
	Drift       string    `json:"drift"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// TransferRequest moves coins between two members' shares.
type TransferRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Sender   string          `json:"sender"`
	Receiver string          `json:"receiver"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func timePtr(ts ledger.Timestamp) *time.Time {
	if ts.IsZero() {
		return nil
	}
	t := ts.Time().UTC()
	return &t
}

func toLedgerDTO(s *ledger.State) LedgerDTO {
	return LedgerDTO{
		Balance:       s.Balance,
		LedgerTotal:   s.Total(),
		BankInterest:  s.BankInterest,
		Drift:         s.Drift,
		DriftExceeded: ledger.DriftExceeded(s.Drift),
		UpgradeCap:    s.UpgradeCap,
		Members:       len(s.Balances),
		Operations:    len(s.Journal),
		LastFeedTx:    timePtr(s.Cursor),
		LastCheck:     timePtr(s.LastCheck),
	}
}

// toMemberDTOs lists members by balance, largest first.
func toMemberDTOs(s *ledger.State, now time.Time) []MemberDTO {
	deltas := ledger.Evolution(s.Journal, ledger.EvolutionWindow, now)

	members := make([]MemberDTO, 0, len(s.Balances))
	for name, balance := range s.Balances {
		members = append(members, MemberDTO{
			Name:      string(name),
			Balance:   balance,
			Change24h: deltas[name],
		})
	}
	sort.Slice(members, func(i, j int) bool {
		if c := members[i].Balance.Cmp(members[j].Balance); c != 0 {
			return c > 0
		}
		return members[i].Name < members[j].Name
	})
	return members
}

func toHistoryDTOs(items []ledger.HistoryItem) []HistoryItemDTO {
	out := make([]HistoryItemDTO, 0, len(items))
	for _, item := range items {
		op := item.Operation
		out = append(out, HistoryItemDTO{
			At:          item.At.Time().UTC(),
			Type:        string(op.Kind),
			Amount:      op.Amount,
			Member:      string(op.Member),
			Sender:      string(op.Sender),
			Receiver:    string(op.Receiver),
			RepeatCount: op.RepeatCount,
			Description: op.String(),
		})
	}
	return out
}

func toPassReportDTO(r ledger.PassReport) PassReportDTO {
	return PassReportDTO{
		NewEntries:    r.NewEntries,
		Anomaly:       r.Anomaly,
		Drift:         r.Drift,
		DriftExceeded: r.DriftExceeded,
		UpgradeCap:    r.UpgradeCap,
		CheckedAt:     timePtr(r.CheckedAt),
	}
}

func toRunDTOs(runs []ledger.Run) []RunDTO {
	out := make([]RunDTO, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunDTO{
			ID:          r.ID,
			Status:      string(r.Status),
			NewEntries:  r.Report.NewEntries,
			Anomaly:     r.Report.Anomaly,
			Drift:       r.Report.Drift.String(),
			Error:       r.Error,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return out
}
