/*
Package ledger provides the co-op bank reconciliation engine.

PURPOSE:
  The co-op bank is a shared pool of coins fed by every member of the group.
  The game only exposes a short, newest-first list of raw deposit/withdraw
  records and the current pool balance. This package turns that feed into a
  per-member ledger: who put in what, who took out what, and how much of the
  pool comes from bank interest.

KEY CONCEPTS IN THIS FILE (types.go):
  - Username / MemberID: member identities (display name vs. opaque UUID)
  - Timestamp: feed timestamps, Unix milliseconds
  - Entry: one journal row (timestamp + Operation)
  - State: the persisted aggregate (balances, interest, cursor, journal)

DESIGN PRINCIPLES:
  1. Append-only journal: entries are never edited or reordered
  2. Precision: amounts use decimal.Decimal, sums reconcile exactly
  3. Idempotence: the cursor makes re-fetching the same feed a no-op
  4. No I/O in the core: fetching and persistence live behind interfaces

SEE ALSO:
  - operation.go: Operation variants
  - classify.go: raw feed record -> Operation
  - apply.go: the state machine folding operations into State
  - reconcile.go: one reconciliation pass
*/
package ledger

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// CurrentVersion is the snapshot format version written by this package.
const CurrentVersion = 4

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Username is the canonical display name of a member. It is the join key
// for per-member balances.
type Username string

// MemberID is the opaque, stable identifier of a member.
type MemberID string

func (u Username) String() string { return string(u) }

// formattingMarker prefixes styled display names; it is followed by a single
// color code character.
const formattingMarker = "§"

// Canonicalize strips the cosmetic formatting prefix from a display name.
// The marker is two bytes in UTF-8; the color code that follows is decoded as
// a full UTF-8 sequence so a malformed code never splits a character.
func Canonicalize(display string) Username {
	rest, ok := strings.CutPrefix(display, formattingMarker)
	if !ok || rest == "" {
		return Username(display)
	}
	_, size := utf8.DecodeRuneInString(rest)
	return Username(rest[size:])
}

// =============================================================================
// TIMESTAMP - Unix milliseconds, the feed's native unit
// =============================================================================

type Timestamp int64

func TimestampOf(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

func (ts Timestamp) Time() time.Time              { return time.UnixMilli(int64(ts)).UTC() }
func (ts Timestamp) Before(other Timestamp) bool  { return ts < other }
func (ts Timestamp) After(other Timestamp) bool   { return ts > other }
func (ts Timestamp) IsZero() bool                 { return ts == 0 }
func (ts Timestamp) String() string               { return ts.Time().Format(time.RFC3339) }

// =============================================================================
// ENTRY - One journal row
// =============================================================================

// Entry is an applied operation together with the time it happened.
type Entry struct {
	At        Timestamp `json:"at"`
	Operation Operation `json:"operation"`
}

// =============================================================================
// STATE - The persisted aggregate
// =============================================================================

// State is the ledger snapshot. It is owned by a single writer (the Manager)
// between passes; anything handed to readers must be treated as immutable.
//
// INVARIANTS:
//   - Cursor never decreases across passes.
//   - Every feed-derived entry has At <= Cursor once appended. Anomaly
//     markers and manual transfers are stamped with wall-clock time and
//     do not move the Cursor, so they may be newer than it.
//   - Journal is append-only, in application order.
//   - Drift is recomputed every pass, never accumulated.
//   - UpgradeCap is nil when it could not be resolved.
type State struct {
	Version int `json:"version"`

	// Cursor is the timestamp of the newest feed transaction already applied.
	Cursor Timestamp `json:"last_transaction_timestamp"`
	// LastCheck is when the feed was last reconciled.
	LastCheck Timestamp `json:"last_check_timestamp"`

	// Balance is the authoritative pool balance reported by the last pass.
	Balance      decimal.Decimal              `json:"balance"`
	Balances     map[Username]decimal.Decimal `json:"users"`
	BankInterest decimal.Decimal              `json:"bank_interests"`
	Drift        decimal.Decimal              `json:"drift"`
	UpgradeCap   *int64                       `json:"max_balance"`

	Journal []Entry `json:"operations"`
}

// NewState returns an empty ledger at the current format version.
func NewState() *State {
	return &State{
		Version:  CurrentVersion,
		Balances: make(map[Username]decimal.Decimal),
	}
}

// Clone returns a deep copy. Passes run against a clone so a failure never
// leaves the original half-applied.
func (s *State) Clone() *State {
	c := *s
	c.Balances = make(map[Username]decimal.Decimal, len(s.Balances))
	for name, amount := range s.Balances {
		c.Balances[name] = amount
	}
	c.Journal = append(make([]Entry, 0, len(s.Journal)), s.Journal...)
	if s.UpgradeCap != nil {
		upgradeCap := *s.UpgradeCap
		c.UpgradeCap = &upgradeCap
	}
	return &c
}

// Total is the ledger-computed pool: every member balance plus interest.
func (s *State) Total() decimal.Decimal {
	total := s.BankInterest
	for _, amount := range s.Balances {
		total = total.Add(amount)
	}
	return total
}

// HasMember reports whether the member already has a ledger balance.
func (s *State) HasMember(name Username) bool {
	_, ok := s.Balances[name]
	return ok
}
