/*
errors.go - Centralized error types for the reconciliation engine

ERROR CATEGORIES:
  1. Apply errors - an operation cannot be folded into the ledger (fatal to the pass)
  2. Store errors - snapshot persistence failures
  3. Feed errors - the external feed could not be fetched

Non-fatal conditions (unknown upgrade cap, anomaly batches, drift) are not
errors: they are recorded in State and PassReport.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransfer is returned when a transfer names the same member on
	// both sides or a member the ledger does not know.
	ErrInvalidTransfer = errors.New("invalid transfer")

	// ErrInvalidAmount is returned when a manual operation carries a
	// non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnknownOperation is returned when a journal entry has a kind this
	// version does not understand.
	ErrUnknownOperation = errors.New("unknown operation kind")

	// ErrNoSnapshot is returned by a Store that has never been saved to.
	ErrNoSnapshot = errors.New("no ledger snapshot")

	// ErrUnsupportedVersion is returned when a persisted snapshot was written
	// by an incompatible format version.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")

	// ErrFeedUnavailable is returned when the feed source cannot be reached.
	ErrFeedUnavailable = errors.New("feed unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransferError details why a transfer was rejected.
type InvalidTransferError struct {
	Sender   Username
	Receiver Username
	Reason   string
}

func (e *InvalidTransferError) Error() string {
	return fmt.Sprintf("invalid transfer from %q to %q: %s", e.Sender, e.Receiver, e.Reason)
}

func (e *InvalidTransferError) Unwrap() error {
	return ErrInvalidTransfer
}

// VersionError reports a snapshot written by another format version.
type VersionError struct {
	Found    int
	Expected int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("snapshot version %d, expected %d", e.Found, e.Expected)
}

func (e *VersionError) Unwrap() error {
	return ErrUnsupportedVersion
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransfer) ||
		errors.Is(err, ErrInvalidAmount)
}

// CheckVersion validates a loaded snapshot's format version.
func CheckVersion(s *State) error {
	if s.Version != CurrentVersion {
		return &VersionError{Found: s.Version, Expected: CurrentVersion}
	}
	return nil
}
