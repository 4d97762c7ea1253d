/*
Package jsonfile stores the ledger as a single JSON document.

FORMAT:
  The document is the ledger.State encoding (format version 4):

    {
      "version": 4,
      "last_transaction_timestamp": 1700000300000,
      "last_check_timestamp": 1700000400000,
      "balance": "1250000.5",
      "drift": "0",
      "max_balance": 250000000,
      "bank_interests": "300000.75",
      "users": {"Steve": "1000000"},
      "operations": [{"at": ..., "operation": {"type": "player_purse", ...}}]
    }

  max_balance is null when no member completed a bank upgrade.

MIGRATION:
  Version 3 documents (float amounts, [timestamp, operation] tuples) are
  converted on load, see legacy.go. Any other version is rejected with
  ledger.ErrUnsupportedVersion.

DURABILITY:
  Save writes a temporary file next to the target, syncs it, then renames
  it over the target. A crash mid-save leaves the previous document intact.
*/
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/warp/coop-banker/ledger"
)

// Store persists snapshots to a file path.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) (*ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ledger.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}

	switch header.Version {
	case ledger.CurrentVersion:
		state := ledger.NewState()
		if err := json.Unmarshal(data, state); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
		}
		return state, nil

	case legacyVersion:
		var doc legacyDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode version %d document %s: %w", legacyVersion, s.path, err)
		}
		state, err := doc.migrate()
		if err != nil {
			return nil, fmt.Errorf("failed to migrate %s: %w", s.path, err)
		}
		return state, nil

	default:
		return nil, &ledger.VersionError{Found: header.Version, Expected: ledger.CurrentVersion}
	}
}

func (s *Store) Save(_ context.Context, state *ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
