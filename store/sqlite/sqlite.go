/*
Package sqlite provides a SQLite-backed implementation of the ledger storage interfaces.

PURPOSE:
  Persists ledger snapshots and the pass audit trail in a single SQLite file.
  The snapshot is split across tables so the journal can be queried directly
  and grows by appending rows rather than rewriting a document.

INTERFACES IMPLEMENTED:
  ledger.Store:       Snapshot load/save
  ledger.RunRecorder: Pass audit trail

APPEND-ONLY ENFORCEMENT:
  The journal table is append-only:
  - Save inserts only the journal tail the table does not hold yet
  - No UPDATE or DELETE statements on the journal table
  - A snapshot with fewer journal entries than stored is rejected

KEY TABLES:
  ledger_meta:         Single row of scalar ledger fields
  balances:            Member shares (replaced on every save)
  journal:             Applied operations in application order
  reconciliation_runs: One row per pass attempt, times in Unix milliseconds

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so an
  in-memory database is shared by every query.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/coopbank.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  manager := ledger.NewManager(store, client, ledger.WithRunRecorder(store))

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/coop-banker/ledger"
)

// ErrJournalRewritten is returned when a snapshot would drop journal rows.
var ErrJournalRewritten = errors.New("journal is append-only: snapshot has fewer entries than stored")

// Store implements ledger.Store and ledger.RunRecorder using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Scalar ledger fields, at most one row
	CREATE TABLE IF NOT EXISTS ledger_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		cursor INTEGER NOT NULL,
		last_check INTEGER NOT NULL,
		balance TEXT NOT NULL,
		bank_interest TEXT NOT NULL,
		drift TEXT NOT NULL,
		upgrade_cap INTEGER,
		updated_at TEXT NOT NULL
	);

	-- Member shares of the pool
	CREATE TABLE IF NOT EXISTS balances (
		member TEXT PRIMARY KEY,
		amount TEXT NOT NULL
	);

	-- Journal (append-only, seq is the application order)
	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY,
		at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		member TEXT,
		sender TEXT,
		receiver TEXT,
		repeat_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_journal_at
		ON journal(at);

	-- Reconciliation Runs (one per pass attempt)
	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		new_entries INTEGER NOT NULL DEFAULT 0,
		anomaly BOOLEAN NOT NULL DEFAULT FALSE,
		drift TEXT NOT NULL DEFAULT '0',
		cursor INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_started
		ON reconciliation_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT STORE (ledger.Store interface)
// =============================================================================

// Save persists state in one transaction.
func (s *Store) Save(ctx context.Context, state *ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var upgradeCap sql.NullInt64
	if state.UpgradeCap != nil {
		upgradeCap = sql.NullInt64{Int64: *state.UpgradeCap, Valid: true}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO ledger_meta (id, version, cursor, last_check, balance, bank_interest, drift, upgrade_cap, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			cursor = excluded.cursor,
			last_check = excluded.last_check,
			balance = excluded.balance,
			bank_interest = excluded.bank_interest,
			drift = excluded.drift,
			upgrade_cap = excluded.upgrade_cap,
			updated_at = excluded.updated_at
	`,
		state.Version,
		int64(state.Cursor),
		int64(state.LastCheck),
		state.Balance.String(),
		state.BankInterest.String(),
		state.Drift.String(),
		upgradeCap,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save ledger meta: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM balances"); err != nil {
		return fmt.Errorf("failed to clear balances: %w", err)
	}
	for member, amount := range state.Balances {
		if _, err := sqlTx.ExecContext(ctx,
			"INSERT INTO balances (member, amount) VALUES (?, ?)",
			string(member), amount.String(),
		); err != nil {
			return fmt.Errorf("failed to save balance of %s: %w", member, err)
		}
	}

	var stored int
	if err := sqlTx.QueryRowContext(ctx, "SELECT COUNT(*) FROM journal").Scan(&stored); err != nil {
		return fmt.Errorf("failed to count journal: %w", err)
	}
	if stored > len(state.Journal) {
		return fmt.Errorf("%w (stored %d, snapshot %d)", ErrJournalRewritten, stored, len(state.Journal))
	}
	for seq := stored; seq < len(state.Journal); seq++ {
		if err := appendEntry(ctx, sqlTx, seq, state.Journal[seq]); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func appendEntry(ctx context.Context, tx *sql.Tx, seq int, e ledger.Entry) error {
	op := e.Operation
	_, err := tx.ExecContext(ctx, `
		INSERT INTO journal (seq, at, kind, amount, member, sender, receiver, repeat_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		seq,
		int64(e.At),
		string(op.Kind),
		op.Amount.String(),
		nullString(string(op.Member)),
		nullString(string(op.Sender)),
		nullString(string(op.Receiver)),
		op.RepeatCount,
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry %d: %w", seq, err)
	}
	return nil
}

// Load reads the latest snapshot.
func (s *Store) Load(ctx context.Context) (*ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := ledger.NewState()

	var cursor, lastCheck int64
	var balance, interest, drift string
	var upgradeCap sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT version, cursor, last_check, balance, bank_interest, drift, upgrade_cap
		FROM ledger_meta WHERE id = 1
	`).Scan(&state.Version, &cursor, &lastCheck, &balance, &interest, &drift, &upgradeCap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger meta: %w", err)
	}
	if err := ledger.CheckVersion(state); err != nil {
		return nil, err
	}

	state.Cursor = ledger.Timestamp(cursor)
	state.LastCheck = ledger.Timestamp(lastCheck)
	if state.Balance, err = parseAmount(balance); err != nil {
		return nil, err
	}
	if state.BankInterest, err = parseAmount(interest); err != nil {
		return nil, err
	}
	if state.Drift, err = parseAmount(drift); err != nil {
		return nil, err
	}
	if upgradeCap.Valid {
		v := upgradeCap.Int64
		state.UpgradeCap = &v
	}

	if err := s.loadBalances(ctx, state); err != nil {
		return nil, err
	}
	if state.Journal, err = s.queryJournal(ctx, "SELECT at, kind, amount, member, sender, receiver, repeat_count FROM journal ORDER BY seq ASC"); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) loadBalances(ctx context.Context, state *ledger.State) error {
	rows, err := s.db.QueryContext(ctx, "SELECT member, amount FROM balances")
	if err != nil {
		return fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member, amount string
		if err := rows.Scan(&member, &amount); err != nil {
			return err
		}
		value, err := parseAmount(amount)
		if err != nil {
			return err
		}
		state.Balances[ledger.Username(member)] = value
	}
	return rows.Err()
}

func (s *Store) queryJournal(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var at int64
	var kind, amount string
	var member, sender, receiver sql.NullString
	var repeat int

	if err := rows.Scan(&at, &kind, &amount, &member, &sender, &receiver, &repeat); err != nil {
		return ledger.Entry{}, err
	}
	value, err := parseAmount(amount)
	if err != nil {
		return ledger.Entry{}, err
	}

	return ledger.Entry{
		At: ledger.Timestamp(at),
		Operation: ledger.Operation{
			Kind:        ledger.OperationKind(kind),
			Amount:      value,
			Member:      ledger.Username(member.String),
			Sender:      ledger.Username(sender.String),
			Receiver:    ledger.Username(receiver.String),
			RepeatCount: repeat,
		},
	}, nil
}

// JournalSince returns entries with a timestamp at or after from, in
// application order.
func (s *Store) JournalSince(ctx context.Context, from ledger.Timestamp) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJournal(ctx, `
		SELECT at, kind, amount, member, sender, receiver, repeat_count
		FROM journal WHERE at >= ? ORDER BY seq ASC
	`, int64(from))
}

// =============================================================================
// RUN AUDIT (ledger.RunRecorder interface)
// =============================================================================

// RecordRun saves a pass attempt.
func (s *Store) RecordRun(ctx context.Context, run ledger.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (id, status, new_entries, anomaly, drift, cursor, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Status),
		run.Report.NewEntries,
		run.Report.Anomaly,
		run.Report.Drift.String(),
		int64(run.Report.Cursor),
		nullString(run.Error),
		run.StartedAt.UnixMilli(),
		run.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ledger.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, status, new_entries, anomaly, drift, cursor, error, started_at, completed_at
		FROM reconciliation_runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []ledger.Run
	for rows.Next() {
		var r ledger.Run
		var status, drift string
		var cursor, startedAt, completedAt int64
		var runErr sql.NullString
		if err := rows.Scan(
			&r.ID, &status, &r.Report.NewEntries, &r.Report.Anomaly, &drift, &cursor,
			&runErr, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		r.Status = ledger.RunStatus(status)
		r.Report.Drift, _ = decimal.NewFromString(drift)
		r.Report.Cursor = ledger.Timestamp(cursor)
		r.Error = runErr.String
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		r.CompletedAt = time.UnixMilli(completedAt).UTC()

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"journal", "balances", "ledger_meta", "reconciliation_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseAmount(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", value, err)
	}
	return d, nil
}
