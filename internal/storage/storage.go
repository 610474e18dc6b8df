// Package storage provides the encrypted SQLite record store for the wallet.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/photon-wallet/photon/pkg/logging"
)

// SchemaVersion is the schema version this code expects.
const SchemaVersion = 1

// Store errors.
var (
	ErrNotOpen      = errors.New("store is not open")
	ErrSchemaTooNew = errors.New("database schema is newer than this build supports")
	ErrSchemaTooOld = errors.New("database schema is older than this build supports and no migration exists")
)

// DebugFlagNoSwap disables automatic swap execution when present in the
// manager debug flags. Detected deposits then stay at Detected.
const DebugFlagNoSwap = "no-swap"

// Storage provides durable, crash-consistent persistence for swap records,
// repayment records, on-the-fly receives, payments and the manager row. The
// store is open only once both the database handle and the field cipher
// derived from the wallet seed exist.
type Storage struct {
	db     *sql.DB
	dbPath string
	cipher *fieldCipher
	log    *logging.Logger
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
	// Mnemonic is the wallet seed phrase the field cipher is derived from.
	Mnemonic string
}

// Open opens (creating if necessary) the wallet database.
func Open(cfg *Config) (*Storage, error) {
	cipher, err := newFieldCipher(cfg.Mnemonic)
	if err != nil {
		return nil, err
	}

	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		cipher.destroy()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "photon.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		cipher.destroy()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		cipher.destroy()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
		cipher: cipher,
		log:    logging.GetDefault().Component("storage"),
	}

	if err := s.initSchema(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.checkSchemaVersion(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database and wipes the derived key material.
func (s *Storage) Close() error {
	if s.cipher != nil {
		s.cipher.destroy()
		s.cipher = nil
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the on-disk database path.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates all tables and seeds the manager row.
func (s *Storage) initSchema() error {
	schema := `
	-- Submarine swap records, keyed by payment hash.
	-- preimage and repay_privkey are encrypted at rest.
	CREATE TABLE IF NOT EXISTS swaps (
		payment_hash   TEXT PRIMARY KEY,
		preimage       TEXT NOT NULL,
		repay_privkey  TEXT NOT NULL,
		htlc_pubkey    TEXT NOT NULL DEFAULT '',
		script         TEXT NOT NULL DEFAULT '',
		script_address TEXT NOT NULL DEFAULT '',
		in_txid        TEXT NOT NULL DEFAULT '',
		in_index       INTEGER NOT NULL DEFAULT -1,
		in_amount      INTEGER NOT NULL DEFAULT 0,
		invoice        TEXT NOT NULL DEFAULT '',
		height         INTEGER NOT NULL DEFAULT 0,
		status         INTEGER NOT NULL DEFAULT 1,
		created_at     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_swaps_address ON swaps(script_address);
	CREATE INDEX IF NOT EXISTS idx_swaps_status ON swaps(status);

	-- Deposits queued for on-chain repayment, keyed by outpoint.
	CREATE TABLE IF NOT EXISTS repayments (
		out_point    TEXT PRIMARY KEY,
		txid         TEXT NOT NULL,
		out_index    INTEGER NOT NULL,
		amount       INTEGER NOT NULL,
		height       INTEGER NOT NULL,
		payment_hash TEXT NOT NULL,
		done         INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_repayments_done ON repayments(done);

	-- On-the-fly receives brokered by the LSP (no prior channel capacity).
	CREATE TABLE IF NOT EXISTS onthefly (
		payment_hash TEXT PRIMARY KEY,
		amount       INTEGER NOT NULL DEFAULT 0,
		invoice      TEXT NOT NULL DEFAULT '',
		status       INTEGER NOT NULL DEFAULT 1,
		created_at   INTEGER NOT NULL
	);

	-- Settled receives, for wallet history.
	CREATE TABLE IF NOT EXISTS payments (
		payment_hash TEXT PRIMARY KEY,
		amount       INTEGER NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		settled_at   INTEGER NOT NULL
	);

	-- Singleton manager row: schema version, reconciliation height, flags.
	CREATE TABLE IF NOT EXISTS manager (
		id                INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version    INTEGER NOT NULL,
		last_block_height INTEGER NOT NULL DEFAULT 0,
		debug_flags       TEXT NOT NULL DEFAULT ''
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO manager (id, schema_version, last_block_height, debug_flags)
		VALUES (1, ?, 0, '')
	`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to seed manager row: %w", err)
	}

	return nil
}

// checkSchemaVersion refuses to operate on a database written by a different
// schema version. There is deliberately no migration path here.
func (s *Storage) checkSchemaVersion() error {
	var stored int
	err := s.db.QueryRow("SELECT schema_version FROM manager WHERE id = 1").Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	switch {
	case stored > SchemaVersion:
		return fmt.Errorf("%w: on-disk version %d, expected %d", ErrSchemaTooNew, stored, SchemaVersion)
	case stored < SchemaVersion:
		return fmt.Errorf("%w: on-disk version %d, expected %d", ErrSchemaTooOld, stored, SchemaVersion)
	}
	return nil
}

// LastBlockHeight returns the last reconciled chain height.
func (s *Storage) LastBlockHeight() (uint32, error) {
	var height uint32
	err := s.db.QueryRow("SELECT last_block_height FROM manager WHERE id = 1").Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("failed to read last block height: %w", err)
	}
	return height, nil
}

// SetLastBlockHeight records the last reconciled chain height. The update is
// monotonic: a height that is not strictly greater is a no-op.
func (s *Storage) SetLastBlockHeight(height uint32) error {
	_, err := s.db.Exec(`
		UPDATE manager SET last_block_height = ? WHERE id = 1 AND last_block_height < ?
	`, height, height)
	if err != nil {
		return fmt.Errorf("failed to set last block height: %w", err)
	}
	return nil
}

// DebugFlags returns the free-text debug flag list.
func (s *Storage) DebugFlags() (string, error) {
	var flags string
	err := s.db.QueryRow("SELECT debug_flags FROM manager WHERE id = 1").Scan(&flags)
	if err != nil {
		return "", fmt.Errorf("failed to read debug flags: %w", err)
	}
	return flags, nil
}

// SetDebugFlags replaces the debug flag list.
func (s *Storage) SetDebugFlags(flags string) error {
	_, err := s.db.Exec("UPDATE manager SET debug_flags = ? WHERE id = 1", flags)
	if err != nil {
		return fmt.Errorf("failed to set debug flags: %w", err)
	}
	return nil
}

// HasDebugFlag reports whether a flag is present in the debug flag list.
func (s *Storage) HasDebugFlag(flag string) bool {
	flags, err := s.DebugFlags()
	if err != nil {
		return false
	}
	for _, f := range strings.Fields(flags) {
		if f == flag {
			return true
		}
	}
	return false
}

// Reset drops all rows from every table except the manager row. This is the
// only path that physically deletes swap records.
func (s *Storage) Reset() error {
	for _, table := range []string{"swaps", "repayments", "onthefly", "payments"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	_, err := s.db.Exec("UPDATE manager SET last_block_height = 0 WHERE id = 1")
	if err != nil {
		return fmt.Errorf("failed to reset manager: %w", err)
	}
	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
