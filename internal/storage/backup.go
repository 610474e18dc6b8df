// Package storage - Backup envelope export and restore.
//
// A backup is a version-tagged JSON envelope wrapping a base64 snapshot of
// the database file. The snapshot is taken after a WAL checkpoint so the
// main file is self-contained. Sensitive columns stay encrypted inside the
// snapshot; restoring on another device requires the same seed phrase.
package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BackupVersion is the envelope version this code writes and accepts.
const BackupVersion = 1

// Backup errors.
var (
	ErrBackupVersion = errors.New("unsupported backup version")
	ErrBackupCorrupt = errors.New("backup payload is corrupt")
)

// BackupEnvelope is the serialized backup format.
type BackupEnvelope struct {
	Version   int    `json:"version"`
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	Database  string `json:"database"` // base64 snapshot of the db file
}

// ExportBackup snapshots the database into a backup envelope.
func (s *Storage) ExportBackup() (*BackupEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	// Fold the WAL into the main file so the snapshot is complete.
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("failed to checkpoint database: %w", err)
	}

	data, err := os.ReadFile(s.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read database file: %w", err)
	}

	return &BackupEnvelope{
		Version:   BackupVersion,
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Unix(),
		Database:  base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Marshal serializes the envelope as JSON.
func (b *BackupEnvelope) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// ParseBackup parses and validates a backup envelope.
func ParseBackup(data []byte) (*BackupEnvelope, error) {
	var b BackupEnvelope
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackupCorrupt, err)
	}
	if b.Version != BackupVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBackupVersion, b.Version, BackupVersion)
	}
	if b.Database == "" {
		return nil, fmt.Errorf("%w: empty database payload", ErrBackupCorrupt)
	}
	return &b, nil
}

// RestoreBackup writes the snapshot back into the data directory. The store
// must not be open on that directory while restoring. The restored database
// is verified by opening it afterwards.
func RestoreBackup(b *BackupEnvelope, dataDir, mnemonic string) error {
	data, err := base64.StdEncoding.DecodeString(b.Database)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackupCorrupt, err)
	}

	dataDir = expandPath(dataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "photon.db")
	if err := os.WriteFile(dbPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write database file: %w", err)
	}
	// Stale WAL files must not shadow the restored snapshot.
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")

	store, err := Open(&Config{DataDir: dataDir, Mnemonic: mnemonic})
	if err != nil {
		return fmt.Errorf("restored database failed to open: %w", err)
	}
	return store.Close()
}
