package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func openTestStore(t *testing.T) (*Storage, string) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "photon-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := Open(&Config{DataDir: tmpDir, Mnemonic: testMnemonic})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store, tmpDir
}

func TestOpen(t *testing.T) {
	store, tmpDir := openTestStore(t)

	dbPath := filepath.Join(tmpDir, "photon.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", store.Path(), dbPath)
	}
}

func TestOpenBadSeed(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "photon-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	_, err = Open(&Config{DataDir: tmpDir, Mnemonic: "not a valid seed phrase"})
	if !errors.Is(err, ErrBadSeed) {
		t.Errorf("Open() error = %v, want ErrBadSeed", err)
	}
}

func TestLastBlockHeightMonotonic(t *testing.T) {
	store, _ := openTestStore(t)

	h, err := store.LastBlockHeight()
	if err != nil {
		t.Fatalf("LastBlockHeight() error = %v", err)
	}
	if h != 0 {
		t.Errorf("initial height = %d, want 0", h)
	}

	if err := store.SetLastBlockHeight(100); err != nil {
		t.Fatalf("SetLastBlockHeight(100) error = %v", err)
	}

	// A lower height must not regress the stored value.
	if err := store.SetLastBlockHeight(90); err != nil {
		t.Fatalf("SetLastBlockHeight(90) error = %v", err)
	}
	h, _ = store.LastBlockHeight()
	if h != 100 {
		t.Errorf("height after lower write = %d, want 100", h)
	}

	if err := store.SetLastBlockHeight(105); err != nil {
		t.Fatalf("SetLastBlockHeight(105) error = %v", err)
	}
	h, _ = store.LastBlockHeight()
	if h != 105 {
		t.Errorf("height = %d, want 105", h)
	}
}

func TestDebugFlags(t *testing.T) {
	store, _ := openTestStore(t)

	if store.HasDebugFlag(DebugFlagNoSwap) {
		t.Error("fresh store should have no debug flags")
	}

	if err := store.SetDebugFlags(DebugFlagNoSwap); err != nil {
		t.Fatalf("SetDebugFlags() error = %v", err)
	}
	if !store.HasDebugFlag(DebugFlagNoSwap) {
		t.Error("HasDebugFlag() = false after setting flag")
	}

	if err := store.SetDebugFlags(""); err != nil {
		t.Fatalf("SetDebugFlags(\"\") error = %v", err)
	}
	if store.HasDebugFlag(DebugFlagNoSwap) {
		t.Error("HasDebugFlag() = true after clearing flags")
	}
}

func TestSchemaVersionGate(t *testing.T) {
	store, tmpDir := openTestStore(t)

	dbPath := store.Path()
	setVersion := func(v int) {
		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			t.Fatalf("failed to open raw db: %v", err)
		}
		defer db.Close()
		if _, err := db.Exec("UPDATE manager SET schema_version = ?", v); err != nil {
			t.Fatalf("failed to set schema version: %v", err)
		}
	}

	store.Close()

	setVersion(SchemaVersion + 1)
	_, err := Open(&Config{DataDir: tmpDir, Mnemonic: testMnemonic})
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("Open() with newer schema error = %v, want ErrSchemaTooNew", err)
	}

	setVersion(SchemaVersion - 1)
	_, err = Open(&Config{DataDir: tmpDir, Mnemonic: testMnemonic})
	if !errors.Is(err, ErrSchemaTooOld) {
		t.Errorf("Open() with older schema error = %v, want ErrSchemaTooOld", err)
	}
}

func TestReset(t *testing.T) {
	store, _ := openTestStore(t)

	err := store.AddSwap(testSwapRecord("aa"))
	if err != nil {
		t.Fatalf("AddSwap() error = %v", err)
	}
	if err := store.SetLastBlockHeight(500); err != nil {
		t.Fatalf("SetLastBlockHeight() error = %v", err)
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	swaps, err := store.ListSwaps()
	if err != nil {
		t.Fatalf("ListSwaps() error = %v", err)
	}
	if len(swaps) != 0 {
		t.Errorf("swaps after reset = %d, want 0", len(swaps))
	}
	h, _ := store.LastBlockHeight()
	if h != 0 {
		t.Errorf("height after reset = %d, want 0", h)
	}
}
