// Package storage - Submarine swap record persistence.
//
// Every mutating operation here is idempotent at the row level: inserts
// target a fresh primary key or use ignore-on-conflict, and status updates
// are guarded so that re-applying an event after a crash never regresses or
// duplicates a transition.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Swap record errors.
var (
	ErrSwapNotFound = errors.New("swap not found")
	ErrSwapExists   = errors.New("swap already exists")
)

// SwapStatus is a swap lifecycle stage. The integer order is load-bearing:
// guarded updates only ever move a record to a strictly higher stage, except
// for the explicit Ignored transition.
type SwapStatus int

const (
	StatusNone       SwapStatus = 0
	StatusRegistered SwapStatus = 1
	StatusDetected   SwapStatus = 2
	StatusInvoiced   SwapStatus = 3
	StatusSettled    SwapStatus = 4
	StatusRepayment  SwapStatus = 5
	StatusIgnored    SwapStatus = 6
)

// String returns the human-readable stage name.
func (st SwapStatus) String() string {
	switch st {
	case StatusNone:
		return "none"
	case StatusRegistered:
		return "registered"
	case StatusDetected:
		return "detected"
	case StatusInvoiced:
		return "invoiced"
	case StatusSettled:
		return "settled"
	case StatusRepayment:
		return "repayment"
	case StatusIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("unknown(%d)", int(st))
	}
}

// CanTransition reports whether a swap may move from one stage to another.
// Ignored is reachable from anywhere; Repayment from Detected or later while
// the record is not already in Repayment or Ignored; every other move must
// strictly advance the stage order.
func CanTransition(from, to SwapStatus) bool {
	switch to {
	case StatusIgnored:
		return true
	case StatusRepayment:
		return from >= StatusDetected && from < StatusRepayment
	default:
		return to > from
	}
}

// SwapRecord is a persisted submarine swap, keyed by payment hash.
type SwapRecord struct {
	PaymentHash string // 32-byte hex, unique

	// Sensitive fields, encrypted at rest.
	Preimage     string // 32-byte hex Lightning preimage
	RepayPrivkey string // 32-byte hex refund private key

	// Redemption script and its derived on-chain address.
	HtlcPubkey    string
	Script        string
	ScriptAddress string

	// Funding outpoint, once observed on-chain.
	InTxid   string // empty until detected
	InIndex  int64  // -1 until detected
	InAmount uint64 // 0 until detected

	// Invoice handed to the LSP at the Invoiced stage.
	Invoice string

	// Height of the most recent relevant transition.
	Height uint32

	Status    SwapStatus
	CreatedAt time.Time
}

// Funded reports whether a funding outpoint has been recorded.
func (r *SwapRecord) Funded() bool {
	return r.InTxid != "" && r.InIndex >= 0
}

// AddSwap inserts a freshly registered swap.
func (s *Storage) AddSwap(r *SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || s.cipher == nil {
		return ErrNotOpen
	}

	encPreimage, err := s.cipher.encrypt(r.Preimage)
	if err != nil {
		return err
	}
	encPrivkey, err := s.cipher.encrypt(r.RepayPrivkey)
	if err != nil {
		return err
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO swaps (
			payment_hash, preimage, repay_privkey, htlc_pubkey, script,
			script_address, in_txid, in_index, in_amount, invoice,
			height, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, '', -1, 0, '', ?, ?, ?)
	`,
		r.PaymentHash, encPreimage, encPrivkey, r.HtlcPubkey, r.Script,
		r.ScriptAddress, r.Height, StatusRegistered, createdAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSwapExists
		}
		return fmt.Errorf("failed to add swap: %w", err)
	}

	return nil
}

// GetSwap retrieves a swap by payment hash, decrypting sensitive fields.
func (s *Storage) GetSwap(paymentHash string) (*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getSwap("payment_hash = ?", paymentHash)
}

// GetSwapByAddress retrieves a swap by its script address.
func (s *Storage) GetSwapByAddress(address string) (*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getSwap("script_address = ?", address)
}

func (s *Storage) getSwap(where string, arg interface{}) (*SwapRecord, error) {
	if s.db == nil || s.cipher == nil {
		return nil, ErrNotOpen
	}

	row := s.db.QueryRow(`
		SELECT payment_hash, preimage, repay_privkey, htlc_pubkey, script,
		       script_address, in_txid, in_index, in_amount, invoice,
		       height, status, created_at
		FROM swaps WHERE `+where, arg)

	r, err := s.scanSwap(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrSwapNotFound
	}
	return r, err
}

// scanSwap scans one swap row and decrypts its sensitive fields.
func (s *Storage) scanSwap(scan func(...interface{}) error) (*SwapRecord, error) {
	var r SwapRecord
	var encPreimage, encPrivkey string
	var createdAt int64

	err := scan(
		&r.PaymentHash, &encPreimage, &encPrivkey, &r.HtlcPubkey, &r.Script,
		&r.ScriptAddress, &r.InTxid, &r.InIndex, &r.InAmount, &r.Invoice,
		&r.Height, &r.Status, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	r.Preimage, err = s.cipher.decryptHexField(encPreimage, 32)
	if err != nil {
		return nil, fmt.Errorf("swap %s preimage: %w", r.PaymentHash, err)
	}
	r.RepayPrivkey, err = s.cipher.decryptHexField(encPrivkey, 32)
	if err != nil {
		return nil, fmt.Errorf("swap %s privkey: %w", r.PaymentHash, err)
	}

	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

// listSwaps runs a filtered query, skipping corrupt records with a logged
// error instead of failing the whole result set.
func (s *Storage) listSwaps(where string, args ...interface{}) ([]*SwapRecord, error) {
	if s.db == nil || s.cipher == nil {
		return nil, ErrNotOpen
	}

	query := `
		SELECT payment_hash, preimage, repay_privkey, htlc_pubkey, script,
		       script_address, in_txid, in_index, in_amount, invoice,
		       height, status, created_at
		FROM swaps`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	defer rows.Close()

	var records []*SwapRecord
	for rows.Next() {
		r, err := s.scanSwap(rows.Scan)
		if err != nil {
			if errors.Is(err, ErrCorruptRecord) {
				s.log.Error("Dropping corrupt swap record", "error", err)
				continue
			}
			return nil, fmt.Errorf("failed to scan swap: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// ListSwaps returns every swap record (diagnostics).
func (s *Storage) ListSwaps() ([]*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listSwaps("")
}

// UnfundedSwapAddresses returns the addresses of swaps that have never seen
// an on-chain deposit.
func (s *Storage) UnfundedSwapAddresses() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.Query(`
		SELECT script_address FROM swaps
		WHERE in_txid = '' AND status = ?
		ORDER BY created_at
	`, StatusRegistered)
	if err != nil {
		return nil, fmt.Errorf("failed to list swap addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, addr)
	}

	return addresses, rows.Err()
}

// SetSwapFunding records the detected funding outpoint and advances the swap
// to Detected. The update is guarded on the current status, so a replayed
// detection of the same deposit is a no-op.
func (s *Storage) SetSwapFunding(paymentHash, txid string, index int64, amount uint64, height uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, ErrNotOpen
	}

	res, err := s.db.Exec(`
		UPDATE swaps
		SET in_txid = ?, in_index = ?, in_amount = ?, height = ?, status = ?
		WHERE payment_hash = ? AND status < ?
	`, txid, index, amount, height, StatusDetected, paymentHash, StatusDetected)
	if err != nil {
		return false, fmt.Errorf("failed to set swap funding: %w", err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetSwapInvoice stores the invoice handed to the LSP and advances the swap
// to Invoiced, guarded against regression.
func (s *Storage) SetSwapInvoice(paymentHash, invoice string, height uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, ErrNotOpen
	}

	res, err := s.db.Exec(`
		UPDATE swaps SET invoice = ?, height = ?, status = ?
		WHERE payment_hash = ? AND status < ?
	`, invoice, height, StatusInvoiced, paymentHash, StatusInvoiced)
	if err != nil {
		return false, fmt.Errorf("failed to set swap invoice: %w", err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SettleSwap marks a swap Settled when its invoice is paid. Guarded, so a
// re-delivered payment notification is a no-op.
func (s *Storage) SettleSwap(paymentHash string, height uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, ErrNotOpen
	}

	res, err := s.db.Exec(`
		UPDATE swaps SET height = ?, status = ?
		WHERE payment_hash = ? AND status < ?
	`, height, StatusSettled, paymentHash, StatusSettled)
	if err != nil {
		return false, fmt.Errorf("failed to settle swap: %w", err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IgnoreSwap withdraws a swap from automatic processing. The status is set
// unconditionally.
func (s *Storage) IgnoreSwap(paymentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}

	res, err := s.db.Exec(`
		UPDATE swaps SET status = ? WHERE payment_hash = ?
	`, StatusIgnored, paymentHash)
	if err != nil {
		return fmt.Errorf("failed to ignore swap: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrSwapNotFound
	}
	return nil
}

// isUniqueConstraintError checks for a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return contains(err.Error(), "UNIQUE constraint failed")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
