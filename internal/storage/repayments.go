// Package storage - Repayment record persistence and CSV classification.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRepaymentNotFound is returned when an outpoint has no repayment row.
var ErrRepaymentNotFound = errors.New("repayment not found")

// RepaymentRecord tracks a deposit queued for on-chain repayment, keyed by
// its funding outpoint. payment_hash is a back-reference to the originating
// swap, not ownership.
type RepaymentRecord struct {
	OutPoint    string // txid:index
	Txid        string
	OutIndex    int64
	Amount      uint64
	Height      uint32
	PaymentHash string
	Done        bool
	CreatedAt   time.Time
}

// FormatOutPoint renders the canonical outpoint key.
func FormatOutPoint(txid string, index int64) string {
	return fmt.Sprintf("%s:%d", txid, index)
}

// AddRepayment inserts a repayment row for an outpoint. Duplicates are
// silently discarded: an outpoint is recorded at most once.
func (s *Storage) AddRepayment(r *RepaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO repayments (
			out_point, txid, out_index, amount, height, payment_hash, done, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`,
		FormatOutPoint(r.Txid, r.OutIndex), r.Txid, r.OutIndex, r.Amount,
		r.Height, r.PaymentHash, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add repayment: %w", err)
	}
	return nil
}

// ForceRepayment atomically queues a deposit for repayment and flips its swap
// to the Repayment stage, so a concurrent reader never observes one side
// without the other. Used for deposits too small to swap.
func (s *Storage) ForceRepayment(paymentHash string, r *RepaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO repayments (
			out_point, txid, out_index, amount, height, payment_hash, done, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`,
		FormatOutPoint(r.Txid, r.OutIndex), r.Txid, r.OutIndex, r.Amount,
		r.Height, r.PaymentHash, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add repayment: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE swaps SET status = ? WHERE payment_hash = ? AND status < ?
	`, StatusRepayment, paymentHash, StatusRepayment)
	if err != nil {
		return fmt.Errorf("failed to mark swap for repayment: %w", err)
	}

	return tx.Commit()
}

// LockRepayable locks in the authoritative set of repayable deposits for the
// given height: every Detected..Invoiced swap whose CSV window has matured is
// inserted into repayments (duplicate-safe) and flipped to Repayment inside
// one transaction, then all matured, not-yet-done repayment rows are
// returned.
func (s *Storage) LockRepayable(currentHeight, csvHeight uint32) ([]*RepaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO repayments (
			out_point, txid, out_index, amount, height, payment_hash, done, created_at
		)
		SELECT in_txid || ':' || in_index, in_txid, in_index, in_amount,
		       height, payment_hash, 0, ?
		FROM swaps
		WHERE status >= ? AND status <= ?
		  AND in_txid != '' AND in_amount > 0
		  AND ? >= height + ?
	`, now, StatusDetected, StatusInvoiced, currentHeight, csvHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to queue matured swaps: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE swaps SET status = ?
		WHERE status >= ? AND status <= ?
		  AND in_txid != '' AND in_amount > 0
		  AND ? >= height + ?
	`, StatusRepayment, StatusDetected, StatusInvoiced, currentHeight, csvHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to flip matured swaps: %w", err)
	}

	rows, err := tx.Query(`
		SELECT out_point, txid, out_index, amount, height, payment_hash, done, created_at
		FROM repayments
		WHERE done = 0 AND ? >= height + ?
		ORDER BY created_at
	`, currentHeight, csvHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to select repayable deposits: %w", err)
	}

	records, err := scanRepayments(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit repayment lock: %w", err)
	}
	return records, nil
}

// RepayableSum returns the total of deposits whose CSV window has matured
// and that have not yet been repaid. Pure query, never mutates.
func (s *Storage) RepayableSum(currentHeight, csvHeight uint32) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return 0, ErrNotOpen
	}

	var total uint64
	err := s.db.QueryRow(`
		SELECT
			COALESCE((SELECT SUM(amount) FROM repayments
			          WHERE done = 0 AND ? >= height + ?), 0)
			+
			COALESCE((SELECT SUM(in_amount) FROM swaps
			          WHERE status >= ? AND status <= ?
			            AND in_txid != '' AND in_amount > 0
			            AND ? >= height + ?
			            AND NOT EXISTS (
			                SELECT 1 FROM repayments r
			                WHERE r.out_point = swaps.in_txid || ':' || swaps.in_index
			            )), 0)
	`, currentHeight, csvHeight, StatusDetected, StatusInvoiced, currentHeight, csvHeight).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum repayable deposits: %w", err)
	}
	return total, nil
}

// NonRepayableSum returns the total of deposits still inside their CSV
// window. Informational only.
func (s *Storage) NonRepayableSum(currentHeight, csvHeight uint32) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return 0, ErrNotOpen
	}

	var total uint64
	err := s.db.QueryRow(`
		SELECT
			COALESCE((SELECT SUM(amount) FROM repayments
			          WHERE done = 0 AND ? < height + ?), 0)
			+
			COALESCE((SELECT SUM(in_amount) FROM swaps
			          WHERE status >= ? AND status <= ?
			            AND in_txid != '' AND in_amount > 0
			            AND ? < height + ?
			            AND NOT EXISTS (
			                SELECT 1 FROM repayments r
			                WHERE r.out_point = swaps.in_txid || ':' || swaps.in_index
			            )), 0)
	`, currentHeight, csvHeight, StatusDetected, StatusInvoiced, currentHeight, csvHeight).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum non-repayable deposits: %w", err)
	}
	return total, nil
}

// MarkRepaymentsDone marks the given outpoints as repaid in one transaction.
func (s *Storage) MarkRepaymentsDone(outPoints []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}
	if len(outPoints) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(outPoints)), ",")
	args := make([]interface{}, len(outPoints))
	for i, op := range outPoints {
		args[i] = op
	}

	_, err := s.db.Exec(
		"UPDATE repayments SET done = 1 WHERE out_point IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark repayments done: %w", err)
	}
	return nil
}

// GetRepayment retrieves a repayment row by outpoint.
func (s *Storage) GetRepayment(outPoint string) (*RepaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	var r RepaymentRecord
	var done int
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT out_point, txid, out_index, amount, height, payment_hash, done, created_at
		FROM repayments WHERE out_point = ?
	`, outPoint).Scan(
		&r.OutPoint, &r.Txid, &r.OutIndex, &r.Amount, &r.Height,
		&r.PaymentHash, &done, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRepaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repayment: %w", err)
	}

	r.Done = done != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

// ListRepayments returns every repayment record (diagnostics).
func (s *Storage) ListRepayments() ([]*RepaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.Query(`
		SELECT out_point, txid, out_index, amount, height, payment_hash, done, created_at
		FROM repayments ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repayments: %w", err)
	}

	return scanRepayments(rows)
}

type rowScanner interface {
	Next() bool
	Scan(...interface{}) error
	Close() error
	Err() error
}

func scanRepayments(rows rowScanner) ([]*RepaymentRecord, error) {
	defer rows.Close()

	var records []*RepaymentRecord
	for rows.Next() {
		var r RepaymentRecord
		var done int
		var createdAt int64
		err := rows.Scan(
			&r.OutPoint, &r.Txid, &r.OutIndex, &r.Amount, &r.Height,
			&r.PaymentHash, &done, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repayment: %w", err)
		}
		r.Done = done != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &r)
	}

	return records, rows.Err()
}
