// Package storage - On-the-fly receive bookkeeping.
//
// On-the-fly receives are Lightning payments accepted before sufficient
// channel capacity exists, brokered by the LSP. They are a simpler one-shot
// flow: Registered, then Settled. They share the payment-hash namespace
// convention with submarine swaps but never touch swap rows.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrOnTheFlyNotFound is returned when no on-the-fly row matches.
var ErrOnTheFlyNotFound = errors.New("on-the-fly payment not found")

// OnTheFlyRecord tracks one on-the-fly receive, keyed by payment hash.
type OnTheFlyRecord struct {
	PaymentHash string
	Amount      uint64
	Invoice     string
	Status      SwapStatus // Registered or Settled
	CreatedAt   time.Time
}

// AddOnTheFly registers an on-the-fly receive.
func (s *Storage) AddOnTheFly(r *OnTheFlyRecord) error {
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
		INSERT OR IGNORE INTO onthefly (payment_hash, amount, invoice, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.PaymentHash, r.Amount, r.Invoice, StatusRegistered, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add on-the-fly payment: %w", err)
	}
	return nil
}

// SettleOnTheFly marks an on-the-fly receive settled. Guarded, idempotent.
// Returns true if the row advanced.
func (s *Storage) SettleOnTheFly(paymentHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, ErrNotOpen
	}

	res, err := s.db.Exec(`
		UPDATE onthefly SET status = ? WHERE payment_hash = ? AND status < ?
	`, StatusSettled, paymentHash, StatusSettled)
	if err != nil {
		return false, fmt.Errorf("failed to settle on-the-fly payment: %w", err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetOnTheFly retrieves an on-the-fly receive by payment hash.
func (s *Storage) GetOnTheFly(paymentHash string) (*OnTheFlyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	var r OnTheFlyRecord
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT payment_hash, amount, invoice, status, created_at
		FROM onthefly WHERE payment_hash = ?
	`, paymentHash).Scan(&r.PaymentHash, &r.Amount, &r.Invoice, &r.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrOnTheFlyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get on-the-fly payment: %w", err)
	}

	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

// ListOnTheFly returns every on-the-fly record (diagnostics).
func (s *Storage) ListOnTheFly() ([]*OnTheFlyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.Query(`
		SELECT payment_hash, amount, invoice, status, created_at
		FROM onthefly ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list on-the-fly payments: %w", err)
	}
	defer rows.Close()

	var records []*OnTheFlyRecord
	for rows.Next() {
		var r OnTheFlyRecord
		var createdAt int64
		if err := rows.Scan(&r.PaymentHash, &r.Amount, &r.Invoice, &r.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan on-the-fly payment: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &r)
	}

	return records, rows.Err()
}
