// Package storage - Settled payment history.
package storage

import (
	"fmt"
	"time"
)

// PaymentRecord is a settled Lightning receive, kept for wallet history.
type PaymentRecord struct {
	PaymentHash string
	Amount      uint64
	Description string
	SettledAt   time.Time
}

// AddPayment records a settled receive. Duplicate notifications for the same
// payment hash are silently discarded.
func (s *Storage) AddPayment(r *PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}

	settledAt := r.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO payments (payment_hash, amount, description, settled_at)
		VALUES (?, ?, ?, ?)
	`, r.PaymentHash, r.Amount, r.Description, settledAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add payment: %w", err)
	}
	return nil
}

// ListPayments returns every settled payment, newest first.
func (s *Storage) ListPayments() ([]*PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.Query(`
		SELECT payment_hash, amount, description, settled_at
		FROM payments ORDER BY settled_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var records []*PaymentRecord
	for rows.Next() {
		var r PaymentRecord
		var settledAt int64
		if err := rows.Scan(&r.PaymentHash, &r.Amount, &r.Description, &settledAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		r.SettledAt = time.Unix(settledAt, 0)
		records = append(records, &r)
	}

	return records, rows.Err()
}
