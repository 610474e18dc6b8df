// Package swap - Chain height reconciliation.
package swap

import (
	"context"
	"fmt"
)

// Start replays on-chain transactions missed while the wallet was offline,
// then subscribes to the live feed. The swapper mutex is held for the whole
// replay so a live event for the same outpoint can never be processed before
// its replayed counterpart.
//
// The replay range is inclusive on both ends; re-scanning the boundary
// height is harmless because deposit processing is idempotent.
func (s *Swapper) Start(ctx context.Context, currentHeight uint32) error {
	s.mu.Lock()

	lastHeight, err := s.store.LastBlockHeight()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	txs, err := s.node.ListTransactions(ctx, lastHeight, currentHeight)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to enumerate missed transactions: %w", err)
	}

	s.log.Info("Reconciling chain state",
		"from", lastHeight, "to", currentHeight, "transactions", len(txs))

	for _, tx := range txs {
		s.processTransactionLocked(tx)
	}

	if err := s.store.SetLastBlockHeight(currentHeight); err != nil {
		s.mu.Unlock()
		return err
	}

	s.mu.Unlock()

	// Live events arriving from here on take the same mutex as the replay
	// path just released.
	return s.node.SubscribeTransactions(s.OnTransaction)
}
