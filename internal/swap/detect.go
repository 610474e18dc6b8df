// Package swap - Deposit detection and swap execution.
package swap

import (
	"context"
	"errors"

	"github.com/photon-wallet/photon/internal/storage"
)

// OnTransaction processes a newly observed on-chain transaction. It is the
// entry point for both the live feed and startup replay; the swapper mutex
// serializes the two paths.
func (s *Swapper) OnTransaction(tx Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processTransactionLocked(tx)

	if tx.Height > 0 {
		if err := s.store.SetLastBlockHeight(tx.Height); err != nil {
			s.log.Error("Failed to record block height", "height", tx.Height, "error", err)
		}
	}
}

// processTransactionLocked routes each output paying a known swap address
// through deposit processing. Caller must hold s.mu.
func (s *Swapper) processTransactionLocked(tx Transaction) {
	for _, out := range tx.Outputs {
		record, err := s.store.GetSwapByAddress(out.Address)
		if err != nil {
			if !errors.Is(err, storage.ErrSwapNotFound) {
				s.log.Error("Swap lookup failed", "address", out.Address, "error", err)
			}
			continue
		}

		if err := s.processDeposit(record, tx.Txid, out.Index, out.Amount, tx.Height); err != nil {
			s.log.Error("Deposit processing failed",
				"payment_hash", record.PaymentHash, "txid", tx.Txid, "error", err)
		}
	}
}

// processDeposit applies one detected deposit to a swap record. Re-applying
// the same (txid, index) event is a no-op; a second, distinct outpoint paying
// an already-funded swap address cannot be swapped twice and is queued as an
// extra repayable deposit instead.
func (s *Swapper) processDeposit(record *storage.SwapRecord, txid string, index int64, amount uint64, height uint32) error {
	if record.Funded() && (record.InTxid != txid || record.InIndex != index) {
		s.log.Info("Extra deposit to funded swap address, queueing repayment",
			"payment_hash", record.PaymentHash, "txid", txid, "index", index)
		err := s.store.AddRepayment(&storage.RepaymentRecord{
			Txid:        txid,
			OutIndex:    index,
			Amount:      amount,
			Height:      height,
			PaymentHash: record.PaymentHash,
		})
		if err != nil {
			return err
		}
		s.emit(Event{Type: EventRepayment, PaymentHash: record.PaymentHash, Txid: txid, Amount: amount})
		s.backup.Arm()
		return nil
	}

	advanced, err := s.store.SetSwapFunding(record.PaymentHash, txid, index, amount, height)
	if err != nil {
		return err
	}
	if advanced {
		s.log.Info("Swap deposit detected",
			"payment_hash", record.PaymentHash, "txid", txid, "amount", amount, "height", height)
		s.emit(Event{Type: EventSwapDetected, PaymentHash: record.PaymentHash, Txid: txid, Amount: amount})
		s.backup.Arm()
	}

	// Reload: the record may have just advanced, or may still be Detected
	// from an earlier attempt whose invoice hand-off failed.
	record, err = s.store.GetSwap(record.PaymentHash)
	if err != nil {
		return err
	}
	if record.Status != storage.StatusDetected {
		return nil
	}

	return s.executeSwap(context.Background(), record)
}

// executeSwap attempts to convert a Detected deposit into a Lightning
// receive. A transient collaborator failure leaves the record Detected and
// is retried on the next reconciliation pass.
func (s *Swapper) executeSwap(ctx context.Context, record *storage.SwapRecord) error {
	fee, err := s.lsp.QuoteFee(ctx, record.InAmount)
	if err != nil {
		return err
	}

	// A deposit that cannot outpay the swap fee nets the user nothing; it
	// goes straight back on-chain.
	if record.InAmount <= fee {
		s.log.Info("Deposit below swap fee, forcing repayment",
			"payment_hash", record.PaymentHash, "amount", record.InAmount, "fee", fee)
		err := s.store.ForceRepayment(record.PaymentHash, &storage.RepaymentRecord{
			Txid:        record.InTxid,
			OutIndex:    record.InIndex,
			Amount:      record.InAmount,
			Height:      record.Height,
			PaymentHash: record.PaymentHash,
		})
		if err != nil {
			return err
		}
		s.emit(Event{Type: EventRepayment, PaymentHash: record.PaymentHash, Txid: record.InTxid, Amount: record.InAmount})
		s.backup.Arm()
		return nil
	}

	receivable, err := s.node.ReceivableSats(ctx)
	if err != nil {
		return err
	}
	if record.InAmount > receivable {
		// Completing the swap needs new channel capacity.
		capacity, err := s.node.ChannelCapacitySats(ctx)
		if err != nil {
			return err
		}
		if capacity+record.InAmount > s.maxChannelCapacity {
			return ErrCapacityExceeded
		}
	}

	if s.store.HasDebugFlag(storage.DebugFlagNoSwap) {
		s.log.Warn("Swap auto-execution disabled, deposit left detected",
			"payment_hash", record.PaymentHash)
		return nil
	}

	invoice, err := s.node.CreateInvoice(ctx, record.InAmount-fee, "Submarine swap",
		s.invoiceExpiry, record.Preimage, true)
	if err != nil {
		return err
	}

	if err := s.lsp.SendInvoice(ctx, record.PaymentHash, invoice); err != nil {
		if errors.Is(err, ErrInvoiceRejected) {
			s.log.Warn("LSP rejected swap invoice, withdrawing swap",
				"payment_hash", record.PaymentHash, "error", err)
			if ignoreErr := s.store.IgnoreSwap(record.PaymentHash); ignoreErr != nil {
				return ignoreErr
			}
			s.emit(Event{Type: EventSwapIgnored, PaymentHash: record.PaymentHash})
			s.backup.Arm()
			return nil
		}
		return err
	}

	advanced, err := s.store.SetSwapInvoice(record.PaymentHash, invoice, record.Height)
	if err != nil {
		return err
	}
	if advanced {
		s.log.Info("Swap invoice handed to LSP",
			"payment_hash", record.PaymentHash, "amount", record.InAmount-fee)
		s.emit(Event{Type: EventSwapInvoiced, PaymentHash: record.PaymentHash, Amount: record.InAmount - fee})
		s.backup.Arm()
	}

	return nil
}
