// Package swap - Refund executor.
package swap

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/photon-wallet/photon/internal/chain"
)

// Refund spends every currently repayable deposit to destAddress in one
// transaction. On a well-formed returned txid every included repayment is
// marked done; on anything else nothing is marked, so the deposits remain
// selectable for a retry.
func (s *Swapper) Refund(ctx context.Context, destAddress string, currentHeight uint32) (string, error) {
	if err := chain.ValidateAddress(destAddress, s.network); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	csv, err := s.refundCsvHeight(ctx)
	if err != nil {
		return "", err
	}

	// Authoritative selection: locks matured deposits into repayment rows.
	deposits, err := s.store.LockRepayable(currentHeight, csv)
	if err != nil {
		return "", err
	}
	if len(deposits) == 0 {
		return "", ErrNothingToRefund
	}

	inputs := make([]RefundInput, 0, len(deposits))
	outPoints := make([]string, 0, len(deposits))
	for _, dep := range deposits {
		record, err := s.store.GetSwap(dep.PaymentHash)
		if err != nil {
			return "", fmt.Errorf("failed to load swap for outpoint %s: %w", dep.OutPoint, err)
		}
		inputs = append(inputs, RefundInput{
			Privkey: record.RepayPrivkey,
			Script:  record.Script,
			Txid:    dep.Txid,
			Index:   dep.OutIndex,
			Amount:  dep.Amount,
		})
		outPoints = append(outPoints, dep.OutPoint)
	}

	label := "refund-" + uuid.NewString()
	txid, err := s.lsp.SubmitRefundTx(ctx, inputs, destAddress, label)
	if err != nil {
		return "", fmt.Errorf("refund broadcast failed: %w", err)
	}
	if !wellFormedTxid(txid) {
		return "", fmt.Errorf("refund broadcast returned malformed txid %q", txid)
	}

	if err := s.store.MarkRepaymentsDone(outPoints); err != nil {
		return "", err
	}

	s.log.Info("Refund broadcast", "txid", txid, "deposits", len(deposits), "dest", destAddress)
	s.emit(Event{Type: EventRefundSent, Txid: txid})
	s.backup.Arm()

	return txid, nil
}

// wellFormedTxid reports whether the string is a valid 64-hex transaction id.
func wellFormedTxid(txid string) bool {
	if len(txid) != chainhash.MaxHashStringSize {
		return false
	}
	_, err := chainhash.NewHashFromStr(txid)
	return err == nil
}
