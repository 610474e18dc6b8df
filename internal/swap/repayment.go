// Package swap - Repayment classification.
package swap

import "context"

// RepayableAmount returns the total of deposits whose CSV window has matured
// at currentHeight. The figure is advisory: any failure degrades to 0,
// authoritative state lives in the store.
func (s *Swapper) RepayableAmount(ctx context.Context, currentHeight uint32) uint64 {
	csv, err := s.refundCsvHeight(ctx)
	if err != nil {
		s.log.Error("Repayable total unavailable", "error", err)
		return 0
	}

	total, err := s.store.RepayableSum(currentHeight, csv)
	if err != nil {
		s.log.Error("Repayable total unavailable", "error", err)
		return 0
	}
	return total
}

// NonRepayableAmount returns the total of deposits still inside their CSV
// window at currentHeight. Advisory, degrades to 0 on failure.
func (s *Swapper) NonRepayableAmount(ctx context.Context, currentHeight uint32) uint64 {
	csv, err := s.refundCsvHeight(ctx)
	if err != nil {
		s.log.Error("Non-repayable total unavailable", "error", err)
		return 0
	}

	total, err := s.store.NonRepayableSum(currentHeight, csv)
	if err != nil {
		s.log.Error("Non-repayable total unavailable", "error", err)
		return 0
	}
	return total
}
