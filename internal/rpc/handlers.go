package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/photon-wallet/photon/internal/storage"
)

// SwapInfo is the client-facing view of a swap. Key material never leaves
// the daemon.
type SwapInfo struct {
	PaymentHash   string `json:"payment_hash"`
	ScriptAddress string `json:"script_address"`
	InTxid        string `json:"in_txid,omitempty"`
	InIndex       int64  `json:"in_index,omitempty"`
	InAmount      uint64 `json:"in_amount,omitempty"`
	Height        uint32 `json:"height"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"created_at"`
}

func swapToInfo(r *storage.SwapRecord) *SwapInfo {
	return &SwapInfo{
		PaymentHash:   r.PaymentHash,
		ScriptAddress: r.ScriptAddress,
		InTxid:        r.InTxid,
		InIndex:       r.InIndex,
		InAmount:      r.InAmount,
		Height:        r.Height,
		Status:        r.Status.String(),
		CreatedAt:     r.CreatedAt.Unix(),
	}
}

// currentHeight resolves the height a query should be evaluated at: the
// caller's explicit height if given, otherwise the last reconciled height.
func (s *Server) currentHeight(explicit uint32) (uint32, error) {
	if explicit != 0 {
		return explicit, nil
	}
	return s.store.LastBlockHeight()
}

// swapCreateAddress handles swap_createAddress.
func (s *Server) swapCreateAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	address, err := s.swapper.CreateSwapAddress(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"address": address}, nil
}

// swapListAddresses handles swap_listAddresses.
func (s *Server) swapListAddresses(ctx context.Context, params json.RawMessage) (interface{}, error) {
	addresses, err := s.swapper.SwapAddresses()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"addresses": addresses}, nil
}

// swapList handles swap_list.
func (s *Server) swapList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	records, err := s.store.ListSwaps()
	if err != nil {
		return nil, err
	}
	infos := make([]*SwapInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, swapToInfo(r))
	}
	return map[string]interface{}{"swaps": infos}, nil
}

// swapIgnore handles swap_ignore.
func (s *Server) swapIgnore(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaymentHash string `json:"payment_hash"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.PaymentHash == "" {
		return nil, fmt.Errorf("payment_hash is required")
	}
	if err := s.swapper.IgnoreSwap(p.PaymentHash); err != nil {
		return nil, err
	}
	return map[string]bool{"ignored": true}, nil
}

// swapRegisterOnTheFly handles swap_registerOnTheFly.
func (s *Server) swapRegisterOnTheFly(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaymentHash string `json:"payment_hash"`
		AmountSats  uint64 `json:"amount_sats"`
		Invoice     string `json:"invoice"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.swapper.RegisterOnTheFly(p.PaymentHash, p.AmountSats, p.Invoice); err != nil {
		return nil, err
	}
	return map[string]bool{"registered": true}, nil
}

// swapRepayableAmount handles swap_repayableAmount.
func (s *Server) swapRepayableAmount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Height uint32 `json:"height"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	height, err := s.currentHeight(p.Height)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"amount_sats": s.swapper.RepayableAmount(ctx, height)}, nil
}

// swapNonRepayableAmount handles swap_nonRepayableAmount.
func (s *Server) swapNonRepayableAmount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Height uint32 `json:"height"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	height, err := s.currentHeight(p.Height)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"amount_sats": s.swapper.NonRepayableAmount(ctx, height)}, nil
}

// swapRefund handles swap_refund.
func (s *Server) swapRefund(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Address string `json:"address"`
		Height  uint32 `json:"height"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	height, err := s.currentHeight(p.Height)
	if err != nil {
		return nil, err
	}
	txid, err := s.swapper.Refund(ctx, p.Address, height)
	if err != nil {
		return nil, err
	}
	return map[string]string{"txid": txid}, nil
}

// repaymentsList handles repayments_list.
func (s *Server) repaymentsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	records, err := s.store.ListRepayments()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"repayments": records}, nil
}

// paymentsList handles payments_list.
func (s *Server) paymentsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	records, err := s.store.ListPayments()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"payments": records}, nil
}

// backupExport handles backup_export.
func (s *Server) backupExport(ctx context.Context, params json.RawMessage) (interface{}, error) {
	env, err := s.store.ExportBackup()
	if err != nil {
		return nil, err
	}
	return env, nil
}

// debugDump handles debug_dump: swap and repayment state plus the manager
// row, for support diagnostics.
func (s *Server) debugDump(ctx context.Context, params json.RawMessage) (interface{}, error) {
	swaps, err := s.store.ListSwaps()
	if err != nil {
		return nil, err
	}
	infos := make([]*SwapInfo, 0, len(swaps))
	for _, r := range swaps {
		infos = append(infos, swapToInfo(r))
	}

	repayments, err := s.store.ListRepayments()
	if err != nil {
		return nil, err
	}

	height, err := s.store.LastBlockHeight()
	if err != nil {
		return nil, err
	}

	flags, err := s.store.DebugFlags()
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"swaps":             infos,
		"repayments":        repayments,
		"last_block_height": height,
		"debug_flags":       flags,
	}, nil
}

// debugSetAutoSwapDisabled handles debug_setAutoSwapDisabled.
func (s *Server) debugSetAutoSwapDisabled(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Disabled bool `json:"disabled"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.swapper.SetAutoSwapDisabled(p.Disabled); err != nil {
		return nil, err
	}
	return map[string]bool{"disabled": p.Disabled}, nil
}
