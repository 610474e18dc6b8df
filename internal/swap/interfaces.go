// Package swap implements the submarine swap subsystem: the swap state
// machine, chain height reconciliation, repayment selection and the refund
// executor.
package swap

import "context"

// SwapKeys is the key material for one swap.
type SwapKeys struct {
	Preimage     string // 32-byte hex
	PaymentHash  string // 32-byte hex, SHA-256 of the preimage
	RepayPrivkey string // 32-byte hex
	RepayPubkey  string // 33-byte compressed hex
}

// SwapRegistration is the LSP's answer to a swap registration.
type SwapRegistration struct {
	HtlcPubkey    string // LSP's claim pubkey, 33-byte compressed hex
	Script        string // redemption script, hex
	ScriptAddress string // P2WSH address of the script
	Height        uint32 // chain height at registration
}

// RefundInput is one deposit to spend in a refund transaction.
type RefundInput struct {
	Privkey string // 32-byte hex repayment private key
	Script  string // redemption script, hex
	Txid    string
	Index   int64
	Amount  uint64
}

// Lsp is the liquidity-service-provider counterparty.
type Lsp interface {
	// RegisterSwap announces a new swap and returns the redemption script
	// the LSP will watch.
	RegisterSwap(ctx context.Context, paymentHash, repayPubkey string) (*SwapRegistration, error)

	// QuoteFee returns the LSP's fee in sats for swapping the given amount.
	QuoteFee(ctx context.Context, amountSats uint64) (uint64, error)

	// SendInvoice hands the swap invoice to the LSP. A definitive refusal is
	// reported as ErrInvoiceRejected; any other error is transient.
	SendInvoice(ctx context.Context, paymentHash, invoice string) error

	// RefundCsvHeight returns the relative-timelock depth baked into swap
	// scripts.
	RefundCsvHeight(ctx context.Context) (uint32, error)

	// SubmitRefundTx builds and broadcasts a transaction spending the given
	// deposits to destAddress, returning the transaction id.
	SubmitRefundTx(ctx context.Context, inputs []RefundInput, destAddress, label string) (string, error)
}

// TxOutput is one output of an observed on-chain transaction.
type TxOutput struct {
	Address string
	Index   int64
	Amount  uint64
}

// Transaction is an on-chain transaction relevant to the wallet.
type Transaction struct {
	Txid          string
	Outputs       []TxOutput
	Height        uint32
	Confirmations uint32
}

// Node is the local Lightning node.
type Node interface {
	// CreateInvoice creates a Lightning invoice with the given preimage, so
	// its payment hash provably matches the swap.
	CreateInvoice(ctx context.Context, amountSats uint64, description string, expirySec int64, preimageHex string, privateHints bool) (string, error)

	// ListTransactions enumerates received on-chain transactions in the
	// inclusive height range.
	ListTransactions(ctx context.Context, fromHeight, toHeight uint32) ([]Transaction, error)

	// SubscribeTransactions registers a callback for newly seen on-chain
	// transactions.
	SubscribeTransactions(cb func(Transaction)) error

	// ReceivableSats is the amount receivable over existing channels.
	ReceivableSats(ctx context.Context) (uint64, error)

	// ChannelCapacitySats is the aggregate capacity of all channels.
	ChannelCapacitySats(ctx context.Context) (uint64, error)
}
