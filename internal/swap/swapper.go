// Package swap - The Swapper owns the swap state machine and its
// collaborators.
package swap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/photon-wallet/photon/internal/chain"
	"github.com/photon-wallet/photon/internal/storage"
	"github.com/photon-wallet/photon/pkg/helpers"
	"github.com/photon-wallet/photon/pkg/logging"
)

// Swap errors.
var (
	// ErrInvoiceRejected marks a definitive LSP refusal of a swap invoice.
	// Implementations of Lsp wrap it; the swap is then withdrawn from
	// automatic processing.
	ErrInvoiceRejected = errors.New("invoice rejected by lsp")

	// ErrCapacityExceeded is returned when completing a swap would push the
	// aggregate channel capacity over the configured cap. The deposit stays
	// Detected pending manual intervention.
	ErrCapacityExceeded = errors.New("aggregate channel capacity cap exceeded")

	// ErrInvalidAddress is returned for a malformed refund destination.
	ErrInvalidAddress = errors.New("invalid destination address")

	// ErrNothingToRefund is returned when no deposit is currently repayable.
	ErrNothingToRefund = errors.New("nothing to refund")
)

// EventType identifies a swap lifecycle event.
type EventType string

const (
	EventSwapRegistered EventType = "swap_registered"
	EventSwapDetected   EventType = "swap_detected"
	EventSwapInvoiced   EventType = "swap_invoiced"
	EventSwapSettled    EventType = "swap_settled"
	EventSwapIgnored    EventType = "swap_ignored"
	EventRepayment      EventType = "repayment_queued"
	EventRefundSent     EventType = "refund_sent"
)

// Event is a swap lifecycle notification for the UI layer.
type Event struct {
	Type        EventType `json:"type"`
	PaymentHash string    `json:"payment_hash,omitempty"`
	Address     string    `json:"address,omitempty"`
	Txid        string    `json:"txid,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
}

// Config holds Swapper dependencies and settings.
type Config struct {
	Store   *storage.Storage
	Lsp     Lsp
	Node    Node
	Network chain.Network

	// MaxChannelCapacitySats caps aggregate channel capacity when a swap
	// needs new inbound capacity.
	MaxChannelCapacitySats uint64

	// InvoiceExpirySec is the expiry of swap invoices handed to the LSP.
	InvoiceExpirySec int64

	// OnEvent, when set, receives swap lifecycle events.
	OnEvent func(Event)

	// BackupSink, when set, receives debounced backup snapshots after
	// state-mutating activity.
	BackupSink func(*storage.BackupEnvelope)
}

// Swapper drives the submarine swap lifecycle. All detection-triggered
// transitions, whether from startup replay or the live feed, are serialized
// through a single mutex: both paths write the same swap rows and must not
// race on the "not yet detected" observation.
type Swapper struct {
	store   *storage.Storage
	lsp     Lsp
	node    Node
	network chain.Network

	maxChannelCapacity uint64
	invoiceExpiry      int64

	onEvent func(Event)
	backup  *BackupTrigger

	log *logging.Logger

	mu sync.Mutex // serializes processing of detected transactions

	csvMu     sync.Mutex
	csvHeight uint32 // cached for process lifetime once fetched
}

// New creates a Swapper.
func New(cfg *Config) *Swapper {
	invoiceExpiry := cfg.InvoiceExpirySec
	if invoiceExpiry == 0 {
		invoiceExpiry = 3600
	}

	s := &Swapper{
		store:              cfg.Store,
		lsp:                cfg.Lsp,
		node:               cfg.Node,
		network:            cfg.Network,
		maxChannelCapacity: cfg.MaxChannelCapacitySats,
		invoiceExpiry:      invoiceExpiry,
		onEvent:            cfg.OnEvent,
		log:                logging.GetDefault().Component("swap"),
	}

	sink := cfg.BackupSink
	if sink == nil {
		sink = func(*storage.BackupEnvelope) {}
	}
	s.backup = NewBackupTrigger(defaultBackupDelay, func() {
		env, err := cfg.Store.ExportBackup()
		if err != nil {
			s.log.Error("Backup snapshot failed", "error", err)
			return
		}
		sink(env)
	})

	return s
}

// Close stops background work owned by the Swapper.
func (s *Swapper) Close() {
	s.backup.Stop()
}

func (s *Swapper) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

// newSwapKeys generates the key material for one swap: a random preimage,
// its SHA-256 payment hash, and a fresh refund keypair.
func (s *Swapper) newSwapKeys() (*SwapKeys, error) {
	preimage, err := helpers.GenerateSecureRandom(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate preimage: %w", err)
	}
	paymentHash := sha256.Sum256(preimage)

	privkey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate repay key: %w", err)
	}

	return &SwapKeys{
		Preimage:     hex.EncodeToString(preimage),
		PaymentHash:  hex.EncodeToString(paymentHash[:]),
		RepayPrivkey: hex.EncodeToString(privkey.Serialize()),
		RepayPubkey:  hex.EncodeToString(privkey.PubKey().SerializeCompressed()),
	}, nil
}

// CreateSwapAddress registers a new swap with the LSP and persists it at the
// Registered stage. Returns the on-chain swap address to deposit to.
func (s *Swapper) CreateSwapAddress(ctx context.Context) (string, error) {
	keys, err := s.newSwapKeys()
	if err != nil {
		return "", err
	}

	reg, err := s.lsp.RegisterSwap(ctx, keys.PaymentHash, keys.RepayPubkey)
	if err != nil {
		return "", fmt.Errorf("swap registration failed: %w", err)
	}

	terms, err := ValidateRegistration(reg, keys.PaymentHash, keys.RepayPubkey, s.network)
	if err != nil {
		return "", fmt.Errorf("lsp returned an unusable swap script: %w", err)
	}

	// Cache the script's CSV depth; it is the same for every swap the LSP
	// issues.
	s.csvMu.Lock()
	if s.csvHeight == 0 {
		s.csvHeight = terms.CsvHeight
	}
	s.csvMu.Unlock()

	err = s.store.AddSwap(&storage.SwapRecord{
		PaymentHash:   keys.PaymentHash,
		Preimage:      keys.Preimage,
		RepayPrivkey:  keys.RepayPrivkey,
		HtlcPubkey:    reg.HtlcPubkey,
		Script:        reg.Script,
		ScriptAddress: reg.ScriptAddress,
		Height:        reg.Height,
	})
	if err != nil {
		return "", err
	}

	s.log.Info("Swap address created", "address", reg.ScriptAddress, "payment_hash", keys.PaymentHash)
	s.emit(Event{Type: EventSwapRegistered, PaymentHash: keys.PaymentHash, Address: reg.ScriptAddress})
	s.backup.Arm()

	return reg.ScriptAddress, nil
}

// SwapAddresses returns all swap addresses that have never been funded.
func (s *Swapper) SwapAddresses() ([]string, error) {
	return s.store.UnfundedSwapAddresses()
}

// OnInvoicePaid handles a Lightning-receive notification. If the payment
// hash matches a submarine swap or an on-the-fly receive, the record is
// settled; otherwise the notification is not ours and is ignored.
func (s *Swapper) OnInvoicePaid(paymentHash string, amountSats uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settled := false
	description := ""

	if advanced, err := s.store.SettleSwap(paymentHash, s.bestKnownHeight()); err != nil {
		s.log.Error("Failed to settle swap", "payment_hash", paymentHash, "error", err)
	} else if advanced {
		settled = true
		description = "submarine swap"
	}

	if !settled {
		if advanced, err := s.store.SettleOnTheFly(paymentHash); err != nil {
			s.log.Error("Failed to settle on-the-fly receive", "payment_hash", paymentHash, "error", err)
		} else if advanced {
			settled = true
			description = "on-the-fly receive"
		}
	}

	if !settled {
		return
	}

	err := s.store.AddPayment(&storage.PaymentRecord{
		PaymentHash: paymentHash,
		Amount:      amountSats,
		Description: description,
	})
	if err != nil {
		s.log.Error("Failed to record payment", "payment_hash", paymentHash, "error", err)
	}

	s.log.Info("Receive settled", "payment_hash", paymentHash, "amount", amountSats)
	s.emit(Event{Type: EventSwapSettled, PaymentHash: paymentHash, Amount: amountSats})
	s.backup.Arm()
}

// RegisterOnTheFly records an LSP-brokered receive that needs no prior
// channel capacity.
func (s *Swapper) RegisterOnTheFly(paymentHash string, amountSats uint64, invoice string) error {
	if !helpers.IsHexOfLen(paymentHash, 32) {
		return fmt.Errorf("payment hash must be 32-byte hex")
	}
	err := s.store.AddOnTheFly(&storage.OnTheFlyRecord{
		PaymentHash: paymentHash,
		Amount:      amountSats,
		Invoice:     invoice,
	})
	if err != nil {
		return err
	}
	s.backup.Arm()
	return nil
}

// IgnoreSwap withdraws a swap from automatic processing (administrative).
func (s *Swapper) IgnoreSwap(paymentHash string) error {
	if err := s.store.IgnoreSwap(paymentHash); err != nil {
		return err
	}
	s.emit(Event{Type: EventSwapIgnored, PaymentHash: paymentHash})
	return nil
}

// SetAutoSwapDisabled toggles the debug flag that stops automatic swap
// execution for detected deposits.
func (s *Swapper) SetAutoSwapDisabled(disabled bool) error {
	if disabled {
		return s.store.SetDebugFlags(storage.DebugFlagNoSwap)
	}
	return s.store.SetDebugFlags("")
}

// refundCsvHeight returns the swap scripts' CSV depth, fetching it from the
// LSP on first use and caching it for the process lifetime.
func (s *Swapper) refundCsvHeight(ctx context.Context) (uint32, error) {
	s.csvMu.Lock()
	defer s.csvMu.Unlock()

	if s.csvHeight != 0 {
		return s.csvHeight, nil
	}

	csv, err := s.lsp.RefundCsvHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch refund csv height: %w", err)
	}
	if csv == 0 {
		return 0, fmt.Errorf("lsp reported zero csv height")
	}

	s.csvHeight = csv
	return csv, nil
}

// bestKnownHeight is the last reconciled height, or 0 if unavailable.
func (s *Swapper) bestKnownHeight() uint32 {
	h, err := s.store.LastBlockHeight()
	if err != nil {
		return 0
	}
	return h
}
