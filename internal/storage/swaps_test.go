package storage

import (
	"errors"
	"strings"
	"testing"
)

// testSwapRecord builds a valid swap record whose hex fields are derived
// from a two-character seed so multiple records stay distinct.
func testSwapRecord(seed string) *SwapRecord {
	return &SwapRecord{
		PaymentHash:   strings.Repeat(seed, 32),
		Preimage:      strings.Repeat(seed, 32),
		RepayPrivkey:  strings.Repeat(seed, 32),
		HtlcPubkey:    "02" + strings.Repeat(seed, 32),
		Script:        "a914" + strings.Repeat(seed, 10),
		ScriptAddress: "bc1q" + seed + "swapaddress",
		Height:        100,
	}
}

func TestAddGetSwap(t *testing.T) {
	store, _ := openTestStore(t)

	r := testSwapRecord("ab")
	if err := store.AddSwap(r); err != nil {
		t.Fatalf("AddSwap() error = %v", err)
	}

	got, err := store.GetSwap(r.PaymentHash)
	if err != nil {
		t.Fatalf("GetSwap() error = %v", err)
	}
	if got.Preimage != r.Preimage {
		t.Errorf("Preimage = %s, want %s", got.Preimage, r.Preimage)
	}
	if got.RepayPrivkey != r.RepayPrivkey {
		t.Errorf("RepayPrivkey = %s, want %s", got.RepayPrivkey, r.RepayPrivkey)
	}
	if got.Status != StatusRegistered {
		t.Errorf("Status = %v, want %v", got.Status, StatusRegistered)
	}
	if got.Funded() {
		t.Error("fresh swap reports Funded()")
	}

	// Sensitive fields must not be stored as plaintext.
	var storedPreimage string
	err = store.db.QueryRow(
		"SELECT preimage FROM swaps WHERE payment_hash = ?", r.PaymentHash,
	).Scan(&storedPreimage)
	if err != nil {
		t.Fatalf("raw query error = %v", err)
	}
	if storedPreimage == r.Preimage {
		t.Error("preimage stored in plaintext")
	}

	if err := store.AddSwap(r); !errors.Is(err, ErrSwapExists) {
		t.Errorf("duplicate AddSwap() error = %v, want ErrSwapExists", err)
	}
}

func TestGetSwapByAddress(t *testing.T) {
	store, _ := openTestStore(t)

	r := testSwapRecord("cd")
	if err := store.AddSwap(r); err != nil {
		t.Fatalf("AddSwap() error = %v", err)
	}

	got, err := store.GetSwapByAddress(r.ScriptAddress)
	if err != nil {
		t.Fatalf("GetSwapByAddress() error = %v", err)
	}
	if got.PaymentHash != r.PaymentHash {
		t.Errorf("PaymentHash = %s, want %s", got.PaymentHash, r.PaymentHash)
	}

	if _, err := store.GetSwapByAddress("bc1qunknown"); !errors.Is(err, ErrSwapNotFound) {
		t.Errorf("unknown address error = %v, want ErrSwapNotFound", err)
	}
}

func TestSwapLifecycle(t *testing.T) {
	store, _ := openTestStore(t)

	r := testSwapRecord("ef")
	if err := store.AddSwap(r); err != nil {
		t.Fatalf("AddSwap() error = %v", err)
	}

	advanced, err := store.SetSwapFunding(r.PaymentHash, "txid1", 0, 50000, 110)
	if err != nil {
		t.Fatalf("SetSwapFunding() error = %v", err)
	}
	if !advanced {
		t.Fatal("SetSwapFunding() advanced = false on first detection")
	}

	// Replaying the same detection is a no-op.
	advanced, err = store.SetSwapFunding(r.PaymentHash, "txid1", 0, 50000, 110)
	if err != nil {
		t.Fatalf("replayed SetSwapFunding() error = %v", err)
	}
	if advanced {
		t.Error("replayed SetSwapFunding() advanced = true")
	}

	got, _ := store.GetSwap(r.PaymentHash)
	if got.Status != StatusDetected || !got.Funded() || got.InAmount != 50000 {
		t.Errorf("after funding: status=%v funded=%v amount=%d", got.Status, got.Funded(), got.InAmount)
	}

	advanced, err = store.SetSwapInvoice(r.PaymentHash, "lnbc1invoice", 111)
	if err != nil {
		t.Fatalf("SetSwapInvoice() error = %v", err)
	}
	if !advanced {
		t.Fatal("SetSwapInvoice() advanced = false")
	}

	advanced, err = store.SettleSwap(r.PaymentHash, 112)
	if err != nil {
		t.Fatalf("SettleSwap() error = %v", err)
	}
	if !advanced {
		t.Fatal("SettleSwap() advanced = false")
	}

	// A settled swap never regresses, whatever arrives late.
	advanced, _ = store.SetSwapFunding(r.PaymentHash, "txid2", 1, 70000, 120)
	if advanced {
		t.Error("SetSwapFunding() advanced a settled swap")
	}
	advanced, _ = store.SettleSwap(r.PaymentHash, 130)
	if advanced {
		t.Error("SettleSwap() re-settled a settled swap")
	}

	got, _ = store.GetSwap(r.PaymentHash)
	if got.Status != StatusSettled || got.InTxid != "txid1" {
		t.Errorf("final state: status=%v in_txid=%s", got.Status, got.InTxid)
	}
}

func TestIgnoreSwap(t *testing.T) {
	store, _ := openTestStore(t)

	r := testSwapRecord("12")
	if err := store.AddSwap(r); err != nil {
		t.Fatalf("AddSwap() error = %v", err)
	}

	if err := store.IgnoreSwap(r.PaymentHash); err != nil {
		t.Fatalf("IgnoreSwap() error = %v", err)
	}
	got, _ := store.GetSwap(r.PaymentHash)
	if got.Status != StatusIgnored {
		t.Errorf("Status = %v, want %v", got.Status, StatusIgnored)
	}

	if err := store.IgnoreSwap(strings.Repeat("99", 32)); !errors.Is(err, ErrSwapNotFound) {
		t.Errorf("IgnoreSwap(unknown) error = %v, want ErrSwapNotFound", err)
	}
}

func TestUnfundedSwapAddresses(t *testing.T) {
	store, _ := openTestStore(t)

	a := testSwapRecord("aa")
	b := testSwapRecord("bb")
	for _, r := range []*SwapRecord{a, b} {
		if err := store.AddSwap(r); err != nil {
			t.Fatalf("AddSwap() error = %v", err)
		}
	}

	if _, err := store.SetSwapFunding(a.PaymentHash, "txid1", 0, 1000, 101); err != nil {
		t.Fatalf("SetSwapFunding() error = %v", err)
	}

	addrs, err := store.UnfundedSwapAddresses()
	if err != nil {
		t.Fatalf("UnfundedSwapAddresses() error = %v", err)
	}
	if len(addrs) != 1 || addrs[0] != b.ScriptAddress {
		t.Errorf("addresses = %v, want [%s]", addrs, b.ScriptAddress)
	}
}

func TestListSwapsSkipsCorrupt(t *testing.T) {
	store, _ := openTestStore(t)

	good := testSwapRecord("aa")
	bad := testSwapRecord("bb")
	for _, r := range []*SwapRecord{good, bad} {
		if err := store.AddSwap(r); err != nil {
			t.Fatalf("AddSwap() error = %v", err)
		}
	}

	_, err := store.db.Exec(
		"UPDATE swaps SET preimage = 'garbage' WHERE payment_hash = ?", bad.PaymentHash,
	)
	if err != nil {
		t.Fatalf("failed to corrupt record: %v", err)
	}

	records, err := store.ListSwaps()
	if err != nil {
		t.Fatalf("ListSwaps() error = %v", err)
	}
	if len(records) != 1 || records[0].PaymentHash != good.PaymentHash {
		t.Errorf("ListSwaps() returned %d records, want only the intact one", len(records))
	}

	if _, err := store.GetSwap(bad.PaymentHash); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("GetSwap(corrupt) error = %v, want ErrCorruptRecord", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SwapStatus
		want     bool
	}{
		{StatusRegistered, StatusDetected, true},
		{StatusDetected, StatusInvoiced, true},
		{StatusInvoiced, StatusSettled, true},
		{StatusDetected, StatusRegistered, false},
		{StatusSettled, StatusInvoiced, false},
		{StatusSettled, StatusSettled, false},
		{StatusRegistered, StatusRepayment, false},
		{StatusDetected, StatusRepayment, true},
		{StatusInvoiced, StatusRepayment, true},
		{StatusRepayment, StatusRepayment, false},
		{StatusIgnored, StatusRepayment, false},
		{StatusSettled, StatusIgnored, true},
		{StatusNone, StatusIgnored, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
