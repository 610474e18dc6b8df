package swap

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/photon-wallet/photon/internal/chain"
)

func testScriptParts(t *testing.T) (paymentHash, htlcPubkey, repayPubkey []byte) {
	t.Helper()

	hash, _ := hex.DecodeString(strings.Repeat("ab", 32))

	htlcKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate htlc key: %v", err)
	}
	repayKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate repay key: %v", err)
	}

	return hash, htlcKey.PubKey().SerializeCompressed(), repayKey.PubKey().SerializeCompressed()
}

func TestBuildParseSwapScript(t *testing.T) {
	hash, htlc, repay := testScriptParts(t)

	for _, csv := range []uint32{5, 16, 144, 1008} {
		script, err := BuildSwapScript(hash, htlc, repay, csv)
		if err != nil {
			t.Fatalf("BuildSwapScript(csv=%d) error = %v", csv, err)
		}

		terms, err := ParseSwapScript(script)
		if err != nil {
			t.Fatalf("ParseSwapScript(csv=%d) error = %v", csv, err)
		}
		if !bytes.Equal(terms.PaymentHash, hash) {
			t.Errorf("csv=%d: payment hash mismatch", csv)
		}
		if !bytes.Equal(terms.HtlcPubkey, htlc) {
			t.Errorf("csv=%d: htlc pubkey mismatch", csv)
		}
		if !bytes.Equal(terms.RepayPubkey, repay) {
			t.Errorf("csv=%d: repay pubkey mismatch", csv)
		}
		if terms.CsvHeight != csv {
			t.Errorf("CsvHeight = %d, want %d", terms.CsvHeight, csv)
		}
	}
}

func TestBuildSwapScriptRejectsBadInputs(t *testing.T) {
	hash, htlc, repay := testScriptParts(t)

	if _, err := BuildSwapScript(hash[:31], htlc, repay, 144); err == nil {
		t.Error("accepted short payment hash")
	}
	if _, err := BuildSwapScript(hash, htlc[:32], repay, 144); err == nil {
		t.Error("accepted short htlc pubkey")
	}
	if _, err := BuildSwapScript(hash, htlc, repay, 0); err == nil {
		t.Error("accepted zero csv height")
	}
	if _, err := BuildSwapScript(hash, htlc, repay, 0x10000); err == nil {
		t.Error("accepted oversized csv height")
	}
}

func TestParseSwapScriptRejectsGarbage(t *testing.T) {
	if _, err := ParseSwapScript([]byte{0x51, 0x52}); err == nil {
		t.Error("accepted non-swap script")
	}
	if _, err := ParseSwapScript(nil); err == nil {
		t.Error("accepted empty script")
	}
}

func TestValidateRegistration(t *testing.T) {
	hash, htlc, repay := testScriptParts(t)

	script, err := BuildSwapScript(hash, htlc, repay, 144)
	if err != nil {
		t.Fatalf("BuildSwapScript() error = %v", err)
	}
	addr, err := ScriptAddress(script, chain.Regtest)
	if err != nil {
		t.Fatalf("ScriptAddress() error = %v", err)
	}

	reg := &SwapRegistration{
		HtlcPubkey:    hex.EncodeToString(htlc),
		Script:        hex.EncodeToString(script),
		ScriptAddress: addr,
		Height:        100,
	}

	terms, err := ValidateRegistration(reg, hex.EncodeToString(hash), hex.EncodeToString(repay), chain.Regtest)
	if err != nil {
		t.Fatalf("ValidateRegistration() error = %v", err)
	}
	if terms.CsvHeight != 144 {
		t.Errorf("CsvHeight = %d, want 144", terms.CsvHeight)
	}

	// Script committing to someone else's payment hash.
	otherHash := strings.Repeat("cd", 32)
	if _, err := ValidateRegistration(reg, otherHash, hex.EncodeToString(repay), chain.Regtest); err == nil {
		t.Error("accepted script with foreign payment hash")
	}

	// Refund path controlled by a foreign key.
	_, _, otherRepay := testScriptParts(t)
	if _, err := ValidateRegistration(reg, hex.EncodeToString(hash), hex.EncodeToString(otherRepay), chain.Regtest); err == nil {
		t.Error("accepted script with foreign repay pubkey")
	}

	// Claimed address not derived from the script.
	bad := *reg
	bad.ScriptAddress = "bcrt1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
	if _, err := ValidateRegistration(&bad, hex.EncodeToString(hash), hex.EncodeToString(repay), chain.Regtest); err == nil {
		t.Error("accepted mismatched script address")
	}

	// Wrong network.
	if _, err := ValidateRegistration(reg, hex.EncodeToString(hash), hex.EncodeToString(repay), chain.Mainnet); err == nil {
		t.Error("accepted regtest address on mainnet")
	}
}
