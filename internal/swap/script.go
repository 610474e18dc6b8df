// Package swap - Redemption script validation.
//
// A swap address is governed by a script with two paths: the LSP claims with
// the Lightning preimage, or the wallet refunds after a CSV delay:
//
//	OP_IF
//	    OP_SHA256 <payment_hash> OP_EQUALVERIFY
//	    <htlc_pubkey> OP_CHECKSIG
//	OP_ELSE
//	    <csv_height> OP_CHECKSEQUENCEVERIFY OP_DROP
//	    <repay_pubkey> OP_CHECKSIG
//	OP_ENDIF
//
// The script itself is issued by the LSP at registration; the wallet never
// trusts it blindly and re-derives every component before persisting it.
package swap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/photon-wallet/photon/internal/chain"
)

// ScriptTerms are the components parsed out of a redemption script.
type ScriptTerms struct {
	PaymentHash []byte // 32 bytes
	HtlcPubkey  []byte // 33 bytes compressed
	RepayPubkey []byte // 33 bytes compressed
	CsvHeight   uint32
}

// BuildSwapScript assembles a redemption script from its components.
func BuildSwapScript(paymentHash, htlcPubkey, repayPubkey []byte, csvHeight uint32) ([]byte, error) {
	if len(paymentHash) != 32 {
		return nil, fmt.Errorf("payment hash must be 32 bytes, got %d", len(paymentHash))
	}
	if len(htlcPubkey) != 33 {
		return nil, fmt.Errorf("htlc pubkey must be 33 bytes (compressed), got %d", len(htlcPubkey))
	}
	if len(repayPubkey) != 33 {
		return nil, fmt.Errorf("repay pubkey must be 33 bytes (compressed), got %d", len(repayPubkey))
	}
	if csvHeight == 0 || csvHeight > 0xFFFF {
		return nil, fmt.Errorf("csv height %d out of range", csvHeight)
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(paymentHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(htlcPubkey)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(csvHeight))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(repayPubkey)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// ParseSwapScript tokenizes a redemption script and extracts its components.
func ParseSwapScript(script []byte) (*ScriptTerms, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	terms := &ScriptTerms{}

	expectOp := func(op byte, name string) error {
		if !tokenizer.Next() || tokenizer.Opcode() != op {
			return fmt.Errorf("malformed swap script: expected %s", name)
		}
		return nil
	}

	if err := expectOp(txscript.OP_IF, "OP_IF"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_SHA256, "OP_SHA256"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() || len(tokenizer.Data()) != 32 {
		return nil, fmt.Errorf("malformed swap script: expected 32-byte payment hash")
	}
	terms.PaymentHash = tokenizer.Data()

	if err := expectOp(txscript.OP_EQUALVERIFY, "OP_EQUALVERIFY"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() || len(tokenizer.Data()) != 33 {
		return nil, fmt.Errorf("malformed swap script: expected 33-byte htlc pubkey")
	}
	terms.HtlcPubkey = tokenizer.Data()

	if err := expectOp(txscript.OP_CHECKSIG, "OP_CHECKSIG"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_ELSE, "OP_ELSE"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() {
		return nil, fmt.Errorf("malformed swap script: expected csv height")
	}
	op := tokenizer.Opcode()
	if txscript.IsSmallInt(op) {
		terms.CsvHeight = uint32(txscript.AsSmallInt(op))
	} else {
		data := tokenizer.Data()
		if len(data) == 0 {
			return nil, fmt.Errorf("malformed swap script: invalid csv height push")
		}
		for i := 0; i < len(data); i++ {
			terms.CsvHeight |= uint32(data[i]) << (8 * i)
		}
	}

	if err := expectOp(txscript.OP_CHECKSEQUENCEVERIFY, "OP_CHECKSEQUENCEVERIFY"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_DROP, "OP_DROP"); err != nil {
		return nil, err
	}

	if !tokenizer.Next() || len(tokenizer.Data()) != 33 {
		return nil, fmt.Errorf("malformed swap script: expected 33-byte repay pubkey")
	}
	terms.RepayPubkey = tokenizer.Data()

	if err := expectOp(txscript.OP_CHECKSIG, "OP_CHECKSIG"); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_ENDIF, "OP_ENDIF"); err != nil {
		return nil, err
	}

	return terms, nil
}

// ScriptAddress derives the P2WSH address for a redemption script.
func ScriptAddress(script []byte, network chain.Network) (string, error) {
	params, err := network.Params()
	if err != nil {
		return "", err
	}

	scriptHash := sha256.Sum256(script)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
	if err != nil {
		return "", fmt.Errorf("failed to derive script address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// ValidateRegistration checks an LSP-issued registration against our own key
// material: the script must parse, commit to our payment hash and repay
// pubkey, match the claimed address on our network, and agree with the
// advertised htlc pubkey.
func ValidateRegistration(reg *SwapRegistration, paymentHash, repayPubkey string, network chain.Network) (*ScriptTerms, error) {
	script, err := hex.DecodeString(reg.Script)
	if err != nil {
		return nil, fmt.Errorf("swap script is not hex: %w", err)
	}

	terms, err := ParseSwapScript(script)
	if err != nil {
		return nil, err
	}

	if hex.EncodeToString(terms.PaymentHash) != paymentHash {
		return nil, fmt.Errorf("swap script commits to a different payment hash")
	}
	if hex.EncodeToString(terms.RepayPubkey) != repayPubkey {
		return nil, fmt.Errorf("swap script refund path uses a different pubkey")
	}
	if hex.EncodeToString(terms.HtlcPubkey) != reg.HtlcPubkey {
		return nil, fmt.Errorf("swap script htlc pubkey does not match registration")
	}
	if terms.CsvHeight == 0 {
		return nil, fmt.Errorf("swap script has no csv delay")
	}

	addr, err := ScriptAddress(script, network)
	if err != nil {
		return nil, err
	}
	if addr != reg.ScriptAddress {
		return nil, fmt.Errorf("swap script address mismatch: derived %s, registered %s", addr, reg.ScriptAddress)
	}

	return terms, nil
}
