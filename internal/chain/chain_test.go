package chain

import "testing"

func TestNetworkParams(t *testing.T) {
	for _, n := range []Network{Mainnet, Testnet, Regtest} {
		params, err := n.Params()
		if err != nil {
			t.Errorf("Params(%s) error = %v", n, err)
		}
		if params == nil {
			t.Errorf("Params(%s) = nil", n)
		}
		if !n.Valid() {
			t.Errorf("Valid(%s) = false", n)
		}
	}

	if _, err := Network("signet").Params(); err == nil {
		t.Error("Params(signet) succeeded, want error")
	}
	if Network("").Valid() {
		t.Error("Valid(\"\") = true")
	}
}

func TestValidateAddress(t *testing.T) {
	// BIP173 example P2WPKH address.
	const mainnetAddr = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

	if err := ValidateAddress(mainnetAddr, Mainnet); err != nil {
		t.Errorf("ValidateAddress(mainnet addr, mainnet) error = %v", err)
	}
	if err := ValidateAddress(mainnetAddr, Regtest); err == nil {
		t.Error("ValidateAddress(mainnet addr, regtest) succeeded")
	}
	if err := ValidateAddress("garbage", Mainnet); err == nil {
		t.Error("ValidateAddress(garbage) succeeded")
	}
	if err := ValidateAddress(mainnetAddr, "signet"); err == nil {
		t.Error("ValidateAddress with unknown network succeeded")
	}
}
