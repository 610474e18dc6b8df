// Package chain provides Bitcoin network selection and address validation.
package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Network represents a Bitcoin network.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// Params returns the btcd chain parameters for the network.
func (n Network) Params() (*chaincfg.Params, error) {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %s", n)
	}
}

// Valid reports whether the network name is recognized.
func (n Network) Valid() bool {
	_, err := n.Params()
	return err == nil
}

// ValidateAddress decodes an address and verifies it belongs to the network.
func ValidateAddress(address string, network Network) error {
	params, err := network.Params()
	if err != nil {
		return err
	}

	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	if !addr.IsForNet(params) {
		return fmt.Errorf("address %q is not valid for %s", address, network)
	}
	return nil
}
