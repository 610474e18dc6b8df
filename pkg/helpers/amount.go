// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"
)

// FormatSats formats an amount in satoshis as a decimal BTC string.
// For example, FormatSats(100000000) returns "1".
func FormatSats(sats uint64) string {
	const decimals = 8

	amountBig := new(big.Int).SetUint64(sats)
	divisor := big.NewInt(100000000)

	whole := new(big.Int).Div(amountBig, divisor)
	frac := new(big.Int).Mod(amountBig, divisor)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*d", decimals, frac)
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}
