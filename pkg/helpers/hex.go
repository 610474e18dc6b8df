// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"encoding/hex"
	"strings"
)

// IsHex reports whether s is a non-empty string of hex characters.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// IsHexOfLen reports whether s is a hex string encoding exactly n bytes.
func IsHexOfLen(s string, n int) bool {
	return len(s) == n*2 && IsHex(s)
}

// HexToBytes converts a hex string (with or without 0x prefix) to bytes.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

// BytesToHex converts bytes to a lowercase hex string.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}
