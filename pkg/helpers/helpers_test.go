package helpers

import (
	"bytes"
	"testing"
)

func TestIsHex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"deadbeef", true},
		{"DEADBEEF", true},
		{"", false},
		{"xyz", false},
		{"abc", false}, // odd length
	}
	for _, tt := range tests {
		if got := IsHex(tt.in); got != tt.want {
			t.Errorf("IsHex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsHexOfLen(t *testing.T) {
	if !IsHexOfLen("deadbeef", 4) {
		t.Error("IsHexOfLen(deadbeef, 4) = false")
	}
	if IsHexOfLen("deadbeef", 5) {
		t.Error("IsHexOfLen(deadbeef, 5) = true")
	}
	if IsHexOfLen("nothex!!", 4) {
		t.Error("IsHexOfLen(nothex!!, 4) = true")
	}
}

func TestHexRoundTrip(t *testing.T) {
	b := []byte{0xde, 0xad, 0xbe, 0xef}
	s := BytesToHex(b)
	if s != "deadbeef" {
		t.Errorf("BytesToHex() = %s, want deadbeef", s)
	}
	back, err := HexToBytes(s)
	if err != nil {
		t.Fatalf("HexToBytes() error = %v", err)
	}
	if !bytes.Equal(back, b) {
		t.Errorf("round trip = %x, want %x", back, b)
	}
}

func TestGenerateSecureRandom(t *testing.T) {
	a, err := GenerateSecureRandom(32)
	if err != nil {
		t.Fatalf("GenerateSecureRandom() error = %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("length = %d, want 32", len(a))
	}

	b, err := GenerateSecureRandom(32)
	if err != nil {
		t.Fatalf("GenerateSecureRandom() error = %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two random draws are identical")
	}
}

func TestSecureClear(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	SecureClear(b)
	if !IsZeroBytes(b) {
		t.Errorf("buffer not cleared: %v", b)
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !ConstantTimeCompare([]byte("abc"), []byte("abc")) {
		t.Error("equal slices compared unequal")
	}
	if ConstantTimeCompare([]byte("abc"), []byte("abd")) {
		t.Error("unequal slices compared equal")
	}
	if ConstantTimeCompare([]byte("abc"), []byte("ab")) {
		t.Error("different lengths compared equal")
	}
}

func TestFormatSats(t *testing.T) {
	tests := []struct {
		sats uint64
		want string
	}{
		{0, "0"},
		{100_000_000, "1"},
		{150_000_000, "1.5"},
		{1, "0.00000001"},
		{123_456_789, "1.23456789"},
		{4_000_000, "0.04"},
	}
	for _, tt := range tests {
		if got := FormatSats(tt.sats); got != tt.want {
			t.Errorf("FormatSats(%d) = %s, want %s", tt.sats, got, tt.want)
		}
	}
}
