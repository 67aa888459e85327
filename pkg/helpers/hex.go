package helpers

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TrimHex strips an optional 0x or 0X prefix.
func TrimHex(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// HexToBytes converts a hex string (with or without 0x prefix) to bytes.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(TrimHex(s))
}

// BytesToHex converts bytes to a hex string with 0x prefix.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToHash32 decodes a 32-byte hash or secret.
func HexToHash32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := HexToBytes(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// PadLeft pads a byte slice with zeros on the left to reach the specified length.
func PadLeft(b []byte, length int) []byte {
	if len(b) >= length {
		return b
	}
	result := make([]byte, length)
	copy(result[length-len(b):], b)
	return result
}
