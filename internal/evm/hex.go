package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// decodeHex strips an optional 0x prefix and decodes the payload.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}

// encodeHex renders b with a 0x prefix.
func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// hexToBig parses a 0x-prefixed quantity into a big.Int.
func hexToBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n, nil
}
