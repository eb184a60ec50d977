package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"dexwatch/internal/domain"
)

// Function selectors for the fixed read-call surface. Precomputed
// keccak-256 of the canonical signatures.
const (
	selDecimals              = "0x313ce567" // decimals()
	selTotalSupply           = "0x18160ddd" // totalSupply()
	selGetReserves           = "0x0902f1ac" // getReserves()
	selSlot0                 = "0x3850c7bd" // slot0()
	selGetAmountsOut         = "0xd06ca61f" // getAmountsOut(uint256,address[])
	selGetPool               = "0x1698ee82" // getPool(address,address,uint24)
	selQuoteExactInputSingle = "0xf7729d43" // quoteExactInputSingle(address,address,uint24,uint256,uint160)
)

// Errors returned by the ABI codec.
var (
	ErrShortReturnData = errors.New("return data too short")
	ErrBadAddress      = errors.New("malformed address")
)

const wordSize = 32

// encodeAddressWord left-pads a 20-byte address into one ABI word.
func encodeAddressWord(addr string) ([]byte, error) {
	if !domain.IsAddress(addr) {
		return nil, fmt.Errorf("%w: %q", ErrBadAddress, addr)
	}
	raw, err := decodeHex(addr)
	if err != nil {
		return nil, err
	}
	word := make([]byte, wordSize)
	copy(word[wordSize-len(raw):], raw)
	return word, nil
}

// encodeUintWord encodes a non-negative integer into one ABI word.
func encodeUintWord(n *big.Int) []byte {
	word := make([]byte, wordSize)
	if n != nil {
		n.FillBytes(word)
	}
	return word
}

// encodeCall concatenates a selector with pre-encoded argument words.
func encodeCall(selector string, words ...[]byte) string {
	var sb strings.Builder
	sb.WriteString(selector)
	for _, w := range words {
		sb.WriteString(encodeHex(w)[2:])
	}
	return sb.String()
}

// returnWord extracts the i-th 32-byte word from hex return data.
func returnWord(data []byte, i int) ([]byte, error) {
	start := i * wordSize
	if len(data) < start+wordSize {
		return nil, fmt.Errorf("%w: want word %d, have %d bytes", ErrShortReturnData, i, len(data))
	}
	return data[start : start+wordSize], nil
}

// decodeUint reads the i-th return word as an unsigned integer.
func decodeUint(data []byte, i int) (*big.Int, error) {
	w, err := returnWord(data, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

// decodeInt reads the i-th return word as a two's-complement int256.
func decodeInt(data []byte, i int) (*big.Int, error) {
	w, err := returnWord(data, i)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(w)
	if w[0]&0x80 != 0 {
		// Negative: subtract 2^256.
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return n, nil
}

// decodeAddress reads the i-th return word as a normalized hex address.
func decodeAddress(data []byte, i int) (string, error) {
	w, err := returnWord(data, i)
	if err != nil {
		return "", err
	}
	return encodeHex(w[wordSize-20:]), nil
}

// decodeUintSlice reads a dynamic uint256[] whose offset sits at word i.
func decodeUintSlice(data []byte, i int) ([]*big.Int, error) {
	offset, err := decodeUint(data, i)
	if err != nil {
		return nil, err
	}
	if !offset.IsInt64() || offset.Int64()%wordSize != 0 {
		return nil, fmt.Errorf("invalid slice offset %s", offset)
	}
	base := int(offset.Int64()) / wordSize
	length, err := decodeUint(data, base)
	if err != nil {
		return nil, err
	}
	if !length.IsInt64() || length.Int64() > 1024 {
		return nil, fmt.Errorf("invalid slice length %s", length)
	}
	out := make([]*big.Int, length.Int64())
	for j := range out {
		v, err := decodeUint(data, base+1+j)
		if err != nil {
			return nil, err
		}
		out[j] = v
	}
	return out, nil
}
