package domain

import "strings"

// ZeroAddress is the 20-byte zero address in normalized form.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NormalizeAddress lowercases a hex address. It does not validate shape.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsAddress reports whether s has the 20-byte hex address shape (0x + 40 hex).
func IsAddress(s string) bool {
	if len(s) != 42 {
		return false
	}
	if s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
