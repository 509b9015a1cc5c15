// Package hexscan provides the low-level lexical helpers shared by the
// action interpreter and the transfer engine: hex digit classification,
// nibble/byte decoding and the additive checksum folded over transferred
// byte streams.
//
// All functions are pure.
package hexscan

// IsDigit reports whether ch is an ASCII hex digit.
func IsDigit(ch byte) bool {
	switch {
	case ch >= '0' && ch <= '9':
		return true
	case ch >= 'a' && ch <= 'f':
		return true
	case ch >= 'A' && ch <= 'F':
		return true
	default:
		return false
	}
}

// Nibble decodes a single hex digit. The second return value is false if ch
// is not a hex digit.
func Nibble(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	default:
		return 0, false
	}
}

// Byte decodes exactly two hex digits into one byte, high nibble first.
// The second return value is false if either character is not a hex digit.
func Byte(hi, lo byte) (byte, bool) {
	h, ok := Nibble(hi)
	if !ok {
		return 0, false
	}
	l, ok := Nibble(lo)
	if !ok {
		return 0, false
	}

	return h<<4 | l, true
}
