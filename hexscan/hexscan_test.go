package hexscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDigit(t *testing.T) {
	valid := "0123456789abcdefABCDEF"
	inDigitSet := func(ch byte) bool {
		for i := 0; i < len(valid); i++ {
			if valid[i] == ch {
				return true
			}
		}
		return false
	}

	for ch := 0; ch < 256; ch++ {
		assert.Equal(t, inDigitSet(byte(ch)), IsDigit(byte(ch)), "ch=%q", byte(ch))
	}
}

func TestNibble(t *testing.T) {
	tests := []struct {
		ch    byte
		value byte
		ok    bool
	}{
		{'0', 0x0, true},
		{'9', 0x9, true},
		{'a', 0xA, true},
		{'f', 0xF, true},
		{'A', 0xA, true},
		{'F', 0xF, true},
		{'g', 0, false},
		{'G', 0, false},
		{' ', 0, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		v, ok := Nibble(tt.ch)
		assert.Equal(t, tt.ok, ok, "ch=%q", tt.ch)
		assert.Equal(t, tt.value, v, "ch=%q", tt.ch)
	}
}

func TestByte(t *testing.T) {
	tests := []struct {
		hi, lo byte
		value  byte
		ok     bool
	}{
		{'4', '8', 0x48, true},
		{'f', 'F', 0xFF, true},
		{'0', '0', 0x00, true},
		{'1', 'z', 0, false},
		{'z', '1', 0, false},
	}
	for _, tt := range tests {
		v, ok := Byte(tt.hi, tt.lo)
		assert.Equal(t, tt.ok, ok, "pair=%q%q", tt.hi, tt.lo)
		assert.Equal(t, tt.value, v, "pair=%q%q", tt.hi, tt.lo)
	}
}

func TestSum16KnownVectors(t *testing.T) {
	seq := make([]byte, 10)
	for i := range seq {
		seq[i] = byte(i)
	}
	require.Equal(t, uint16(45), Sum16(seq))

	require.Equal(t, uint16(0x01F4), Sum16([]byte("Hello")))
	require.Equal(t, uint16(0), Sum16(nil))
}

func TestSum16Wraparound(t *testing.T) {
	// 257 * 0xFF = 65535, one more byte wraps mod 2^16.
	data := make([]byte, 258)
	for i := range data {
		data[i] = 0xFF
	}
	require.Equal(t, uint16(0xFFFF), Sum16(data[:257]))
	require.Equal(t, uint16(254), Sum16(data))
}

func TestSumIncrementalFold(t *testing.T) {
	data := []byte{0x01, 0x80, 0xFF, 0x10, 0x20, 0x30}

	var s Sum
	for _, b := range data {
		s = s.Fold([]byte{b})
	}
	require.Equal(t, Sum16(data), s.Value())

	// Folding in chunks must match folding the whole stream.
	s = Sum(0).Fold(data[:2]).Fold(data[2:])
	require.Equal(t, Sum16(data), s.Value())
}

func TestSum16Distinguishes(t *testing.T) {
	a := []byte{0x00, 0x01, 0x02}
	b := []byte{0x00, 0x01, 0x03}
	require.NotEqual(t, Sum16(a), Sum16(b))
}

func TestSum16IsOrderInsensitive(t *testing.T) {
	// Addition commutes, so a reordered stream sums the same. Anyone
	// reaching for this checksum to detect transposition needs a CRC.
	data := []byte{0x10, 0x20, 0x30, 0x40}
	reversed := []byte{0x40, 0x30, 0x20, 0x10}
	require.Equal(t, Sum16(data), Sum16(reversed))
}
