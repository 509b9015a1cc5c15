// Package keystream implements the 32-bit word transform used by the rail
// handshake to obfuscate control words and payload bytes on the wire.
//
// The transform XORs the word with a sequence of masks generated from a
// 4-bit rotating tap derived from the key. It is deterministic, keyed and
// invertible, but it is an obfuscation layer only and makes no
// confidentiality claims: the effective key schedule is 4 bits wide.
//
// Inversion relies on Encrypt and Decrypt together always performing 32
// rounds over the 16-value tap cycle, so every mask is applied exactly
// twice and cancels. That relationship is validated by round-trip tests
// rather than assumed.
package keystream

import "math/bits"

// DefaultKey is the key the rail handshake uses unless configured otherwise.
const DefaultKey uint32 = 0x9999999F

// Tap derives the 4-bit initial tap from the key. Tap bit n (n in 0..3) is
// the XOR of the key bits whose index is congruent to n modulo 4.
func Tap(key uint32) uint8 {
	var tap uint8
	for n := 0; n < 4; n++ {
		var t uint8
		for bit := n; bit < 32; bit += 4 {
			t ^= uint8(key>>bit) & 1
		}
		tap |= t << n
	}

	return tap
}

// Rounds returns the number of Encrypt rounds for key: the population count
// of the key. Decrypt performs the complementary 32-Rounds(key) rounds.
func Rounds(key uint32) int {
	return bits.OnesCount32(key)
}

// mask broadcasts the 4-bit tap into every nibble of a 32-bit word.
func mask(tap uint8) uint32 {
	return uint32(tap&0x0F) * 0x11111111
}

// Encrypt applies Rounds(key) masking rounds with the tap incrementing
// modulo 16 after each round.
func Encrypt(word, key uint32) uint32 {
	tap := Tap(key)
	for i, n := 0, Rounds(key); i < n; i++ {
		word ^= mask(tap)
		tap = (tap + 1) & 0x0F
	}

	return word
}

// Decrypt applies the complementary 32-Rounds(key) rounds with the tap
// pre-decremented once and decrementing modulo 16 after each round.
func Decrypt(word, key uint32) uint32 {
	tap := (Tap(key) + 15) & 0x0F
	for i, n := 0, 32-Rounds(key); i < n; i++ {
		word ^= mask(tap)
		tap = (tap + 15) & 0x0F
	}

	return word
}
