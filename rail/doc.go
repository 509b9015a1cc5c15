// Package rail normalizes the device's rail routing tables over encrypted
// 32-bit word exchanges.
//
// Each of the 64 handshake channels drives one table block. The device
// opens with a coordinate word naming a rail and block, the host echoes it
// and pushes the block's eight cells in two words, and the device either
// confirms with a coordinate echo or pushes corrected cells back. The
// 8x64 cell table is persisted as CSV through Store and mutated only by
// the sweep.
//
// Words travel on a channel pair, one byte per transfer: the device talks
// on channel 2c, the host answers on 2c+1. Every word is enciphered with
// the keystream cipher; both ends share the key.
package rail
