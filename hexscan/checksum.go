package hexscan

// Sum is the running additive checksum reported alongside channel
// transfers: sum = (sum + b) mod 2^16 per byte, folded in stream order.
//
// It is a human-visible spot check, not a CRC; collisions are expected.
type Sum uint16

// Fold accumulates data into the running sum and returns the new sum.
func (s Sum) Fold(data []byte) Sum {
	sum := uint16(s)
	for _, b := range data {
		sum += uint16(b)
	}

	return Sum(sum)
}

// Value returns the checksum as a plain uint16.
func (s Sum) Value() uint16 { return uint16(s) }

// Sum16 returns the additive checksum of data in one shot.
func Sum16(data []byte) uint16 {
	return Sum(0).Fold(data).Value()
}
