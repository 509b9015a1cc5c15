package transfer

import "time"

// Result reports one completed stream operation.
type Result struct {
	// Bytes is the total number of bytes moved.
	Bytes uint64
	// Checksum is the additive mod-2^16 checksum of the moved bytes.
	Checksum uint16
	// Elapsed spans first submission to final drain, monotonic.
	Elapsed time.Duration
}

// MiBPerSec returns the throughput in mebibytes per second, or 0 when no
// time elapsed.
func (r Result) MiBPerSec() float64 {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}

	return float64(r.Bytes) / (1024 * 1024 * secs)
}
