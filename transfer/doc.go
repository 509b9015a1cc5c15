// Package transfer implements the chunked transfer engine that moves
// arbitrarily large byte streams between host and device through the
// fixed-size channel primitive of a device.Session.
//
// Reads use 2-stage pipelining: the engine submits chunk i+1's asynchronous
// request before awaiting chunk i's data, so the link is never idle while
// the host consumes a completed chunk. Outstanding requests are tracked in
// an explicit FIFO of read tokens; at most two are ever in flight.
//
// Writes are fire-and-forget submissions chunk by chunk, closed by a single
// completion barrier so that reported timings reflect real completion, not
// submission.
//
// Both directions fold the transferred bytes into the additive checksum
// from package hexscan and measure elapsed time with the monotonic clock
// across the whole operation. Failures from the session abort the operation
// immediately and are never retried by the engine.
package transfer
