// Package usblink implements the device.Session contract over a raw USB
// bulk device, using github.com/karalabe/usb for enumeration and transfer.
//
// A Link runs two pump goroutines. The write pump drains a submission
// queue onto the wire so that Write and SubmitRead return without blocking
// on USB latency; AwaitWrites enqueues a barrier marker and waits for the
// pump to reach it. The read pump consumes an expectation queue, reads
// exactly the expected number of response bytes for each outstanding
// request, and completes the matching token. Responses arrive in request
// order because the device services requests in order, so a FIFO of
// expectations is sufficient to demultiplex them.
//
// Requests are framed with a 6-byte header: an opcode byte, a channel
// byte and a 32-bit big-endian argument carrying the payload length, the
// requested read size or the conduit number. Every 7-bit channel is legal
// traffic in both directions, so the opcode must be its own byte; the raw
// bulk interface offers no out-of-band control path to carry it instead.
package usblink
