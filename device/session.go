// Package device defines the channel-level session capability that the
// transfer engine, the action executor and the rail handshake drive, plus an
// in-memory loopback implementation used by tests, examples and dry runs.
//
// A session multiplexes numbered channels (0-127) over one physical link to
// a bench programmable-logic device. Reads are two-phase: a submission that
// posts the request to the device and an await that blocks for the data.
// Writes are fire-and-forget submissions with an explicit completion
// barrier. The conduit selects which protocol personality the device's
// channels currently implement.
//
// Concrete transports live in their own packages (see usblink); this
// package intentionally says nothing about bytes on the wire.
package device

// Token identifies one outstanding asynchronous read submitted to a Session.
// Tokens are only meaningful to the session that issued them.
type Token uint32

// Session is the device collaborator contract.
//
// Reads complete in submission order. Implementations may require that
// AwaitRead is called in the same order the tokens were issued; callers that
// keep a FIFO of outstanding tokens satisfy every implementation.
//
// A Session is exclusively owned by one caller for the duration of an
// operation; implementations may be internally concurrent but must not be
// assumed safe for interleaved use by multiple goroutines.
type Session interface {
	// SelectConduit switches the device's channel personality.
	SelectConduit(conduit uint8) error

	// IsReady reports whether the device-side logic is up and able to
	// service channel traffic.
	IsReady() (bool, error)

	// SubmitRead posts an asynchronous read of size bytes from channel and
	// returns a token for the outstanding request without waiting for data.
	SubmitRead(channel uint8, size uint32) (Token, error)

	// AwaitRead blocks until the read identified by token completes and
	// returns its data. The returned slice is owned by the caller.
	AwaitRead(token Token) ([]byte, error)

	// Write posts an asynchronous write of data to channel. It may return
	// before the device has accepted the bytes; AwaitWrites is the
	// completion barrier.
	Write(channel uint8, data []byte) error

	// AwaitWrites blocks until every write submitted so far has completed.
	AwaitWrites() error

	// Close releases the session. Outstanding requests fail with
	// ErrSessionClosed.
	Close() error
}
