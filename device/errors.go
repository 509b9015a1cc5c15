package device

import "errors"

var (
	// ErrSessionClosed is returned by any operation on a closed session.
	ErrSessionClosed = errors.New("device: session closed")
	// ErrUnknownToken is returned by AwaitRead for a token that was never
	// issued or was already awaited.
	ErrUnknownToken = errors.New("device: unknown read token")
	// ErrAwaitOrder is returned when reads are awaited out of submission
	// order by an implementation that requires FIFO awaits.
	ErrAwaitOrder = errors.New("device: reads must be awaited in submission order")
	// ErrNotReady is returned when the device-side logic is not running.
	ErrNotReady = errors.New("device: device logic not ready")
)
