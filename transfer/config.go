package transfer

import (
	"errors"
	"fmt"

	"github.com/arcwave/benchlink/logger"
)

// Chunk size limits imposed by the device-side channel buffers.
const (
	// DefaultReadChunk is the largest read the channel primitive accepts.
	DefaultReadChunk uint32 = 65536
	// DefaultWriteChunk leaves headroom below the 64 KiB buffer for the
	// framing the session implementation prepends to each write.
	DefaultWriteChunk uint32 = 65536 - 5
	// DumpChunk is the fixed chunk size used by the continuous dump loop.
	DumpChunk uint32 = 22528

	MaxChunk uint32 = 65536
)

// Option is a functional option for configuring an Engine.
type Option interface {
	apply(*Engine) error
}

type optFunc func(*Engine) error

func (f optFunc) apply(e *Engine) error { return f(e) }

// WithReadChunkSize sets the maximum per-request read size.
// Must be in [1, 65536]. The rail handshake uses 1 to move words
// byte-at-a-time; bulk reads keep the default.
func WithReadChunkSize(n uint32) Option {
	return optFunc(func(e *Engine) error {
		if n < 1 || n > MaxChunk {
			return fmt.Errorf("transfer: read chunk size %d out of range [1, %d]", n, MaxChunk)
		}
		e.readChunk = n

		return nil
	})
}

// WithWriteChunkSize sets the maximum per-request write size.
// Must be in [1, 65536].
func WithWriteChunkSize(n uint32) Option {
	return optFunc(func(e *Engine) error {
		if n < 1 || n > MaxChunk {
			return fmt.Errorf("transfer: write chunk size %d out of range [1, %d]", n, MaxChunk)
		}
		e.writeChunk = n

		return nil
	})
}

// WithLogger sets the logger for the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(e *Engine) error {
		if l == nil {
			return errors.New("transfer: logger must not be nil")
		}
		e.logger = l

		return nil
	})
}
