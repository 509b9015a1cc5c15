package usblink

import (
	"errors"
	"fmt"
	"time"

	"github.com/arcwave/benchlink/logger"
)

const (
	// DefaultWriteTimeout bounds how long AwaitWrites waits for the write
	// pump to drain the submissions ahead of the barrier.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultQueueDepth is the length of the submission and expectation
	// queues. Submissions beyond the queue depth block the caller until
	// the pumps catch up.
	DefaultQueueDepth = 64
)

// Option is a functional option for configuring a Link.
type Option interface {
	apply(*Link) error
}

type optFunc func(*Link) error

func (f optFunc) apply(l *Link) error { return f(l) }

// WithLogger sets the logger for the link.
func WithLogger(lg logger.Logger) Option {
	return optFunc(func(l *Link) error {
		if lg == nil {
			return errors.New("usblink: logger must not be nil")
		}
		l.logger = lg

		return nil
	})
}

// WithWriteTimeout sets the AwaitWrites barrier timeout. Must be positive.
func WithWriteTimeout(d time.Duration) Option {
	return optFunc(func(l *Link) error {
		if d <= 0 {
			return fmt.Errorf("usblink: write timeout %v must be positive", d)
		}
		l.writeTimeout = d

		return nil
	})
}

// WithQueueDepth sets the submission queue length. Must be positive.
func WithQueueDepth(n int) Option {
	return optFunc(func(l *Link) error {
		if n < 1 {
			return fmt.Errorf("usblink: queue depth %d must be positive", n)
		}
		l.queueDepth = n

		return nil
	})
}
