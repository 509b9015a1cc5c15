package usblink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karalabe/usb"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/internal/pool"
	"github.com/arcwave/benchlink/logger"
)

// Sentinel errors for the USB link.
var (
	// ErrNoDevice is returned by Open when enumeration finds no device
	// with the requested vendor and product IDs.
	ErrNoDevice = errors.New("usblink: no matching device")

	// ErrWriteTimeout is returned by AwaitWrites when the write pump does
	// not reach the barrier within the configured timeout.
	ErrWriteTimeout = errors.New("usblink: write barrier timeout")
)

// readResult carries one completed read to its awaiting caller.
type readResult struct {
	data []byte
	err  error
}

// readExpect tells the read pump how many response bytes the device owes
// for one outstanding request and which token they complete.
type readExpect struct {
	token device.Token
	size  uint32
}

// writeJob is either a frame to put on the wire or, when flush is
// non-nil, a barrier marker whose processing reports the pump's sticky
// error to the waiting AwaitWrites caller.
type writeJob struct {
	frame []byte
	flush chan error
}

// Link drives a raw USB bulk device as a device.Session.
//
// All wire traffic goes through two pump goroutines so that submissions
// return without blocking on USB latency. Once a pump hits a transfer
// error it stops touching the wire and reports the error on every
// subsequent await until the link is closed; a half-spoken request
// stream leaves the device-side parser in an unknown state, so there is
// no safe way to resume.
type Link struct {
	dev    usb.Device
	logger logger.Logger

	writeTimeout time.Duration
	queueDepth   int

	writes  chan writeJob
	expects chan readExpect
	results *xsync.MapOf[device.Token, chan readResult]

	lastToken atomic.Uint32

	quit   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

var _ device.Session = (*Link)(nil)

// Open enumerates USB devices by vendor and product ID, opens the first
// match and starts a link on it.
func Open(vendorID, productID uint16, opts ...Option) (*Link, error) {
	infos, err := usb.Enumerate(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("usblink: enumerate %04x:%04x: %w", vendorID, productID, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("usblink: %04x:%04x: %w", vendorID, productID, ErrNoDevice)
	}

	dev, err := infos[0].Open()
	if err != nil {
		return nil, fmt.Errorf("usblink: open %04x:%04x: %w", vendorID, productID, err)
	}

	return New(dev, opts...)
}

// New starts a link over an already opened USB device. The link takes
// ownership of dev; Close closes it.
func New(dev usb.Device, opts ...Option) (*Link, error) {
	if dev == nil {
		return nil, errors.New("usblink: device must not be nil")
	}

	l := &Link{
		dev:          dev,
		logger:       logger.GetLogger(),
		writeTimeout: DefaultWriteTimeout,
		queueDepth:   DefaultQueueDepth,
		results:      xsync.NewMapOf[device.Token, chan readResult](),
		quit:         make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt.apply(l); err != nil {
			return nil, err
		}
	}

	l.writes = make(chan writeJob, l.queueDepth)
	l.expects = make(chan readExpect, l.queueDepth)

	l.wg.Add(2)
	go l.writePump()
	go l.readPump()

	return l, nil
}

// SelectConduit switches the device's channel personality. It waits for
// the request to reach the wire, so that traffic submitted afterwards is
// guaranteed to address the new personality.
func (l *Link) SelectConduit(conduit uint8) error {
	if l.closed.Load() {
		return device.ErrSessionClosed
	}

	if err := l.enqueue(writeJob{frame: encodeFrame(opConduit, 0, uint32(conduit), nil)}); err != nil {
		return err
	}

	return l.AwaitWrites()
}

// IsReady probes whether the device-side logic is up. The probe response
// is a single status byte; zero means not ready.
func (l *Link) IsReady() (bool, error) {
	token, err := l.submit(opProbe, 0, 0, 1)
	if err != nil {
		return false, err
	}

	data, err := l.AwaitRead(token)
	if err != nil {
		return false, err
	}

	return data[0] != 0, nil
}

// SubmitRead posts an asynchronous read of size bytes from channel.
func (l *Link) SubmitRead(channel uint8, size uint32) (device.Token, error) {
	if err := checkChannel(channel); err != nil {
		return 0, err
	}

	return l.submit(opRead, channel, size, size)
}

// AwaitRead blocks until the read identified by token completes.
func (l *Link) AwaitRead(token device.Token) ([]byte, error) {
	ch, ok := l.results.Load(token)
	if !ok {
		return nil, device.ErrUnknownToken
	}

	select {
	case res := <-ch:
		l.results.Delete(token)
		if res.err != nil {
			return nil, res.err
		}

		return res.data, nil

	case <-l.quit:
		return nil, device.ErrSessionClosed
	}
}

// Write posts an asynchronous write of data to channel. The payload is
// copied into the request frame, so the caller may reuse data as soon as
// Write returns.
func (l *Link) Write(channel uint8, data []byte) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if l.closed.Load() {
		return device.ErrSessionClosed
	}

	return l.enqueue(writeJob{frame: encodeFrame(opWrite, channel, uint32(len(data)), data)})
}

// AwaitWrites blocks until every write submitted so far has reached the
// wire, or the write pump has failed, or the barrier timeout elapses.
func (l *Link) AwaitWrites() error {
	if l.closed.Load() {
		return device.ErrSessionClosed
	}

	flush := make(chan error, 1)
	if err := l.enqueue(writeJob{flush: flush}); err != nil {
		return err
	}

	timer := pool.GetTimer(l.writeTimeout)
	defer pool.PutTimer(timer)

	select {
	case err := <-flush:
		return err
	case <-timer.C:
		return ErrWriteTimeout
	case <-l.quit:
		return device.ErrSessionClosed
	}
}

// Close shuts down the pumps and closes the USB device. Outstanding
// awaits fail with device.ErrSessionClosed.
func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return device.ErrSessionClosed
	}

	close(l.quit)

	// Closing the device unblocks a pump stuck in a USB transfer.
	err := l.dev.Close()
	l.wg.Wait()

	if err != nil {
		return fmt.Errorf("usblink: close: %w", err)
	}

	return nil
}

// submit enqueues one request frame plus the expectation of a respSize
// byte response, and returns the token the response will complete.
func (l *Link) submit(op, channel uint8, arg, respSize uint32) (device.Token, error) {
	if l.closed.Load() {
		return 0, device.ErrSessionClosed
	}

	token := device.Token(l.lastToken.Add(1))
	l.results.Store(token, make(chan readResult, 1))

	if err := l.enqueue(writeJob{frame: encodeFrame(op, channel, arg, nil)}); err != nil {
		l.results.Delete(token)
		return 0, err
	}

	select {
	case l.expects <- readExpect{token: token, size: respSize}:
	case <-l.quit:
		l.results.Delete(token)
		return 0, device.ErrSessionClosed
	}

	return token, nil
}

func (l *Link) enqueue(job writeJob) error {
	select {
	case l.writes <- job:
		return nil
	case <-l.quit:
		return device.ErrSessionClosed
	}
}

// writePump serializes request frames onto the wire. After a transfer
// error it drops frames and holds the error for the next barrier.
func (l *Link) writePump() {
	defer l.wg.Done()

	var sticky error
	for {
		select {
		case job := <-l.writes:
			if job.flush != nil {
				job.flush <- sticky
				sticky = nil

				continue
			}
			if sticky != nil {
				continue
			}
			if err := l.writeFrame(job.frame); err != nil {
				sticky = err
				l.logger.Error("usb write failed", "error", err)
			}

		case <-l.quit:
			return
		}
	}
}

func (l *Link) writeFrame(frame []byte) error {
	for len(frame) > 0 {
		n, err := l.dev.Write(frame)
		if err != nil {
			return fmt.Errorf("usblink: write: %w", err)
		}
		frame = frame[n:]
	}

	return nil
}

// readPump completes outstanding requests in submission order. After a
// transfer error it stops reading and fails every later expectation with
// the same error.
func (l *Link) readPump() {
	defer l.wg.Done()

	var sticky error
	for {
		var exp readExpect
		select {
		case exp = <-l.expects:
		case <-l.quit:
			return
		}

		res := readResult{err: sticky}
		if sticky == nil {
			res.data, res.err = l.readFull(exp.size)
			if res.err != nil {
				sticky = res.err
				l.logger.Error("usb read failed", "error", res.err)
			}
		}

		if ch, ok := l.results.Load(exp.token); ok {
			// Buffered per token, so delivery never blocks the pump.
			ch <- res
		}
	}
}

func (l *Link) readFull(size uint32) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(l.dev, data); err != nil {
		return nil, fmt.Errorf("usblink: read: %w", err)
	}

	return data, nil
}

func checkChannel(channel uint8) error {
	if channel > maxChannel {
		return fmt.Errorf("usblink: channel %d out of range [0, %d]", channel, maxChannel)
	}

	return nil
}
