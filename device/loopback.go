package device

import (
	"bytes"
	"sync"

	"github.com/arcwave/benchlink/internal/queue"
	"github.com/arcwave/benchlink/internal/util"
)

// EventKind labels one entry in a Loopback's call trace.
type EventKind uint8

const (
	EvSubmit EventKind = iota
	EvAwait
	EvWrite
	EvBarrier
	EvConduit
)

// String returns string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EvSubmit:
		return "submit"
	case EvAwait:
		return "await"
	case EvWrite:
		return "write"
	case EvBarrier:
		return "barrier"
	case EvConduit:
		return "conduit"
	default:
		return "unknown"
	}
}

// Event is one recorded Loopback call, kept so tests can assert call
// ordering, e.g. that a pipelined reader submits chunk i+1 before awaiting
// chunk i.
type Event struct {
	Kind    EventKind
	Channel uint8
	Size    uint32
}

// PatternFunc generates the bytes a Loopback channel returns for a read
// when no looped write data is available.
type PatternFunc func(channel uint8, size uint32) []byte

// CounterPattern returns a PatternFunc yielding sequential byte values
// starting from start, continuing across reads on the same channel.
func CounterPattern(start byte) PatternFunc {
	next := start
	return func(_ uint8, size uint32) []byte {
		data := make([]byte, size)
		for i := range data {
			data[i] = next
			next++
		}
		return data
	}
}

type pendingRead struct {
	token   Token
	channel uint8
	size    uint32
}

// Loopback is an in-memory Session. Writes are captured per channel and
// loop back to subsequent reads on the same channel; channels with a
// registered PatternFunc generate read data instead. Reads with neither
// looped data nor a pattern return zero bytes.
type Loopback struct {
	mu        sync.Mutex
	closed    bool
	ready     bool
	conduit   uint8
	nextToken Token
	pending   queue.Queue[pendingRead]
	loops     map[uint8]*bytes.Buffer
	written   map[uint8][]byte
	patterns  map[uint8]PatternFunc
	trace     []Event

	readErr    error
	writeErr   error
	barrierErr error
}

var _ Session = (*Loopback)(nil)

// NewLoopback creates a ready loopback session with conduit 0 selected.
func NewLoopback() *Loopback {
	return &Loopback{
		ready:     true,
		nextToken: 1,
		pending:   queue.NewSliceQueue[pendingRead](4),
		loops:     make(map[uint8]*bytes.Buffer),
		written:   make(map[uint8][]byte),
		patterns:  make(map[uint8]PatternFunc),
	}
}

// SetPattern registers a read data generator for channel, overriding the
// loop-back of written bytes.
func (l *Loopback) SetPattern(channel uint8, fn PatternFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns[channel] = fn
}

// SetReady controls what IsReady reports.
func (l *Loopback) SetReady(ready bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = ready
}

// FailReads makes SubmitRead and AwaitRead return err until reset with nil.
func (l *Loopback) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// FailWrites makes Write return err until reset with nil.
func (l *Loopback) FailWrites(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

// FailBarrier makes AwaitWrites return err until reset with nil.
func (l *Loopback) FailBarrier(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.barrierErr = err
}

// Written returns everything written to channel so far, in order,
// regardless of whether reads have consumed the looped copy.
func (l *Loopback) Written(channel uint8) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	return util.CloneSlice(l.written[channel])
}

// Conduit returns the currently selected conduit.
func (l *Loopback) Conduit() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conduit
}

// Trace returns the recorded call sequence.
func (l *Loopback) Trace() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return util.CloneSlice(l.trace)
}

// TraceKinds returns just the kinds of the recorded call sequence, which is
// usually all an ordering assertion needs.
func (l *Loopback) TraceKinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]EventKind, len(l.trace))
	for i, ev := range l.trace {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (l *Loopback) SelectConduit(conduit uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrSessionClosed
	}
	l.conduit = conduit
	l.trace = append(l.trace, Event{Kind: EvConduit, Size: uint32(conduit)})

	return nil
}

func (l *Loopback) IsReady() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrSessionClosed
	}

	return l.ready, nil
}

func (l *Loopback) SubmitRead(channel uint8, size uint32) (Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrSessionClosed
	}
	if l.readErr != nil {
		return 0, l.readErr
	}

	token := l.nextToken
	l.nextToken++
	l.pending.Enqueue(pendingRead{token: token, channel: channel, size: size})
	l.trace = append(l.trace, Event{Kind: EvSubmit, Channel: channel, Size: size})

	return token, nil
}

func (l *Loopback) AwaitRead(token Token) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrSessionClosed
	}
	if l.readErr != nil {
		return nil, l.readErr
	}

	req, ok := l.pending.Dequeue()
	if !ok {
		return nil, ErrUnknownToken
	}
	if req.token != token {
		return nil, ErrAwaitOrder
	}
	l.trace = append(l.trace, Event{Kind: EvAwait, Channel: req.channel, Size: req.size})

	if fn, ok := l.patterns[req.channel]; ok {
		return fn(req.channel, req.size), nil
	}

	data := make([]byte, req.size)
	if buf, ok := l.loops[req.channel]; ok {
		n, _ := buf.Read(data)
		_ = n // remainder stays zero-filled
	}

	return data, nil
}

func (l *Loopback) Write(channel uint8, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrSessionClosed
	}
	if l.writeErr != nil {
		return l.writeErr
	}

	buf, ok := l.loops[channel]
	if !ok {
		buf = &bytes.Buffer{}
		l.loops[channel] = buf
	}
	buf.Write(data)
	l.written[channel] = append(l.written[channel], data...)
	l.trace = append(l.trace, Event{Kind: EvWrite, Channel: channel, Size: uint32(len(data))})

	return nil
}

func (l *Loopback) AwaitWrites() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrSessionClosed
	}
	l.trace = append(l.trace, Event{Kind: EvBarrier})

	return l.barrierErr
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrSessionClosed
	}
	l.closed = true
	l.pending.Reset()

	return nil
}
