package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/hexscan"
	"github.com/arcwave/benchlink/internal/queue"
	"github.com/arcwave/benchlink/logger"
)

// Engine streams reads and writes through a device session in bounded
// chunks. It is not safe for concurrent use; one engine serves one caller.
type Engine struct {
	sess       device.Session
	readChunk  uint32
	writeChunk uint32
	logger     logger.Logger
}

// NewEngine creates an engine over sess. opts are applied in order; see the
// With* functions.
func NewEngine(sess device.Session, opts ...Option) (*Engine, error) {
	if sess == nil {
		return nil, errors.New("transfer: session must not be nil")
	}

	eng := &Engine{
		sess:       sess,
		readChunk:  DefaultReadChunk,
		writeChunk: DefaultWriteChunk,
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(eng); err != nil {
			return nil, err
		}
	}

	return eng, nil
}

// readRun tracks one streaming read: the FIFO of in-flight read tokens plus
// the running checksum and byte count.
type readRun struct {
	eng      *Engine
	channel  uint8
	sink     io.Writer
	inflight queue.Queue[device.Token]
	sum      hexscan.Sum
	moved    uint64
}

func (e *Engine) newReadRun(channel uint8, sink io.Writer) *readRun {
	return &readRun{
		eng:      e,
		channel:  channel,
		sink:     sink,
		inflight: queue.NewSliceQueue[device.Token](2),
	}
}

func (r *readRun) submit(size uint32) error {
	token, err := r.eng.sess.SubmitRead(r.channel, size)
	if err != nil {
		return fmt.Errorf("transfer: submit read of %d bytes from channel %d: %w", size, r.channel, err)
	}
	r.inflight.Enqueue(token)

	return nil
}

// drainOne awaits the oldest in-flight chunk, writes it to the sink and
// folds it into the checksum.
func (r *readRun) drainOne() error {
	token, ok := r.inflight.Dequeue()
	if !ok {
		return fmt.Errorf("transfer: no read in flight on channel %d", r.channel)
	}

	data, err := r.eng.sess.AwaitRead(token)
	if err != nil {
		return fmt.Errorf("transfer: await read on channel %d: %w", r.channel, err)
	}
	if _, err := r.sink.Write(data); err != nil {
		return fmt.Errorf("transfer: write sink: %w", err)
	}
	r.sum = r.sum.Fold(data)
	r.moved += uint64(len(data))

	return nil
}

func (r *readRun) result(start time.Time) Result {
	return Result{
		Bytes:    r.moved,
		Checksum: r.sum.Value(),
		Elapsed:  time.Since(start),
	}
}

// Read streams total bytes from channel into sink.
//
// The request is split into chunks of at most the configured read chunk
// size and pipelined two deep: chunk i+1 is submitted before chunk i is
// awaited. A total of zero still performs one empty submit/await round
// trip. Any failure aborts the read immediately.
func (e *Engine) Read(channel uint8, total uint32, sink io.Writer) (Result, error) {
	start := time.Now()
	run := e.newReadRun(channel, sink)

	remaining := total
	first := min(remaining, e.readChunk)
	if err := run.submit(first); err != nil {
		return Result{}, err
	}
	remaining -= first

	for remaining > 0 {
		next := min(remaining, e.readChunk)
		if err := run.submit(next); err != nil {
			return Result{}, err
		}
		remaining -= next

		if err := run.drainOne(); err != nil {
			return Result{}, err
		}
	}

	for !run.inflight.IsEmpty() {
		if err := run.drainOne(); err != nil {
			return Result{}, err
		}
	}

	res := run.result(start)
	e.logger.Debug("stream read done",
		"channel", channel, "bytes", res.Bytes, "checksum", res.Checksum, "elapsed", res.Elapsed)

	return res, nil
}

// Write streams src to channel as fire-and-forget chunk submissions of at
// most the configured write chunk size, then blocks on the session's write
// barrier. The final chunk is always shorter than the chunk size, possibly
// empty, matching the device protocol's end-of-stream convention.
func (e *Engine) Write(channel uint8, src Source) (Result, error) {
	start := time.Now()

	var (
		sum   hexscan.Sum
		moved uint64
	)
	for {
		chunk, err := src.Next(int(e.writeChunk))
		if err != nil {
			return Result{}, fmt.Errorf("transfer: read source: %w", err)
		}
		if err := e.sess.Write(channel, chunk); err != nil {
			return Result{}, fmt.Errorf("transfer: submit write of %d bytes to channel %d: %w", len(chunk), channel, err)
		}
		sum = sum.Fold(chunk)
		moved += uint64(len(chunk))

		if uint32(len(chunk)) < e.writeChunk {
			break
		}
	}

	if err := e.sess.AwaitWrites(); err != nil {
		return Result{}, fmt.Errorf("transfer: write barrier on channel %d: %w", channel, err)
	}

	res := Result{Bytes: moved, Checksum: sum.Value(), Elapsed: time.Since(start)}
	e.logger.Debug("stream write done",
		"channel", channel, "bytes", res.Bytes, "checksum", res.Checksum, "elapsed", res.Elapsed)

	return res, nil
}

// Dump reads channel continuously in DumpChunk-sized chunks until ctx is
// cancelled, writing every chunk to sink. The chunk in flight at
// cancellation is completed and written before Dump returns, so the sink
// never ends mid-chunk. Cancellation is the normal exit and returns the
// accumulated Result with a nil error.
func (e *Engine) Dump(ctx context.Context, channel uint8, sink io.Writer) (Result, error) {
	start := time.Now()
	run := e.newReadRun(channel, sink)

	if err := run.submit(DumpChunk); err != nil {
		return Result{}, err
	}

	for ctx.Err() == nil {
		if err := run.submit(DumpChunk); err != nil {
			return Result{}, err
		}
		if err := run.drainOne(); err != nil {
			return Result{}, err
		}
	}

	for !run.inflight.IsEmpty() {
		if err := run.drainOne(); err != nil {
			return Result{}, err
		}
	}

	res := run.result(start)
	e.logger.Info("dump loop finished",
		"channel", channel, "bytes", res.Bytes, "elapsed", res.Elapsed)

	return res, nil
}
