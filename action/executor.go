package action

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/arcwave/benchlink/device"
	"github.com/arcwave/benchlink/logger"
	"github.com/arcwave/benchlink/transfer"
)

// Option configures an Executor.
type Option interface {
	apply(*Executor) error
}

type optFunc func(*Executor) error

func (f optFunc) apply(x *Executor) error {
	return f(x)
}

// WithBenchmark makes the executor print a throughput line after every read
// and write operation.
func WithBenchmark() Option {
	return optFunc(func(x *Executor) error {
		x.benchmark = true
		return nil
	})
}

// WithOutput redirects the hex dump and benchmark lines, which otherwise go
// to stdout.
func WithOutput(w io.Writer) Option {
	return optFunc(func(x *Executor) error {
		if w == nil {
			return errors.New("action: output writer cannot be nil")
		}
		x.out = w
		return nil
	})
}

// WithLogger sets the logger used for execution tracing.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(x *Executor) error {
		if l == nil {
			return errors.New("action: logger cannot be nil")
		}
		x.logger = l
		return nil
	})
}

// WithTransferOptions forwards options to the transfer engine the executor
// builds over the session.
func WithTransferOptions(opts ...transfer.Option) Option {
	return optFunc(func(x *Executor) error {
		x.engineOpts = append(x.engineOpts, opts...)
		return nil
	})
}

// Executor runs parsed action lines against a device session. Reads without
// a destination file accumulate in a per-line buffer that is hex-dumped to
// the output writer once the whole line has succeeded.
type Executor struct {
	sess       device.Session
	eng        *transfer.Engine
	out        io.Writer
	logger     logger.Logger
	benchmark  bool
	engineOpts []transfer.Option
}

// NewExecutor builds an executor over sess. The zero configuration writes
// to stdout and prints no benchmark lines.
func NewExecutor(sess device.Session, opts ...Option) (*Executor, error) {
	if sess == nil {
		return nil, errors.New("action: session cannot be nil")
	}
	x := &Executor{
		sess:   sess,
		out:    os.Stdout,
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(x); err != nil {
			return nil, err
		}
	}
	eng, err := transfer.NewEngine(sess, x.engineOpts...)
	if err != nil {
		return nil, err
	}
	x.eng = eng
	return x, nil
}

// Run parses and executes one action line. Parse failures return a *Error
// before the device is touched; execution stops at the first failing
// operation. File open and write failures also come back as *Error,
// positioned at the filename; anything else is a transport failure.
func (x *Executor) Run(line string) error {
	ops, err := Parse(line)
	if err != nil {
		return err
	}
	var mem bytes.Buffer
	for i := range ops {
		if err := x.execute(&ops[i], &mem, line); err != nil {
			return err
		}
	}
	if mem.Len() > 0 {
		fmt.Fprint(x.out, hex.Dump(mem.Bytes()))
	}
	return nil
}

func (x *Executor) execute(op *Op, mem *bytes.Buffer, line string) error {
	switch op.Kind {
	case OpRead:
		return x.read(op, mem, line)
	case OpWrite:
		return x.write(op, line)
	case OpSelectConduit:
		x.logger.Debug("selecting conduit", "conduit", op.Conduit)
		return x.sess.SelectConduit(op.Conduit)
	default:
		return fmt.Errorf("action: unknown operation kind %d", op.Kind)
	}
}

func (x *Executor) read(op *Op, mem *bytes.Buffer, line string) error {
	var sink io.Writer = mem
	var f *os.File
	if op.File != "" {
		var err error
		f, err = os.Create(op.File)
		if err != nil {
			return &Error{Kind: KindCannotSave, Line: line, Column: op.fileCol}
		}
		sink = f
	}
	res, err := x.eng.Read(op.Channel, op.Length, sink)
	if f != nil {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		var perr *fs.PathError
		if errors.As(err, &perr) {
			return &Error{Kind: KindCannotSave, Line: line, Column: op.fileCol}
		}
		return err
	}
	if x.benchmark {
		fmt.Fprintf(x.out, "Read %d bytes (checksum 0x%04X) from channel %d at %f MiB/s\n",
			res.Bytes, res.Checksum, op.Channel, res.MiBPerSec())
	}
	return nil
}

func (x *Executor) write(op *Op, line string) error {
	var src transfer.Source
	if op.File != "" {
		fileSrc, err := transfer.FileSource(op.File)
		if err != nil {
			return &Error{Kind: KindCannotLoad, Line: line, Column: op.fileCol}
		}
		src = fileSrc
	} else {
		src = transfer.BytesSource(op.Data)
	}
	res, err := x.eng.Write(op.Channel, src)
	if cerr := src.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		var perr *fs.PathError
		if errors.As(err, &perr) {
			return &Error{Kind: KindCannotLoad, Line: line, Column: op.fileCol}
		}
		return err
	}
	if x.benchmark {
		fmt.Fprintf(x.out, "Wrote %d bytes (checksum 0x%04X) to channel %d at %f MiB/s\n",
			res.Bytes, res.Checksum, op.Channel, res.MiBPerSec())
	}
	return nil
}
