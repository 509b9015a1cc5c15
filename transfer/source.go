package transfer

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Source yields consecutive chunks of a write payload.
//
// Next returns at most max bytes; a chunk shorter than max (possibly empty)
// is the final one. The returned slice is only valid until the next call.
// This mirrors short-read-at-end file semantics so the engine can preserve
// the device protocol's trailing short (or empty) write submission.
type Source interface {
	Next(max int) ([]byte, error)
	Close() error
}

type bytesSource struct {
	data []byte
	off  int
}

// BytesSource returns a Source over an in-memory payload. The payload is
// not copied.
func BytesSource(data []byte) Source {
	return &bytesSource{data: data}
}

func (s *bytesSource) Next(max int) ([]byte, error) {
	n := len(s.data) - s.off
	if n > max {
		n = max
	}
	chunk := s.data[s.off : s.off+n]
	s.off += n

	return chunk, nil
}

func (s *bytesSource) Close() error { return nil }

type fileSource struct {
	file *os.File
	m    mmap.MMap
	off  int
}

// FileSource memory-maps path and yields chunks directly from the mapping,
// so large file writes reach the session without an intermediate copy.
// Empty files are handled without a mapping.
func FileSource(path string) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	src := &fileSource{file: file}
	if info.Size() > 0 {
		m, err := mmap.Map(file, mmap.RDONLY, 0)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("transfer: map %s: %w", path, err)
		}
		src.m = m
	}

	return src, nil
}

func (s *fileSource) Next(max int) ([]byte, error) {
	n := len(s.m) - s.off
	if n > max {
		n = max
	}
	chunk := s.m[s.off : s.off+n]
	s.off += n

	return chunk, nil
}

func (s *fileSource) Close() error {
	var err error
	if s.m != nil {
		err = s.m.Unmap()
		s.m = nil
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}

	return err
}
