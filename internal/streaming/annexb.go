package streaming

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"
)

var startCode = []byte{0, 0, 0, 1}

// AnnexBSink writes every unit behind a 4-byte start code, producing a raw
// .h264 elementary stream.
type AnnexBSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	closed bool
}

// NewAnnexBSink writes to w. If w is an io.Closer it is closed by Close.
func NewAnnexBSink(w io.Writer) *AnnexBSink {
	s := &AnnexBSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *AnnexBSink) WriteUnit(unit []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if _, err := s.w.Write(startCode); err != nil {
		return err
	}
	_, err := s.w.Write(unit)
	return err
}

// Flush pushes buffered bytes to the underlying writer.
func (s *AnnexBSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

func (s *AnnexBSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}
