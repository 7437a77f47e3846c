// Package nal splits an H.264 Annex-B byte stream into NAL units.
//
// Units are returned as sub-slices of the input buffer; nothing is copied,
// so a unit is valid only as long as the buffer it came from.
//
// A unit ends where the start code of the next unit begins. Only the two or
// three zero bytes of that start code are cut off: extra zero padding before
// it stays at the tail of the current unit. When no further start code
// follows, the unit runs to the end of the buffer, trailing zeros included.
package nal

import (
	"errors"
	"io"
	"iter"
)

// ErrInvalidStartCode is returned when the remaining bytes do not begin
// with 00 00 01 or 00 00 00 01. The splitter does not resynchronize.
var ErrInvalidStartCode = errors.New("invalid NAL start code")

// Splitter walks one buffer once.
type Splitter struct {
	rest []byte
	err  error
}

// NewSplitter returns a splitter over buf.
func NewSplitter(buf []byte) *Splitter {
	return &Splitter{rest: buf}
}

// Next returns the next unit without its start code. At the end of the
// buffer it returns io.EOF, on every call. A malformed start code yields
// ErrInvalidStartCode, also on every later call.
func (s *Splitter) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.rest) == 0 {
		s.err = io.EOF
		return nil, s.err
	}

	n := startCodeLen(s.rest)
	if n == 0 {
		s.err = ErrInvalidStartCode
		s.rest = nil
		return nil, s.err
	}
	body := s.rest[n:]

	zeros := 0
	for i, b := range body {
		switch {
		case b == 0:
			zeros++
		case b == 1 && zeros >= 2:
			cut := i - min(zeros, 3)
			s.rest = body[cut:]
			return body[:cut], nil
		default:
			zeros = 0
		}
	}

	s.rest = nil
	return body, nil
}

// Remaining returns the bytes not yet consumed.
func (s *Splitter) Remaining() int {
	return len(s.rest)
}

// startCodeLen returns 3 or 4 for a valid start code at the head of b, else 0.
func startCodeLen(b []byte) int {
	if len(b) < 3 || b[0] != 0 || b[1] != 0 {
		return 0
	}
	switch b[2] {
	case 1:
		return 3
	case 0:
		if len(b) >= 4 && b[3] == 1 {
			return 4
		}
	}
	return 0
}

// Split collects every unit of buf.
func Split(buf []byte) ([][]byte, error) {
	var units [][]byte
	for unit, err := range All(buf) {
		if err != nil {
			return units, err
		}
		units = append(units, unit)
	}
	return units, nil
}

// All yields the units of buf in order. Iteration stops after the first
// error, which is yielded with a nil unit.
func All(buf []byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		s := NewSplitter(buf)
		for {
			unit, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(unit, err) || err != nil {
				return
			}
		}
	}
}
