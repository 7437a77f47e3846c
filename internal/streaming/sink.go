// Package streaming delivers NAL units produced by the capture pipeline to
// their consumer: a WebRTC sample track, an Annex-B byte stream, or nothing.
package streaming

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// Sink consumes NAL units in stream order. Units carry no start code.
type Sink interface {
	WriteUnit(unit []byte, duration time.Duration) error
	Close() error
}

// Sink kinds accepted by New.
const (
	KindFile    = "file"
	KindTrack   = "track"
	KindDiscard = "discard"
)

// Config selects and configures a sink.
type Config struct {
	Kind string
	// Path is the output file for KindFile; "-" writes to stdout.
	Path string
	// ParameterSets is an SDP fmtp line whose sprop-parameter-sets seed
	// the SPS/PPS injector before the encoder emits its own.
	ParameterSets string
	// InjectParameterSets re-sends SPS and PPS ahead of every IDR.
	InjectParameterSets bool
	TrackID             string
	StreamID            string
}

// New builds the sink described by cfg.
func New(cfg Config) (Sink, error) {
	var sink Sink
	switch cfg.Kind {
	case KindFile:
		w, err := openOutput(cfg.Path)
		if err != nil {
			return nil, err
		}
		sink = NewAnnexBSink(w)
	case KindTrack:
		t, err := NewTrackSink(cfg.TrackID, cfg.StreamID)
		if err != nil {
			return nil, err
		}
		sink = t
	case KindDiscard, "":
		sink = &DiscardSink{}
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Kind)
	}

	if cfg.InjectParameterSets {
		inj, err := NewParameterSetInjector(sink, cfg.ParameterSets)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		sink = inj
	}
	return sink, nil
}

func openOutput(path string) (io.Writer, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// DiscardSink drops every unit and counts them.
type DiscardSink struct {
	units atomic.Uint64
	bytes atomic.Uint64
}

func (s *DiscardSink) WriteUnit(unit []byte, _ time.Duration) error {
	s.units.Add(1)
	s.bytes.Add(uint64(len(unit)))
	return nil
}

func (s *DiscardSink) Close() error { return nil }

// Units returns the number of units received.
func (s *DiscardSink) Units() uint64 { return s.units.Load() }

// Bytes returns the number of payload bytes received.
func (s *DiscardSink) Bytes() uint64 { return s.bytes.Load() }
