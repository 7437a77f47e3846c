package streaming

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/v4l2cast/internal/metrics"
	"github.com/smazurov/v4l2cast/internal/nal"
)

// ParameterSetInjector re-sends the last SPS and PPS before every IDR that
// does not follow them directly, so a consumer joining mid-stream can
// start decoding at the next keyframe. Any slice between the parameter
// sets and the IDR counts as a gap.
type ParameterSetInjector struct {
	next Sink

	mu       sync.Mutex
	sps, pps []byte
	sentPS   bool
}

// NewParameterSetInjector wraps next. fmtp may carry sprop-parameter-sets
// to use until the encoder emits its own parameter sets.
func NewParameterSetInjector(next Sink, fmtp string) (*ParameterSetInjector, error) {
	sps, pps, err := ParseParameterSets(fmtp)
	if err != nil {
		return nil, err
	}
	return &ParameterSetInjector{next: next, sps: sps, pps: pps}, nil
}

func (p *ParameterSetInjector) WriteUnit(unit []byte, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch t := nal.Type(unit); {
	case t == nal.TypeSPS:
		p.sps = append(p.sps[:0], unit...)
		p.sentPS = true
	case t == nal.TypePPS:
		p.pps = append(p.pps[:0], unit...)
		p.sentPS = true
	case t == nal.TypeIDR:
		if !p.sentPS {
			if err := p.inject(); err != nil {
				return err
			}
		}
		p.sentPS = false
	case t.IsSlice():
		p.sentPS = false
	}

	return p.next.WriteUnit(unit, duration)
}

// inject writes the cached parameter sets with zero duration so they share
// the timestamp of the IDR that follows.
func (p *ParameterSetInjector) inject() error {
	if len(p.sps) == 0 || len(p.pps) == 0 {
		return nil
	}
	if err := p.next.WriteUnit(p.sps, 0); err != nil {
		return err
	}
	if err := p.next.WriteUnit(p.pps, 0); err != nil {
		return err
	}
	metrics.CountInjectedParameterSets()
	return nil
}

func (p *ParameterSetInjector) Close() error {
	return p.next.Close()
}

// ParseParameterSets extracts SPS and PPS from the sprop-parameter-sets
// of an fmtp line. A line without the attribute yields no sets.
func ParseParameterSets(fmtpLine string) (sps, pps []byte, err error) {
	const prefix = "sprop-parameter-sets="

	idx := strings.Index(fmtpLine, prefix)
	if idx < 0 {
		return nil, nil, nil
	}

	value := fmtpLine[idx+len(prefix):]
	if semi := strings.Index(value, ";"); semi >= 0 {
		value = value[:semi]
	}

	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("sprop-parameter-sets %q: want SPS,PPS", value)
	}

	if sps, err = base64.StdEncoding.DecodeString(parts[0]); err != nil {
		return nil, nil, fmt.Errorf("sprop-parameter-sets SPS: %w", err)
	}
	if pps, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
		return nil, nil, fmt.Errorf("sprop-parameter-sets PPS: %w", err)
	}
	if nal.Type(sps) != nal.TypeSPS || nal.Type(pps) != nal.TypePPS {
		return nil, nil, fmt.Errorf("sprop-parameter-sets: got %s,%s, want sps,pps", nal.Type(sps), nal.Type(pps))
	}
	return sps, pps, nil
}
