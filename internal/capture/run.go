package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/metrics"
	"github.com/smazurov/v4l2cast/internal/nal"
)

// UnitWriter receives NAL units in stream order. duration is the nominal
// display time of the frame the unit belongs to.
type UnitWriter interface {
	WriteUnit(unit []byte, duration time.Duration) error
}

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	maxFrames uint64
	pace      bool
	onFrame   func(frame []byte)
}

// WithMaxFrames ends Run after n frames. Zero means no limit.
func WithMaxFrames(n uint64) RunOption {
	return func(c *runConfig) { c.maxFrames = n }
}

// WithPacing spaces frames by 1/fps with a ticker instead of relying on the
// camera clock alone. The first frame is taken right away.
func WithPacing() RunOption {
	return func(c *runConfig) { c.pace = true }
}

// WithFrameHook calls fn with every coded frame before it is split.
func WithFrameHook(fn func(frame []byte)) RunOption {
	return func(c *runConfig) { c.onFrame = fn }
}

// Run starts the pipeline if needed and feeds every NAL unit of every frame
// to w. ctx is checked only between frames, so a frame in progress always
// completes or fails. Run returns nil when ctx is cancelled or the frame
// limit is reached; the caller stops and closes the pipeline.
func (p *Pipeline) Run(ctx context.Context, w UnitWriter, opts ...RunOption) error {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := p.Start(); err != nil {
		return err
	}

	fps := max(p.FrameRate(), 1)
	duration := time.Second / time.Duration(fps)
	label := p.camera.Device().Path()

	var tick <-chan time.Time
	if cfg.pace {
		ticker := time.NewTicker(duration)
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := uint64(0); cfg.maxFrames == 0 || n < cfg.maxFrames; n++ {
		if n > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		begin := time.Now()
		frame, err := p.TakeFrame()
		if err != nil {
			metrics.CountError(errorKind(err))
			return err
		}
		metrics.ObserveFrame(label, len(frame), time.Since(begin))
		if cfg.onFrame != nil {
			cfg.onFrame(frame)
		}

		for unit, err := range nal.All(frame) {
			if err != nil {
				metrics.CountError(errorKind(err))
				p.record(err)
				return fmt.Errorf("split frame %d: %w", n, err)
			}
			if err := w.WriteUnit(unit, duration); err != nil {
				metrics.CountError(errorKind(err))
				p.record(err)
				return fmt.Errorf("write unit: %w", err)
			}
			p.units.Add(1)
			metrics.CountUnit(nal.Type(unit).String())
		}
	}
	return nil
}

func errorKind(err error) string {
	var e *device.Error
	switch {
	case errors.As(err, &e):
		return string(e.Code)
	case errors.Is(err, nal.ErrInvalidStartCode):
		return "INVALID_START_CODE"
	case errors.Is(err, ErrPipelineFailed):
		return "PIPELINE_FAILED"
	default:
		return "SINK"
	}
}
