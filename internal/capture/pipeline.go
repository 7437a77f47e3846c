package capture

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/v4l2cast/internal/bufqueue"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/logging"
)

// Stats are the counters of a pipeline. They may be read from any goroutine.
type Stats struct {
	Frames     uint64
	Bytes      uint64
	Units      uint64
	LastFrame  time.Time
	LastError  string
	FrameTime  time.Duration
	Failed     bool
	CameraFmt  device.Format
	EncoderFmt device.Format
	FPS        uint32
}

// Pipeline moves frames from a camera through an encoder. TakeFrame and
// Run must be called from one goroutine; Stats is safe from any.
type Pipeline struct {
	camera  *Camera
	encoder *Encoder
	logger  *slog.Logger

	started bool
	failed  atomic.Bool

	frames    atomic.Uint64
	bytes     atomic.Uint64
	units     atomic.Uint64
	frameTime atomic.Int64

	mu        sync.Mutex
	lastFrame time.Time
	lastErr   error
}

// NewPipeline wires a camera to an encoder. The camera frame size must fit
// the encoder input buffers at runtime; TakeFrame checks each frame.
func NewPipeline(camera *Camera, encoder *Encoder) *Pipeline {
	return &Pipeline{
		camera:  camera,
		encoder: encoder,
		logger:  logging.GetLogger("capture"),
	}
}

// Camera returns the capture side.
func (p *Pipeline) Camera() *Camera { return p.camera }

// Encoder returns the encoding side.
func (p *Pipeline) Encoder() *Encoder { return p.encoder }

// FrameRate returns the negotiated camera frame rate.
func (p *Pipeline) FrameRate() uint32 { return p.camera.FrameRate() }

// Start queues every buffer of every queue once and starts all streams.
func (p *Pipeline) Start() error {
	if p.started {
		return nil
	}
	if err := p.camera.Start(); err != nil {
		return p.fail(err)
	}
	if err := p.encoder.Start(); err != nil {
		return p.fail(err)
	}
	p.started = true
	p.logger.Info("Pipeline started",
		"camera", p.camera.Device().Path(), "encoder", p.encoder.Device().Path(),
		"format", p.camera.Format().String(), "fps", p.camera.FrameRate())
	return nil
}

// Stop stops all streams. The pipeline can be started again unless it failed.
func (p *Pipeline) Stop() error {
	if !p.started {
		return nil
	}
	p.started = false
	err := errors.Join(p.camera.Stop(), p.encoder.Stop())
	p.logger.Info("Pipeline stopped", "frames", p.frames.Load())
	return err
}

// Close stops all streams and releases every buffer. The devices stay open.
func (p *Pipeline) Close() error {
	p.started = false
	return errors.Join(p.camera.Close(), p.encoder.Close())
}

// TakeFrame captures one frame, encodes it and returns a copy of the coded
// bytes. The steps run in a fixed order and each device operation is tried
// once. After an I/O failure every later call returns ErrPipelineFailed.
func (p *Pipeline) TakeFrame() ([]byte, error) {
	if p.failed.Load() {
		return nil, ErrPipelineFailed
	}
	if !p.started {
		return nil, device.IOError(nil, "take frame: pipeline not started")
	}
	begin := time.Now()

	camQ := p.camera.Queue()
	inQ := p.encoder.InputQueue()
	outQ := p.encoder.OutputQueue()

	// 1. a free encoder input buffer
	in, err := inQ.Dequeue()
	if err != nil {
		return nil, p.fail(err)
	}

	// 2. a captured frame
	frame, err := camQ.Dequeue()
	if err != nil {
		return nil, p.fail(err)
	}

	// 3. copy the frame into the encoder input
	used := frame.Used()
	if used > in.Capacity() {
		// both buffers are user-owned again; the queues stay consistent
		tooLarge := device.FrameTooLargeError(used, in.Capacity())
		if err := camQ.Enqueue(frame.Index); err != nil {
			return nil, p.fail(err)
		}
		if err := p.requeueEmpty(inQ, in); err != nil {
			return nil, p.fail(err)
		}
		p.record(tooLarge)
		return nil, tooLarge
	}
	used = 0
	for i, plane := range frame.Planes {
		n := min(int(frame.BytesUsed[i]), len(plane))
		used += copy(in.Planes[0][used:], plane[:n])
	}

	// 4. give the capture buffer back to the camera
	if err := camQ.Enqueue(frame.Index); err != nil {
		return nil, p.fail(err)
	}

	// 5. submit the raw frame
	in.SetBytesUsed(used)
	if err := inQ.Enqueue(in.Index); err != nil {
		return nil, p.fail(err)
	}

	// 6. the coded frame
	coded, err := outQ.Dequeue()
	if err != nil {
		return nil, p.fail(err)
	}

	// 7. copy it out of driver memory
	out := make([]byte, len(coded.Bytes()))
	copy(out, coded.Bytes())

	// 8. give the coded buffer back to the encoder
	if err := outQ.Enqueue(coded.Index); err != nil {
		return nil, p.fail(err)
	}

	elapsed := time.Since(begin)
	p.frames.Add(1)
	p.bytes.Add(uint64(len(out)))
	p.frameTime.Store(int64(elapsed))
	p.mu.Lock()
	p.lastFrame = time.Now()
	p.mu.Unlock()
	return out, nil
}

// requeueEmpty returns an unused encoder input buffer to the driver with a
// zero payload so the queue keeps its bootstrap shape.
func (p *Pipeline) requeueEmpty(q *bufqueue.Queue, b *bufqueue.Buffer) error {
	b.SetBytesUsed(0)
	return q.Enqueue(b.Index)
}

func (p *Pipeline) fail(err error) error {
	if errors.Is(err, device.ErrIO) || errors.Is(err, bufqueue.ErrNoPendingWork) {
		if !p.failed.Swap(true) {
			p.logger.Error("Pipeline failed", "error", err)
		}
	}
	p.record(err)
	return err
}

func (p *Pipeline) record(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

// Failed reports whether an I/O error has poisoned the pipeline.
func (p *Pipeline) Failed() bool { return p.failed.Load() }

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	lastFrame, lastErr := p.lastFrame, p.lastErr
	p.mu.Unlock()

	s := Stats{
		Frames:     p.frames.Load(),
		Bytes:      p.bytes.Load(),
		Units:      p.units.Load(),
		LastFrame:  lastFrame,
		FrameTime:  time.Duration(p.frameTime.Load()),
		Failed:     p.failed.Load(),
		CameraFmt:  p.camera.Format(),
		EncoderFmt: p.encoder.CodedFormat(),
		FPS:        p.camera.FrameRate(),
	}
	if lastErr != nil {
		s.LastError = lastErr.Error()
	}
	return s
}
