package capture

import (
	"errors"
	"log/slog"
	"time"

	"github.com/smazurov/v4l2cast/internal/bufqueue"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/logging"
)

// Default encoder queue depths.
const (
	DefaultEncoderInputBuffers  = 1
	DefaultEncoderOutputBuffers = 1
)

// EncoderConfig describes the raw input and coded output of a
// memory-to-memory encoder.
type EncoderConfig struct {
	// Input is the raw frame format, normally the negotiated camera format.
	Input         device.Format
	Coded         device.FourCC
	FPS           uint32
	InputBuffers  int
	OutputBuffers int
	WaitTimeout   time.Duration
}

// Encoder is a memory-to-memory device with one queue per direction.
type Encoder struct {
	dev    device.Device
	input  device.Format
	coded  device.Format
	fps    uint32
	in     *bufqueue.Queue
	out    *bufqueue.Queue
	logger *slog.Logger
}

// OpenEncoder checks that dev is a streaming M2M device, negotiates both
// formats and the frame rate, and allocates both queues.
func OpenEncoder(dev device.Device, cfg EncoderConfig) (*Encoder, error) {
	logger := logging.GetLogger("capture").With("device", dev.Path(), "role", "encoder")

	caps, err := dev.Capabilities()
	if err != nil {
		return nil, device.DeviceError(err, "query capabilities of %s", dev.Path())
	}
	if !caps.Has(device.CapStreaming) {
		return nil, device.CapabilityError("encoder %s does not support streaming", dev.Path())
	}
	var inType, outType device.BufferType
	switch {
	case caps.Has(device.CapVideoM2MMPlane):
		inType, outType = device.VideoOutputMPlane, device.VideoCaptureMPlane
	case caps.Has(device.CapVideoM2M):
		inType, outType = device.VideoOutput, device.VideoCapture
	default:
		return nil, device.CapabilityError("encoder %s is not a memory-to-memory device", dev.Path())
	}

	wantIn := device.Format{
		Width:       cfg.Input.Width,
		Height:      cfg.Input.Height,
		PixelFormat: cfg.Input.PixelFormat,
		Planes:      1,
	}
	input, err := dev.SetFormat(inType, wantIn)
	if err != nil {
		return nil, device.NegotiationError(err, "encoder input format %s", wantIn)
	}
	if input.PixelFormat != wantIn.PixelFormat {
		return nil, device.NegotiationError(nil, "encoder %s does not accept %s, driver chose %s", dev.Path(), wantIn.PixelFormat, input.PixelFormat)
	}
	warnAdjusted(logger, "encoder input format", wantIn, input)

	wantOut := device.Format{Width: input.Width, Height: input.Height, PixelFormat: cfg.Coded, Planes: 1}
	coded, err := dev.SetFormat(outType, wantOut)
	if err != nil {
		return nil, device.NegotiationError(err, "encoder coded format %s", wantOut)
	}
	if coded.PixelFormat != cfg.Coded {
		return nil, device.NegotiationError(nil, "encoder %s does not produce %s, driver chose %s", dev.Path(), cfg.Coded, coded.PixelFormat)
	}

	fps, err := dev.SetFrameRate(inType, cfg.FPS)
	if err != nil {
		return nil, device.NegotiationError(err, "encoder frame rate %d", cfg.FPS)
	}
	if fps == 0 {
		fps = cfg.FPS
	} else if fps != cfg.FPS {
		logger.Warn("Driver adjusted frame rate", "requested", cfg.FPS, "applied", fps)
	}

	inDepth := cfg.InputBuffers
	if inDepth == 0 {
		inDepth = DefaultEncoderInputBuffers
	}
	outDepth := cfg.OutputBuffers
	if outDepth == 0 {
		outDepth = DefaultEncoderOutputBuffers
	}

	in, err := bufqueue.New(dev, inType, input.PlaneCount(), inDepth, bufqueue.WithWaitTimeout(cfg.WaitTimeout))
	if err != nil {
		return nil, err
	}
	out, err := bufqueue.New(dev, outType, coded.PlaneCount(), outDepth, bufqueue.WithWaitTimeout(cfg.WaitTimeout))
	if err != nil {
		_ = in.Close()
		return nil, err
	}

	logger.Info("Encoder ready",
		"input", input.String(), "input_size", input.SizeImage,
		"coded", coded.PixelFormat.String(), "fps", fps,
		"input_buffers", inDepth, "output_buffers", outDepth)
	return &Encoder{dev: dev, input: input, coded: coded, fps: fps, in: in, out: out, logger: logger}, nil
}

// InputFormat returns the negotiated raw input format.
func (e *Encoder) InputFormat() device.Format { return e.input }

// CodedFormat returns the negotiated coded output format.
func (e *Encoder) CodedFormat() device.Format { return e.coded }

// FrameRate returns the negotiated frame rate.
func (e *Encoder) FrameRate() uint32 { return e.fps }

// InputQueue returns the raw frame queue.
func (e *Encoder) InputQueue() *bufqueue.Queue { return e.in }

// OutputQueue returns the coded bitstream queue.
func (e *Encoder) OutputQueue() *bufqueue.Queue { return e.out }

// Device returns the underlying device.
func (e *Encoder) Device() device.Device { return e.dev }

// Start queues every free buffer of both queues and starts both streams.
func (e *Encoder) Start() error {
	for _, q := range []*bufqueue.Queue{e.in, e.out} {
		if err := q.EnqueueAll(); err != nil {
			return err
		}
	}
	if err := e.in.Start(); err != nil {
		return err
	}
	return e.out.Start()
}

// Stop stops both streams.
func (e *Encoder) Stop() error {
	return errors.Join(e.in.Stop(), e.out.Stop())
}

// Close stops both streams and releases the buffers. The device stays open.
func (e *Encoder) Close() error {
	return errors.Join(e.in.Close(), e.out.Close())
}
