package capture

import (
	"log/slog"
	"time"

	"github.com/smazurov/v4l2cast/internal/bufqueue"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/logging"
)

// DefaultCameraBuffers is the capture queue depth used when none is configured.
const DefaultCameraBuffers = 3

// CameraConfig describes the requested capture format.
type CameraConfig struct {
	Width       uint32
	Height      uint32
	PixelFormat device.FourCC
	FPS         uint32
	Buffers     int
	WaitTimeout time.Duration
}

// Camera is a capture device with its negotiated format and buffer queue.
type Camera struct {
	dev    device.Device
	typ    device.BufferType
	format device.Format
	fps    uint32
	queue  *bufqueue.Queue
	logger *slog.Logger
}

// OpenCamera checks that dev can capture and stream, negotiates cfg and
// allocates the capture queue.
func OpenCamera(dev device.Device, cfg CameraConfig) (*Camera, error) {
	logger := logging.GetLogger("capture").With("device", dev.Path(), "role", "camera")

	caps, err := dev.Capabilities()
	if err != nil {
		return nil, device.DeviceError(err, "query capabilities of %s", dev.Path())
	}
	if !caps.Has(device.CapStreaming) {
		return nil, device.CapabilityError("camera %s does not support streaming", dev.Path())
	}
	var typ device.BufferType
	switch {
	case caps.Has(device.CapVideoCapture):
		typ = device.VideoCapture
	case caps.Has(device.CapVideoCaptureMPlane):
		typ = device.VideoCaptureMPlane
	default:
		return nil, device.CapabilityError("camera %s does not support video capture", dev.Path())
	}

	want := device.Format{Width: cfg.Width, Height: cfg.Height, PixelFormat: cfg.PixelFormat, Planes: 1}
	got, err := dev.SetFormat(typ, want)
	if err != nil {
		return nil, device.NegotiationError(err, "camera format %s", want)
	}
	if got.PixelFormat != want.PixelFormat {
		return nil, device.NegotiationError(nil, "camera %s does not capture %s, driver chose %s", dev.Path(), want.PixelFormat, got.PixelFormat)
	}
	warnAdjusted(logger, "camera format", want, got)

	fps, err := dev.SetFrameRate(typ, cfg.FPS)
	if err != nil {
		return nil, device.NegotiationError(err, "camera frame rate %d", cfg.FPS)
	}
	if fps == 0 {
		fps = cfg.FPS
	} else if fps != cfg.FPS {
		logger.Warn("Driver adjusted frame rate", "requested", cfg.FPS, "applied", fps)
	}

	depth := cfg.Buffers
	if depth == 0 {
		depth = DefaultCameraBuffers
	}
	q, err := bufqueue.New(dev, typ, got.PlaneCount(), depth, bufqueue.WithWaitTimeout(cfg.WaitTimeout))
	if err != nil {
		return nil, err
	}

	logger.Info("Camera ready", "format", got.String(), "size_image", got.SizeImage, "fps", fps, "buffers", depth)
	return &Camera{dev: dev, typ: typ, format: got, fps: fps, queue: q, logger: logger}, nil
}

// Format returns the negotiated format.
func (c *Camera) Format() device.Format { return c.format }

// FrameRate returns the negotiated frame rate.
func (c *Camera) FrameRate() uint32 { return c.fps }

// Queue returns the capture queue.
func (c *Camera) Queue() *bufqueue.Queue { return c.queue }

// Device returns the underlying device.
func (c *Camera) Device() device.Device { return c.dev }

// Start queues every free buffer and starts streaming.
func (c *Camera) Start() error {
	if err := c.queue.EnqueueAll(); err != nil {
		return err
	}
	return c.queue.Start()
}

// Stop stops streaming; every buffer returns to the application.
func (c *Camera) Stop() error {
	return c.queue.Stop()
}

// Close stops streaming and releases the buffers. The device stays open.
func (c *Camera) Close() error {
	return c.queue.Close()
}

func warnAdjusted(logger *slog.Logger, what string, want, got device.Format) {
	if want.Width == got.Width && want.Height == got.Height && want.PixelFormat == got.PixelFormat {
		return
	}
	logger.Warn("Driver adjusted "+what, "requested", want.String(), "applied", got.String())
}
