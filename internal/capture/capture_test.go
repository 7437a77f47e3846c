package capture

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/v4l2cast/internal/bufqueue"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/device/fakedev"
	"github.com/smazurov/v4l2cast/internal/nal"
)

func testConfig() Config {
	return Config{
		Camera: CameraConfig{
			Width:       640,
			Height:      480,
			PixelFormat: device.FourCCYUYV,
			FPS:         15,
			Buffers:     3,
		},
		Encoder: EncoderConfig{
			Coded:         device.FourCCH264,
			InputBuffers:  1,
			OutputBuffers: 1,
		},
	}
}

func newTestPipeline(t *testing.T, camOpts, encOpts []fakedev.Option) (*Pipeline, *fakedev.Device, *fakedev.Device) {
	t.Helper()
	cam := fakedev.NewCamera(0, camOpts...)
	enc := fakedev.NewEncoder(11, encOpts...)
	p, err := Open(cam, enc, testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, cam, enc
}

// assertInvariant checks driver + user == depth on every queue.
func assertInvariant(t *testing.T, p *Pipeline) {
	t.Helper()
	queues := []*bufqueue.Queue{p.Camera().Queue(), p.Encoder().InputQueue(), p.Encoder().OutputQueue()}
	for _, q := range queues {
		driver, user := q.Counts()
		if driver+user != q.Depth() {
			t.Fatalf("%s: driver %d + user %d != depth %d", q, driver, user, q.Depth())
		}
	}
}

func TestOpenCameraCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		caps    device.Capability
		wantErr error
	}{
		{name: "capture and streaming", caps: device.CapVideoCapture | device.CapStreaming},
		{name: "multi-planar capture", caps: device.CapVideoCaptureMPlane | device.CapStreaming},
		{name: "no streaming", caps: device.CapVideoCapture, wantErr: device.ErrCapability},
		{name: "output only", caps: device.CapVideoOutput | device.CapStreaming, wantErr: device.ErrCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := fakedev.NewCamera(0, fakedev.WithCapabilities(tt.caps))
			c, err := OpenCamera(cam, testConfig().Camera)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("OpenCamera() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil {
				defer c.Close()
				if got := c.Queue().Depth(); got != 3 {
					t.Errorf("Depth = %d, want 3", got)
				}
			}
		})
	}
}

func TestOpenCameraNegotiation(t *testing.T) {
	t.Run("format rejected", func(t *testing.T) {
		cam := fakedev.NewCamera(0)
		cam.FailNext(fakedev.OpSetFormat, errors.New("EINVAL"))
		if _, err := OpenCamera(cam, testConfig().Camera); !errors.Is(err, device.ErrNegotiation) {
			t.Fatalf("error = %v, want NegotiationError", err)
		}
	})

	t.Run("pixel format substituted", func(t *testing.T) {
		cam := fakedev.NewCamera(0, fakedev.WithFormatAdjust(func(_ device.BufferType, f device.Format) device.Format {
			f.PixelFormat = device.FourCCMJPG
			return f
		}))
		if _, err := OpenCamera(cam, testConfig().Camera); !errors.Is(err, device.ErrNegotiation) {
			t.Fatalf("error = %v, want NegotiationError", err)
		}
	})

	t.Run("frame rate rejected", func(t *testing.T) {
		cam := fakedev.NewCamera(0)
		cam.FailNext(fakedev.OpSetFrameRate, errors.New("EINVAL"))
		if _, err := OpenCamera(cam, testConfig().Camera); !errors.Is(err, device.ErrNegotiation) {
			t.Fatalf("error = %v, want NegotiationError", err)
		}
	})

	t.Run("buffer allocation refused", func(t *testing.T) {
		cam := fakedev.NewCamera(0)
		cam.FailNext(fakedev.OpRequestBuffers, errors.New("ENOMEM"))
		if _, err := OpenCamera(cam, testConfig().Camera); !errors.Is(err, device.ErrDevice) {
			t.Fatalf("error = %v, want DeviceError", err)
		}
	})

	t.Run("adjusted values are read back", func(t *testing.T) {
		cam := fakedev.NewCamera(0,
			fakedev.WithMaxFrameRate(10),
			fakedev.WithFormatAdjust(func(_ device.BufferType, f device.Format) device.Format {
				f.Width, f.Height = 320, 240
				f.SizeImage = 320 * 240 * 2
				return f
			}))
		c, err := OpenCamera(cam, testConfig().Camera)
		if err != nil {
			t.Fatalf("OpenCamera: %v", err)
		}
		defer c.Close()
		if c.Format().Width != 320 || c.Format().Height != 240 {
			t.Errorf("Format = %s, want 320x240", c.Format())
		}
		if c.FrameRate() != 10 {
			t.Errorf("FrameRate = %d, want 10", c.FrameRate())
		}
	})
}

func TestOpenEncoderCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		caps    device.Capability
		wantErr error
	}{
		{name: "m2m multi-planar", caps: device.CapVideoM2MMPlane | device.CapStreaming},
		{name: "m2m single-planar", caps: device.CapVideoM2M | device.CapStreaming},
		{name: "capture device", caps: device.CapVideoCapture | device.CapStreaming, wantErr: device.ErrCapability},
		{name: "no streaming", caps: device.CapVideoM2MMPlane, wantErr: device.ErrCapability},
	}

	input := device.Format{Width: 640, Height: 480, PixelFormat: device.FourCCYUYV}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := fakedev.NewEncoder(11, fakedev.WithCapabilities(tt.caps))
			e, err := OpenEncoder(enc, EncoderConfig{Input: input, Coded: device.FourCCH264, FPS: 15})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("OpenEncoder() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil {
				defer e.Close()
				if e.InputQueue().Depth() != 1 || e.OutputQueue().Depth() != 1 {
					t.Errorf("depths = %d/%d, want 1/1", e.InputQueue().Depth(), e.OutputQueue().Depth())
				}
				if e.CodedFormat().PixelFormat != device.FourCCH264 {
					t.Errorf("coded = %s, want H264", e.CodedFormat().PixelFormat)
				}
			}
		})
	}
}

func TestOpenPropagatesCameraGeometry(t *testing.T) {
	cam := fakedev.NewCamera(0, fakedev.WithFormatAdjust(func(_ device.BufferType, f device.Format) device.Format {
		f.Width, f.Height = 1280, 720
		f.SizeImage = 1280 * 720 * 2
		return f
	}))
	enc := fakedev.NewEncoder(11)

	p, err := Open(cam, enc, testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	in := p.Encoder().InputFormat()
	if in.Width != 1280 || in.Height != 720 {
		t.Errorf("encoder input = %s, want 1280x720", in)
	}
	if p.Encoder().FrameRate() != 15 {
		t.Errorf("encoder fps = %d, want 15", p.Encoder().FrameRate())
	}
}

func TestOpenReleasesCameraOnEncoderFailure(t *testing.T) {
	cam := fakedev.NewCamera(0)
	enc := fakedev.NewEncoder(11, fakedev.WithCapabilities(device.CapVideoCapture))

	if _, err := Open(cam, enc, testConfig()); !errors.Is(err, device.ErrCapability) {
		t.Fatalf("Open() error = %v, want CapabilityError", err)
	}
	if cam.Mapped(device.VideoCapture) {
		t.Error("camera buffers still allocated after failed Open")
	}
}

func TestTakeFrame(t *testing.T) {
	p, cam, enc := newTestPipeline(t, nil, []fakedev.Option{fakedev.WithGOP(5)})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	assertInvariant(t, p)

	for n := range 12 {
		frame, err := p.TakeFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", n, err)
		}
		if want := fakedev.EncodedFrame(n, 5); !bytes.Equal(frame, want) {
			t.Fatalf("frame %d = % x, want % x", n, frame, want)
		}
		assertInvariant(t, p)
	}

	if got := enc.Encoded(); got != 12 {
		t.Errorf("Encoded = %d, want 12", got)
	}
	if got := cam.Produced(); got < 12 {
		t.Errorf("Produced = %d, want at least 12", got)
	}
	if s := p.Stats(); s.Frames != 12 || s.Failed {
		t.Errorf("Stats = %+v", s)
	}
}

func TestTakeFrameReturnsCallerOwnedCopy(t *testing.T) {
	p, _, enc := newTestPipeline(t, nil, nil)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	frame, err := p.TakeFrame()
	if err != nil {
		t.Fatal(err)
	}
	mem, err := enc.MapBuffer(device.VideoCaptureMPlane, 0)
	if err != nil {
		t.Fatal(err)
	}
	mem[0][0] ^= 0xff
	if frame[0] != 0 {
		t.Error("TakeFrame result aliases driver memory")
	}
}

func TestTakeFrameTooLarge(t *testing.T) {
	p, cam, _ := newTestPipeline(t, []fakedev.Option{fakedev.WithFrameSize(640*480*2 + 1)}, nil)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	_, err := p.TakeFrame()
	if !errors.Is(err, device.ErrFrameTooLarge) {
		t.Fatalf("TakeFrame() error = %v, want FrameTooLargeError", err)
	}
	assertInvariant(t, p)
	if p.Failed() {
		t.Error("a too large frame must not poison the pipeline")
	}
	if cam.InFlight(device.VideoCapture) != 3 {
		t.Errorf("camera in flight = %d, want 3", cam.InFlight(device.VideoCapture))
	}
}

func TestTakeFrameIOErrorPoisons(t *testing.T) {
	steps := []struct {
		name string
		dev  string
		op   fakedev.Op
	}{
		{name: "camera dequeue", dev: "camera", op: fakedev.OpDequeue},
		{name: "encoder dequeue", dev: "encoder", op: fakedev.OpDequeue},
		{name: "camera requeue", dev: "camera", op: fakedev.OpQueue},
		{name: "encoder queue", dev: "encoder", op: fakedev.OpQueue},
	}

	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			p, cam, enc := newTestPipeline(t, nil, nil)
			if err := p.Start(); err != nil {
				t.Fatal(err)
			}
			target := cam
			if tt.dev == "encoder" {
				target = enc
			}
			target.FailNext(tt.op, errors.New("EIO"))

			if _, err := p.TakeFrame(); !errors.Is(err, device.ErrIO) {
				t.Fatalf("TakeFrame() error = %v, want IOError", err)
			}
			if _, err := p.TakeFrame(); !errors.Is(err, ErrPipelineFailed) {
				t.Fatalf("second TakeFrame() error = %v, want ErrPipelineFailed", err)
			}
			if !p.Stats().Failed {
				t.Error("Stats().Failed = false")
			}
		})
	}
}

func TestTakeFrameStalledCamera(t *testing.T) {
	p, _, _ := newTestPipeline(t, []fakedev.Option{fakedev.WithFrameLimit(2)}, nil)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := p.TakeFrame(); err != nil {
			t.Fatal(err)
		}
	}
	_, err := p.TakeFrame()
	if !errors.Is(err, fakedev.ErrStalled) || !errors.Is(err, device.ErrIO) {
		t.Fatalf("TakeFrame() error = %v, want IOError wrapping ErrStalled", err)
	}
}

func TestTakeFrameBeforeStart(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, nil)
	if _, err := p.TakeFrame(); !errors.Is(err, device.ErrIO) {
		t.Fatalf("TakeFrame() error = %v, want IOError", err)
	}
}

func TestStopReclaimsBuffers(t *testing.T) {
	p, cam, enc := newTestPipeline(t, nil, nil)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.TakeFrame(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, q := range []*bufqueue.Queue{p.Camera().Queue(), p.Encoder().InputQueue(), p.Encoder().OutputQueue()} {
		if driver, _ := q.Counts(); driver != 0 {
			t.Errorf("%s: driver owns %d buffers after Stop", q, driver)
		}
	}
	if cam.Streaming(device.VideoCapture) || enc.Streaming(device.VideoCaptureMPlane) {
		t.Error("devices still streaming after Stop")
	}

	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := p.TakeFrame(); err != nil {
		t.Fatalf("TakeFrame after restart: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cam.Mapped(device.VideoCapture) || enc.Mapped(device.VideoOutputMPlane) || enc.Mapped(device.VideoCaptureMPlane) {
		t.Error("buffers still mapped after Close")
	}
}

type recordingWriter struct {
	units     [][]byte
	durations []time.Duration
	failAfter int
	cancel    context.CancelFunc
	cancelAt  int
}

func (w *recordingWriter) WriteUnit(unit []byte, d time.Duration) error {
	if w.failAfter > 0 && len(w.units) >= w.failAfter {
		return errors.New("sink closed")
	}
	w.units = append(w.units, append([]byte(nil), unit...))
	w.durations = append(w.durations, d)
	if w.cancel != nil && len(w.units) == w.cancelAt {
		w.cancel()
	}
	return nil
}

func TestRunMaxFrames(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, []fakedev.Option{fakedev.WithGOP(3)})
	w := &recordingWriter{}

	if err := p.Run(context.Background(), w, WithMaxFrames(4)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var want [][]byte
	for n := range 4 {
		want = append(want, fakedev.EncodedUnits(n, 3)...)
	}
	if len(w.units) != len(want) {
		t.Fatalf("got %d units, want %d", len(w.units), len(want))
	}
	for i := range want {
		if !bytes.Equal(w.units[i], want[i]) {
			t.Errorf("unit %d = % x, want % x", i, w.units[i], want[i])
		}
		if w.durations[i] != time.Second/15 {
			t.Errorf("duration %d = %v, want %v", i, w.durations[i], time.Second/15)
		}
	}
	if nal.Type(w.units[0]) != nal.TypeSPS {
		t.Errorf("first unit type = %s, want sps", nal.Type(w.units[0]))
	}
	if s := p.Stats(); s.Units != uint64(len(want)) {
		t.Errorf("Stats().Units = %d, want %d", s.Units, len(want))
	}
}

func TestRunCancelsBetweenFrames(t *testing.T) {
	p, _, enc := newTestPipeline(t, nil, []fakedev.Option{fakedev.WithGOP(2)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// frame 0 is SPS PPS IDR; cancel on its second unit
	w := &recordingWriter{cancel: cancel, cancelAt: 2}
	if err := p.Run(ctx, w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w.units) != 3 {
		t.Errorf("got %d units, want the 3 units of the frame in progress", len(w.units))
	}
	if enc.Encoded() != 1 {
		t.Errorf("Encoded = %d, want 1", enc.Encoded())
	}
	assertInvariant(t, p)
}

type timedWriter struct {
	first time.Time
	units int
}

func (w *timedWriter) WriteUnit([]byte, time.Duration) error {
	if w.units == 0 {
		w.first = time.Now()
	}
	w.units++
	return nil
}

func TestRunPacing(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, nil)
	interval := time.Second / 15
	w := &timedWriter{}

	begin := time.Now()
	if err := p.Run(context.Background(), w, WithPacing(), WithMaxFrames(3)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(begin)

	if w.units == 0 {
		t.Fatal("no units written")
	}
	if d := w.first.Sub(begin); d >= interval {
		t.Errorf("first unit after %v, want it before the first tick at %v", d, interval)
	}
	// two waits between three frames, none after the last
	if elapsed < 2*interval-10*time.Millisecond || elapsed >= 3*interval {
		t.Errorf("Run took %v, want about %v", elapsed, 2*interval)
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	p, _, enc := newTestPipeline(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Run(ctx, &recordingWriter{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if enc.Encoded() != 0 {
		t.Errorf("Encoded = %d, want 0", enc.Encoded())
	}
}

func TestRunSinkError(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, nil)
	w := &recordingWriter{failAfter: 1}

	err := p.Run(context.Background(), w)
	if err == nil || err.Error() != "write unit: sink closed" {
		t.Fatalf("Run() error = %v, want sink error", err)
	}
	if p.Stats().LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestRunStopsOnTakeFrameError(t *testing.T) {
	p, _, _ := newTestPipeline(t, []fakedev.Option{fakedev.WithFrameLimit(3)}, nil)
	w := &recordingWriter{}

	err := p.Run(context.Background(), w)
	if !errors.Is(err, device.ErrIO) {
		t.Fatalf("Run() error = %v, want IOError", err)
	}
	if got := p.Stats().Frames; got != 3 {
		t.Errorf("Frames = %d, want 3", got)
	}
}

func TestRunFrameHook(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil, nil)
	var frames int
	err := p.Run(context.Background(), &recordingWriter{}, WithMaxFrames(2), WithFrameHook(func([]byte) { frames++ }))
	if err != nil {
		t.Fatal(err)
	}
	if frames != 2 {
		t.Errorf("hook called %d times, want 2", frames)
	}
}
