package fakedev

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/v4l2cast/internal/device"
)

var _ device.Device = (*Device)(nil)

func TestCameraCompletesQueuedBuffers(t *testing.T) {
	cam := NewCamera(0)
	typ := device.VideoCapture

	f, err := cam.SetFormat(typ, device.Format{Width: 4, Height: 2, PixelFormat: device.FourCCYUYV})
	if err != nil {
		t.Fatalf("SetFormat: %v", err)
	}
	if f.SizeImage != 16 {
		t.Fatalf("SizeImage = %d, want 16", f.SizeImage)
	}
	if n, err := cam.RequestBuffers(typ, 2); err != nil || n != 2 {
		t.Fatalf("RequestBuffers = %d, %v", n, err)
	}
	for i := range 2 {
		if err := cam.Queue(typ, i, nil); err != nil {
			t.Fatalf("Queue(%d): %v", i, err)
		}
	}

	if err := cam.Wait(device.Readable, 0); !errors.Is(err, ErrStalled) {
		t.Fatalf("Wait before StreamOn = %v, want ErrStalled", err)
	}
	if err := cam.StreamOn(typ); err != nil {
		t.Fatalf("StreamOn: %v", err)
	}
	if cam.State() != device.StateStreaming {
		t.Errorf("State = %v, want streaming", cam.State())
	}
	if err := cam.Wait(device.Readable, 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	idx, used, err := cam.Dequeue(typ)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if idx != 0 || used[0] != 16 {
		t.Errorf("Dequeue = %d %v, want 0 [16]", idx, used)
	}
	if cam.Produced() != 2 {
		t.Errorf("Produced = %d, want 2", cam.Produced())
	}
}

func TestCameraFrameLimit(t *testing.T) {
	cam := NewCamera(0, WithFrameLimit(1))
	typ := device.VideoCapture
	mustSetup(t, cam, typ, device.Format{Width: 2, Height: 2, PixelFormat: device.FourCCYUYV}, 2)

	if _, _, err := cam.Dequeue(typ); err != nil {
		t.Fatalf("first Dequeue: %v", err)
	}
	if _, _, err := cam.Dequeue(typ); !errors.Is(err, device.ErrNotReady) {
		t.Fatalf("second Dequeue = %v, want ErrNotReady", err)
	}
	if err := cam.Wait(device.Readable, time.Second); !errors.Is(err, device.ErrTimeout) {
		t.Fatalf("Wait with timeout = %v, want ErrTimeout", err)
	}
}

func TestEncoderProducesAnnexB(t *testing.T) {
	enc := NewEncoder(11, WithGOP(2))
	in, out := device.VideoOutputMPlane, device.VideoCaptureMPlane

	mustSetup(t, enc, in, device.Format{Width: 4, Height: 2, PixelFormat: device.FourCCYUYV}, 1)
	mustSetup(t, enc, out, device.Format{Width: 4, Height: 2, PixelFormat: device.FourCCH264}, 1)

	// the bootstrap input buffer was empty and completed on its own
	idx, _, err := enc.Dequeue(in)
	if err != nil {
		t.Fatalf("Dequeue input: %v", err)
	}
	if _, _, err := enc.Dequeue(out); !errors.Is(err, device.ErrNotReady) {
		t.Fatalf("Dequeue output = %v, want ErrNotReady", err)
	}

	for n := range 3 {
		if err := enc.Queue(in, idx, []uint32{16}); err != nil {
			t.Fatalf("Queue input: %v", err)
		}
		if err := enc.Wait(device.Readable, 0); err != nil {
			t.Fatalf("Wait readable: %v", err)
		}
		o, used, err := enc.Dequeue(out)
		if err != nil {
			t.Fatalf("Dequeue output: %v", err)
		}
		mem, _ := enc.MapBuffer(out, o)
		if got, want := mem[0][:used[0]], EncodedFrame(n, 2); !bytes.Equal(got, want) {
			t.Errorf("frame %d = % x, want % x", n, got, want)
		}
		if err := enc.Queue(out, o, nil); err != nil {
			t.Fatalf("Queue output: %v", err)
		}
		if idx, _, err = enc.Dequeue(in); err != nil {
			t.Fatalf("Dequeue input: %v", err)
		}
	}
	if enc.Encoded() != 3 {
		t.Errorf("Encoded = %d, want 3", enc.Encoded())
	}
}

func TestFailNext(t *testing.T) {
	cam := NewCamera(0)
	boom := errors.New("EIO")
	cam.FailNext(OpSetFrameRate, boom)

	if _, err := cam.SetFrameRate(device.VideoCapture, 30); !errors.Is(err, boom) {
		t.Fatalf("SetFrameRate = %v, want injected error", err)
	}
	if fps, err := cam.SetFrameRate(device.VideoCapture, 30); err != nil || fps != 30 {
		t.Fatalf("second SetFrameRate = %d, %v", fps, err)
	}
}

func TestStreamOffReturnsBuffers(t *testing.T) {
	cam := NewCamera(0, WithFrameLimit(1))
	typ := device.VideoCapture
	mustSetup(t, cam, typ, device.Format{Width: 2, Height: 2, PixelFormat: device.FourCCYUYV}, 3)

	if got := cam.InFlight(typ); got != 3 {
		t.Fatalf("InFlight = %d, want 3", got)
	}
	if err := cam.StreamOff(typ); err != nil {
		t.Fatalf("StreamOff: %v", err)
	}
	if got := cam.InFlight(typ); got != 0 {
		t.Errorf("InFlight after StreamOff = %d, want 0", got)
	}
	if cam.State() != device.StateOpen {
		t.Errorf("State = %v, want open", cam.State())
	}
}

func TestEncodedUnitsMatchFrame(t *testing.T) {
	for n := range 4 {
		var joined []byte
		for i, u := range EncodedUnits(n, 3) {
			if i == 2 {
				joined = append(joined, 0, 0, 1)
			} else {
				joined = append(joined, 0, 0, 0, 1)
			}
			joined = append(joined, u...)
		}
		if want := EncodedFrame(n, 3); !bytes.Equal(joined, want) {
			t.Errorf("frame %d: units do not reassemble", n)
		}
	}
}

func mustSetup(t *testing.T, d *Device, typ device.BufferType, f device.Format, count int) {
	t.Helper()
	if _, err := d.SetFormat(typ, f); err != nil {
		t.Fatalf("SetFormat: %v", err)
	}
	if _, err := d.RequestBuffers(typ, count); err != nil {
		t.Fatalf("RequestBuffers: %v", err)
	}
	for i := range count {
		if err := d.Queue(typ, i, nil); err != nil {
			t.Fatalf("Queue(%d): %v", i, err)
		}
	}
	if err := d.StreamOn(typ); err != nil {
		t.Fatalf("StreamOn: %v", err)
	}
}
