//go:build linux

package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4l2cast/pkg/linuxav/v4l2"
)

type mapping struct {
	planes int
	mem    [][][]byte
}

type v4l2Device struct {
	index     int
	dev       *v4l2.Device
	formats   map[BufferType]Format
	mappings  map[BufferType]*mapping
	streaming map[BufferType]bool
}

// Open opens /dev/video<index>.
func Open(index int) (Device, error) {
	return OpenPath(index, NodePath(index))
}

// OpenPath opens the node at path and reports it under index.
func OpenPath(index int, path string) (Device, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, DeviceError(err, "open %s", path)
	}
	return &v4l2Device{
		index:     index,
		dev:       dev,
		formats:   make(map[BufferType]Format),
		mappings:  make(map[BufferType]*mapping),
		streaming: make(map[BufferType]bool),
	}, nil
}

func (d *v4l2Device) Index() int { return d.index }

func (d *v4l2Device) Path() string { return d.dev.Path() }

func (d *v4l2Device) State() State {
	if d.dev.Fd() < 0 {
		return StateClosed
	}
	for _, on := range d.streaming {
		if on {
			return StateStreaming
		}
	}
	return StateOpen
}

func (d *v4l2Device) Capabilities() (Capability, error) {
	caps, err := d.dev.QueryCapability()
	if err != nil {
		return 0, err
	}
	return Capability(caps.Caps), nil
}

func (d *v4l2Device) SetFormat(t BufferType, f Format) (Format, error) {
	want := v4l2.PixFormat{
		Width:       f.Width,
		Height:      f.Height,
		PixelFormat: uint32(f.PixelFormat),
		NumPlanes:   uint32(f.PlaneCount()),
	}
	if f.SizeImage > 0 {
		want.PlaneSizes = []uint32{f.SizeImage}
	}

	got, err := d.dev.SetFormat(t.V4L2(), want)
	if err != nil {
		return Format{}, err
	}

	applied := Format{
		Width:       got.Width,
		Height:      got.Height,
		PixelFormat: FourCC(got.PixelFormat),
		Planes:      int(got.NumPlanes),
		SizeImage:   got.SizeImage(),
	}
	d.formats[t] = applied
	return applied, nil
}

func (d *v4l2Device) SetFrameRate(t BufferType, fps uint32) (uint32, error) {
	return d.dev.SetFrameRate(t.V4L2(), fps)
}

func (d *v4l2Device) RequestBuffers(t BufferType, count int) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("negative buffer count %d", count)
	}
	granted, err := d.dev.RequestBuffers(t.V4L2(), uint32(count))
	if err != nil {
		return 0, err
	}
	d.mappings[t] = &mapping{
		planes: d.formats[t].PlaneCount(),
		mem:    make([][][]byte, granted),
	}
	return int(granted), nil
}

func (d *v4l2Device) MapBuffer(t BufferType, index int) ([][]byte, error) {
	m, ok := d.mappings[t]
	if !ok {
		return nil, fmt.Errorf("%s queue has no buffers", t)
	}
	if index < 0 || index >= len(m.mem) {
		return nil, fmt.Errorf("buffer index %d out of range [0,%d)", index, len(m.mem))
	}
	if m.mem[index] != nil {
		return m.mem[index], nil
	}

	infos, err := d.dev.QueryBuffer(t.V4L2(), uint32(index), uint32(m.planes))
	if err != nil {
		return nil, err
	}

	planes := make([][]byte, 0, len(infos))
	for _, info := range infos {
		mem, err := d.dev.Map(info)
		if err != nil {
			for _, p := range planes {
				_ = v4l2.Unmap(p)
			}
			return nil, err
		}
		planes = append(planes, mem)
	}
	m.mem[index] = planes
	return planes, nil
}

func (d *v4l2Device) UnmapBuffers(t BufferType) error {
	m, ok := d.mappings[t]
	if !ok {
		return nil
	}
	var errs []error
	for _, planes := range m.mem {
		for _, p := range planes {
			if err := v4l2.Unmap(p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	delete(d.mappings, t)
	if _, err := d.dev.RequestBuffers(t.V4L2(), 0); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *v4l2Device) Queue(t BufferType, index int, bytesUsed []uint32) error {
	if t.Direction == Output {
		// capture buffers carry no payload, only the plane count matters
		bytesUsed = make([]uint32, d.formats[t].PlaneCount())
	}
	return d.dev.QueueBuffer(t.V4L2(), uint32(index), bytesUsed)
}

func (d *v4l2Device) Dequeue(t BufferType) (int, []uint32, error) {
	index, used, err := d.dev.DequeueBuffer(t.V4L2(), uint32(d.formats[t].PlaneCount()))
	if errors.Is(err, v4l2.ErrWouldBlock) {
		return 0, nil, ErrNotReady
	}
	if err != nil {
		return 0, nil, fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}
	return int(index), used, nil
}

func (d *v4l2Device) Wait(r Readiness, timeout time.Duration) error {
	events := v4l2.PollIn
	if r == Writable {
		events = v4l2.PollOut
	}
	revents, err := d.dev.Poll(events, timeout)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if revents == 0 {
		return ErrTimeout
	}
	if revents&v4l2.PollErr != 0 && revents&events == 0 {
		return fmt.Errorf("poll: device reported an error condition")
	}
	return nil
}

func (d *v4l2Device) StreamOn(t BufferType) error {
	if err := d.dev.StreamOn(t.V4L2()); err != nil {
		return err
	}
	d.streaming[t] = true
	return nil
}

func (d *v4l2Device) StreamOff(t BufferType) error {
	if err := d.dev.StreamOff(t.V4L2()); err != nil {
		return err
	}
	d.streaming[t] = false
	return nil
}

func (d *v4l2Device) Close() error {
	if d.dev.Fd() < 0 {
		return nil
	}
	var errs []error
	for t, on := range d.streaming {
		if on {
			if err := d.StreamOff(t); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for t := range d.mappings {
		if err := d.UnmapBuffers(t); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
