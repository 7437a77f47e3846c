// Package fakedev is a software double of a V4L2 camera and a V4L2
// memory-to-memory H.264 encoder. Buffers complete synchronously when they
// are queued, so tests never block: a Wait on a device with nothing to
// deliver returns ErrStalled instead of hanging.
package fakedev

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/v4l2cast/internal/device"
)

// ErrStalled is returned by Wait when no buffer can ever complete.
var ErrStalled = errors.New("fake device stalled: no buffer can complete")

// Op names a device operation for failure injection.
type Op string

// Injectable operations.
const (
	OpCapabilities   Op = "Capabilities"
	OpSetFormat      Op = "SetFormat"
	OpSetFrameRate   Op = "SetFrameRate"
	OpRequestBuffers Op = "RequestBuffers"
	OpMapBuffer      Op = "MapBuffer"
	OpQueue          Op = "Queue"
	OpDequeue        Op = "Dequeue"
	OpWait           Op = "Wait"
	OpStreamOn       Op = "StreamOn"
	OpStreamOff      Op = "StreamOff"
)

type role int

const (
	roleCamera role = iota
	roleEncoder
)

type pending struct {
	index int
	used  []uint32
}

type queue struct {
	mem       [][][]byte
	queued    []pending
	done      []pending
	streaming bool
}

// Device implements device.Device in memory.
type Device struct {
	mu sync.Mutex

	index  int
	role   role
	caps   device.Capability
	state  device.State
	closed bool

	formats map[device.BufferType]device.Format
	rates   map[device.BufferType]uint32
	queues  map[device.BufferType]*queue

	adjust     func(device.BufferType, device.Format) device.Format
	maxFPS     uint32
	grant      func(requested int) int
	frameSize  int
	frameLimit int
	gop        int

	produced int
	encoded  int
	failures map[Op]error
	calls    []string
}

// Option configures a fake device.
type Option func(*Device)

// WithCapabilities overrides the reported capabilities.
func WithCapabilities(c device.Capability) Option {
	return func(d *Device) { d.caps = c }
}

// WithFormatAdjust lets the fake driver alter a requested format, the way
// a real driver rounds geometry or substitutes pixel formats.
func WithFormatAdjust(fn func(device.BufferType, device.Format) device.Format) Option {
	return func(d *Device) { d.adjust = fn }
}

// WithMaxFrameRate caps the frame rate the driver accepts.
func WithMaxFrameRate(fps uint32) Option {
	return func(d *Device) { d.maxFPS = fps }
}

// WithGrantedBuffers makes RequestBuffers grant fn(requested) buffers.
func WithGrantedBuffers(fn func(requested int) int) Option {
	return func(d *Device) { d.grant = fn }
}

// WithFrameSize sets the used length of every captured frame. The default
// is the negotiated image size.
func WithFrameSize(n int) Option {
	return func(d *Device) { d.frameSize = n }
}

// WithFrameLimit stops the camera after n frames.
func WithFrameLimit(n int) Option {
	return func(d *Device) { d.frameLimit = n }
}

// WithGOP sets the distance between IDR frames of the fake encoder.
func WithGOP(n int) Option {
	return func(d *Device) { d.gop = max(n, 1) }
}

// NewCamera returns a fake single-planar capture device.
func NewCamera(index int, opts ...Option) *Device {
	return newDevice(index, roleCamera, device.CapVideoCapture|device.CapStreaming, opts)
}

// NewEncoder returns a fake multi-planar memory-to-memory H.264 encoder.
func NewEncoder(index int, opts ...Option) *Device {
	return newDevice(index, roleEncoder, device.CapVideoM2MMPlane|device.CapStreaming, opts)
}

func newDevice(index int, r role, caps device.Capability, opts []Option) *Device {
	d := &Device{
		index:    index,
		role:     r,
		caps:     caps,
		state:    device.StateOpen,
		formats:  make(map[device.BufferType]device.Format),
		rates:    make(map[device.BufferType]uint32),
		queues:   make(map[device.BufferType]*queue),
		gop:      30,
		failures: make(map[Op]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailNext makes the next call of op return err.
func (d *Device) FailNext(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

// Calls returns the operations performed so far, formatted as "Op(type)".
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Streaming reports whether the queue is streaming.
func (d *Device) Streaming(t device.BufferType) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[t]
	return ok && q.streaming
}

// Mapped reports whether the queue holds an allocation.
func (d *Device) Mapped(t device.BufferType) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.queues[t]
	return ok
}

// InFlight returns the number of buffers the driver holds on the queue.
func (d *Device) InFlight(t device.BufferType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[t]
	if !ok {
		return 0
	}
	return len(q.queued) + len(q.done)
}

// Produced returns the number of frames the camera has captured.
func (d *Device) Produced() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.produced
}

// Encoded returns the number of frames the encoder has produced.
func (d *Device) Encoded() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.encoded
}

func (d *Device) Index() int { return d.index }

func (d *Device) Path() string { return device.NodePath(d.index) }

func (d *Device) State() device.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) Capabilities() (device.Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCapabilities, ""); err != nil {
		return 0, err
	}
	return d.caps, nil
}

func (d *Device) SetFormat(t device.BufferType, f device.Format) (device.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetFormat, t.String()); err != nil {
		return device.Format{}, err
	}
	if !d.supports(t) {
		return device.Format{}, fmt.Errorf("EINVAL: buffer type %s not supported", t)
	}

	if !t.MultiPlanar {
		f.Planes = 1
	}
	f.Planes = f.PlaneCount()
	if f.SizeImage == 0 || t.Direction == device.Input {
		f.SizeImage = imageSize(f)
	}
	if d.adjust != nil {
		f = d.adjust(t, f)
	}
	d.formats[t] = f
	return f, nil
}

func (d *Device) SetFrameRate(t device.BufferType, fps uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetFrameRate, t.String()); err != nil {
		return 0, err
	}
	if fps == 0 {
		return 0, fmt.Errorf("EINVAL: zero frame rate")
	}
	if d.maxFPS > 0 && fps > d.maxFPS {
		fps = d.maxFPS
	}
	d.rates[t] = fps
	return fps, nil
}

func (d *Device) RequestBuffers(t device.BufferType, count int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRequestBuffers, t.String()); err != nil {
		return 0, err
	}
	if !d.supports(t) {
		return 0, fmt.Errorf("EINVAL: buffer type %s not supported", t)
	}
	if q, ok := d.queues[t]; ok && q.streaming {
		return 0, fmt.Errorf("EBUSY: %s queue is streaming", t)
	}
	if count == 0 {
		delete(d.queues, t)
		return 0, nil
	}

	granted := count
	if d.grant != nil {
		granted = d.grant(count)
	}

	f, ok := d.formats[t]
	if !ok {
		f = device.Format{Planes: 1, SizeImage: 4096}
	}
	planeSize := int(f.SizeImage) / f.PlaneCount()

	q := &queue{mem: make([][][]byte, granted)}
	for i := range q.mem {
		q.mem[i] = make([][]byte, f.PlaneCount())
		for p := range q.mem[i] {
			q.mem[i][p] = make([]byte, planeSize)
		}
	}
	d.queues[t] = q
	return granted, nil
}

func (d *Device) MapBuffer(t device.BufferType, index int) ([][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpMapBuffer, t.String()); err != nil {
		return nil, err
	}
	q, ok := d.queues[t]
	if !ok {
		return nil, fmt.Errorf("EINVAL: %s queue has no buffers", t)
	}
	if index < 0 || index >= len(q.mem) {
		return nil, fmt.Errorf("EINVAL: buffer index %d out of range", index)
	}
	return q.mem[index], nil
}

func (d *Device) UnmapBuffers(t device.BufferType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf("UnmapBuffers(%s)", t))
	if q, ok := d.queues[t]; ok && q.streaming {
		return fmt.Errorf("EBUSY: %s queue is streaming", t)
	}
	delete(d.queues, t)
	return nil
}

func (d *Device) Queue(t device.BufferType, index int, bytesUsed []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpQueue, t.String()); err != nil {
		return err
	}
	q, ok := d.queues[t]
	if !ok {
		return fmt.Errorf("EINVAL: %s queue has no buffers", t)
	}
	if index < 0 || index >= len(q.mem) {
		return fmt.Errorf("EINVAL: buffer index %d out of range", index)
	}
	for _, p := range q.queued {
		if p.index == index {
			return fmt.Errorf("EINVAL: buffer %d already queued", index)
		}
	}
	for _, p := range q.done {
		if p.index == index {
			return fmt.Errorf("EINVAL: buffer %d already queued", index)
		}
	}

	used := make([]uint32, len(q.mem[index]))
	if t.Direction == device.Input {
		copy(used, bytesUsed)
	}
	q.queued = append(q.queued, pending{index: index, used: used})
	d.process()
	return nil
}

func (d *Device) Dequeue(t device.BufferType) (int, []uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpDequeue, t.String()); err != nil {
		return 0, nil, err
	}
	q, ok := d.queues[t]
	if !ok || !q.streaming {
		return 0, nil, fmt.Errorf("EINVAL: %s queue is not streaming", t)
	}
	if len(q.done) == 0 {
		return 0, nil, device.ErrNotReady
	}
	p := q.done[0]
	q.done = q.done[1:]
	return p.index, p.used, nil
}

func (d *Device) Wait(r device.Readiness, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpWait, r.String()); err != nil {
		return err
	}
	for t, q := range d.queues {
		if t.Readiness() == r && len(q.done) > 0 {
			return nil
		}
	}
	if timeout > 0 {
		return device.ErrTimeout
	}
	return ErrStalled
}

func (d *Device) StreamOn(t device.BufferType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpStreamOn, t.String()); err != nil {
		return err
	}
	q, ok := d.queues[t]
	if !ok {
		return fmt.Errorf("EINVAL: %s queue has no buffers", t)
	}
	q.streaming = true
	d.state = device.StateStreaming
	d.process()
	return nil
}

func (d *Device) StreamOff(t device.BufferType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpStreamOff, t.String()); err != nil {
		return err
	}
	q, ok := d.queues[t]
	if !ok {
		return nil
	}
	q.streaming = false
	q.queued = nil
	q.done = nil
	d.state = device.StateOpen
	for _, other := range d.queues {
		if other.streaming {
			d.state = device.StateStreaming
		}
	}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "Close()")
	d.closed = true
	d.state = device.StateClosed
	d.queues = make(map[device.BufferType]*queue)
	return nil
}

// enter records the call and returns a pending injected failure.
func (d *Device) enter(op Op, arg string) error {
	d.calls = append(d.calls, fmt.Sprintf("%s(%s)", op, arg))
	if d.closed {
		return device.ErrClosed
	}
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

func (d *Device) supports(t device.BufferType) bool {
	switch d.role {
	case roleCamera:
		if t.Direction != device.Output {
			return false
		}
		if t.MultiPlanar {
			return d.caps.Has(device.CapVideoCaptureMPlane)
		}
		return d.caps.Has(device.CapVideoCapture)
	default:
		if t.MultiPlanar {
			return d.caps.HasAny(device.CapVideoM2MMPlane)
		}
		return d.caps.HasAny(device.CapVideoM2M)
	}
}

// process completes every buffer the fake hardware can complete right now.
func (d *Device) process() {
	if d.role == roleCamera {
		d.capture()
		return
	}
	d.encode()
}

func (d *Device) capture() {
	for t, q := range d.queues {
		if !q.streaming {
			continue
		}
		for len(q.queued) > 0 {
			if d.frameLimit > 0 && d.produced >= d.frameLimit {
				return
			}
			p := q.queued[0]
			q.queued = q.queued[1:]

			size := int(d.formats[t].SizeImage)
			if d.frameSize > 0 {
				size = d.frameSize
			}
			planes := q.mem[p.index]
			for i, plane := range planes {
				n := min(size, len(plane))
				if i == len(planes)-1 {
					// the remainder is reported on the last plane, even past its end
					n = size
				}
				fillPattern(plane[:min(n, len(plane))], d.produced)
				p.used[i] = uint32(n)
				size -= n
			}
			d.produced++
			q.done = append(q.done, p)
		}
	}
}

func (d *Device) encode() {
	in, out := d.m2mQueues()
	if in == nil || out == nil || !in.streaming || !out.streaming {
		return
	}
	for len(in.queued) > 0 {
		p := in.queued[0]
		if p.used[0] == 0 {
			// an empty input completes without producing output
			in.queued = in.queued[1:]
			in.done = append(in.done, p)
			continue
		}
		if len(out.queued) == 0 {
			return
		}
		o := out.queued[0]
		in.queued = in.queued[1:]
		out.queued = out.queued[1:]

		frame := EncodedFrame(d.encoded, d.gop)
		n := copy(out.mem[o.index][0], frame)
		o.used[0] = uint32(n)
		d.encoded++

		in.done = append(in.done, p)
		out.done = append(out.done, o)
	}
}

func (d *Device) m2mQueues() (in, out *queue) {
	for t, q := range d.queues {
		if t.Direction == device.Input {
			in = q
		} else {
			out = q
		}
	}
	return in, out
}

// fillPattern writes a recognisable per-frame pattern.
func fillPattern(b []byte, frame int) {
	for i := range b {
		b[i] = byte(frame + i)
	}
}

func imageSize(f device.Format) uint32 {
	pixels := f.Width * f.Height
	switch f.PixelFormat {
	case device.FourCCYUYV:
		return pixels * 2
	case device.FourCCNV12, device.FourCCYU12:
		return pixels * 3 / 2
	case device.FourCCH264, device.FourCCHEVC, device.FourCCMJPG:
		return max(pixels/2, 4096)
	default:
		return max(pixels*2, 4096)
	}
}
