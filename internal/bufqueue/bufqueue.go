// Package bufqueue manages a fixed set of memory-mapped buffers shared with
// a V4L2 driver. Each buffer is owned either by the application or by the
// driver; ownership moves only through Enqueue, Dequeue and Stop.
package bufqueue

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/logging"
)

// ErrNoPendingWork is returned by Dequeue when the driver holds no buffer,
// so no completion can ever arrive.
var ErrNoPendingWork = errors.New("dequeue with no buffer owned by the driver")

// Owner identifies who may touch a buffer.
type Owner int

const (
	User Owner = iota
	Driver
)

func (o Owner) String() string {
	if o == Driver {
		return "driver"
	}
	return "user"
}

// State is the streaming state of a queue.
type State int

const (
	Idle State = iota
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	default:
		return "idle"
	}
}

// Buffer is one memory-mapped buffer. Planes alias driver memory and are
// valid only while the queue is open.
type Buffer struct {
	Index     int
	Planes    [][]byte
	BytesUsed []uint32
	Owner     Owner
}

// Bytes returns the used part of the first plane.
func (b *Buffer) Bytes() []byte {
	if len(b.Planes) == 0 {
		return nil
	}
	n := min(int(b.BytesUsed[0]), len(b.Planes[0]))
	return b.Planes[0][:n]
}

// Used returns the used length summed over all planes.
func (b *Buffer) Used() int {
	var n int
	for _, u := range b.BytesUsed {
		n += int(u)
	}
	return n
}

// Capacity returns the mapped size of the first plane.
func (b *Buffer) Capacity() int {
	if len(b.Planes) == 0 {
		return 0
	}
	return len(b.Planes[0])
}

// SetBytesUsed records the payload length of the first plane before the
// buffer is queued on an Input-direction queue.
func (b *Buffer) SetBytesUsed(n int) {
	b.BytesUsed[0] = uint32(n)
}

// Option configures a Queue.
type Option func(*Queue)

// WithWaitTimeout bounds every wait for a completed buffer. Zero, the
// default, waits forever.
func WithWaitTimeout(d time.Duration) Option {
	return func(q *Queue) { q.waitTimeout = d }
}

// WithLogger replaces the default bufqueue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue is the set of buffers of one queue of one device. A Queue is owned
// by a single goroutine.
type Queue struct {
	dev         device.Device
	typ         device.BufferType
	buffers     []*Buffer
	driverOwned int
	state       State
	waitTimeout time.Duration
	logger      *slog.Logger
}

// New requests depth buffers with the given plane count from dev and maps
// them. Every buffer starts owned by the user.
func New(dev device.Device, typ device.BufferType, planes, depth int, opts ...Option) (*Queue, error) {
	if depth < 1 {
		return nil, device.DeviceError(nil, "%s queue depth must be at least 1, got %d", typ, depth)
	}
	planes = max(planes, 1)

	q := &Queue{
		dev:    dev,
		typ:    typ,
		logger: logging.GetLogger("capture"),
	}
	for _, opt := range opts {
		opt(q)
	}

	granted, err := dev.RequestBuffers(typ, depth)
	if err != nil {
		return nil, device.DeviceError(err, "request %d %s buffers on %s", depth, typ, dev.Path())
	}
	if granted != depth {
		_ = dev.UnmapBuffers(typ)
		return nil, device.DeviceError(nil, "%s granted %d %s buffers, requested %d", dev.Path(), granted, typ, depth)
	}

	q.buffers = make([]*Buffer, depth)
	for i := range depth {
		mem, err := dev.MapBuffer(typ, i)
		if err != nil {
			_ = dev.UnmapBuffers(typ)
			return nil, device.DeviceError(err, "map %s buffer %d on %s", typ, i, dev.Path())
		}
		if len(mem) != planes {
			_ = dev.UnmapBuffers(typ)
			return nil, device.DeviceError(nil, "%s buffer %d has %d planes, expected %d", typ, i, len(mem), planes)
		}
		q.buffers[i] = &Buffer{
			Index:     i,
			Planes:    mem,
			BytesUsed: make([]uint32, planes),
		}
	}

	q.logger.Debug("Buffer queue ready", "device", dev.Path(), "type", typ.String(), "depth", depth, "planes", planes)
	return q, nil
}

// Type returns the buffer type of the queue.
func (q *Queue) Type() device.BufferType { return q.typ }

// Depth returns the number of buffers.
func (q *Queue) Depth() int { return len(q.buffers) }

// State returns the streaming state.
func (q *Queue) State() State { return q.state }

// Counts returns how many buffers the driver and the user own.
// driver + user always equals Depth.
func (q *Queue) Counts() (driver, user int) {
	return q.driverOwned, len(q.buffers) - q.driverOwned
}

// Buffer returns buffer index. It is nil for an out-of-range index.
func (q *Queue) Buffer(index int) *Buffer {
	if index < 0 || index >= len(q.buffers) {
		return nil
	}
	return q.buffers[index]
}

// Enqueue hands a user-owned buffer to the driver. On failure ownership is
// unchanged.
func (q *Queue) Enqueue(index int) error {
	if q.state == Closed {
		return device.IOError(device.ErrClosed, "enqueue %s buffer %d", q.typ, index)
	}
	b := q.Buffer(index)
	if b == nil {
		return device.IOError(nil, "enqueue %s buffer %d: index out of range [0,%d)", q.typ, index, len(q.buffers))
	}
	if b.Owner != User {
		return device.IOError(nil, "enqueue %s buffer %d: owned by the driver", q.typ, index)
	}

	var used []uint32
	if q.typ.Direction == device.Input {
		used = b.BytesUsed
	}
	if err := q.dev.Queue(q.typ, index, used); err != nil {
		return device.IOError(err, "enqueue %s buffer %d on %s", q.typ, index, q.dev.Path())
	}
	b.Owner = Driver
	q.driverOwned++
	return nil
}

// EnqueueAll hands every user-owned buffer to the driver.
func (q *Queue) EnqueueAll() error {
	for _, b := range q.buffers {
		if b.Owner != User {
			continue
		}
		if err := q.Enqueue(b.Index); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue blocks until the driver completes a buffer and returns it, now
// owned by the user. It fails with ErrNoPendingWork when the driver owns
// no buffer.
func (q *Queue) Dequeue() (*Buffer, error) {
	if q.state == Closed {
		return nil, device.IOError(device.ErrClosed, "dequeue %s buffer", q.typ)
	}
	if q.driverOwned == 0 {
		return nil, ErrNoPendingWork
	}

	for {
		index, used, err := q.dev.Dequeue(q.typ)
		if errors.Is(err, device.ErrNotReady) {
			if err := q.dev.Wait(q.typ.Readiness(), q.waitTimeout); err != nil {
				return nil, device.IOError(err, "wait for %s buffer on %s", q.typ, q.dev.Path())
			}
			continue
		}
		if err != nil {
			return nil, device.IOError(err, "dequeue %s buffer on %s", q.typ, q.dev.Path())
		}

		b := q.Buffer(index)
		if b == nil || b.Owner != Driver {
			return nil, device.IOError(nil, "driver returned %s buffer %d it does not own", q.typ, index)
		}
		b.Owner = User
		q.driverOwned--
		for i := range b.BytesUsed {
			b.BytesUsed[i] = 0
			if i < len(used) {
				b.BytesUsed[i] = used[i]
			}
		}
		return b, nil
	}
}

// Start begins streaming.
func (q *Queue) Start() error {
	switch q.state {
	case Streaming:
		return nil
	case Closed:
		return device.IOError(device.ErrClosed, "start %s stream", q.typ)
	}
	if err := q.dev.StreamOn(q.typ); err != nil {
		return device.IOError(err, "start %s stream on %s", q.typ, q.dev.Path())
	}
	q.state = Streaming
	return nil
}

// Stop ends streaming. The driver drops every buffer it held, so all of
// them return to the user.
func (q *Queue) Stop() error {
	if q.state != Streaming {
		return nil
	}
	if err := q.dev.StreamOff(q.typ); err != nil {
		return device.IOError(err, "stop %s stream on %s", q.typ, q.dev.Path())
	}
	q.state = Idle
	q.reclaim()
	return nil
}

func (q *Queue) reclaim() {
	for _, b := range q.buffers {
		b.Owner = User
		clear(b.BytesUsed)
	}
	q.driverOwned = 0
}

// Close stops streaming if needed and releases the buffers.
func (q *Queue) Close() error {
	if q.state == Closed {
		return nil
	}
	stopErr := q.Stop()
	if stopErr != nil {
		// the device is unusable; treat its buffers as released
		q.reclaim()
	}
	unmapErr := q.dev.UnmapBuffers(q.typ)
	q.state = Closed
	for _, b := range q.buffers {
		b.Planes = nil
	}
	if unmapErr != nil {
		unmapErr = device.DeviceError(unmapErr, "unmap %s buffers on %s", q.typ, q.dev.Path())
	}
	return errors.Join(stopErr, unmapErr)
}

func (q *Queue) String() string {
	driver, user := q.Counts()
	return fmt.Sprintf("%s[%s depth=%d driver=%d user=%d]", q.typ, q.state, len(q.buffers), driver, user)
}
