//go:build linux

package v4l2

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open V4L2 node used for memory-mapped streaming I/O.
// A Device is not safe for concurrent use.
type Device struct {
	path string
	fd   int

	// scratch plane array handed to the kernel by multi-planar buffer ioctls
	planes [videoMaxPlanes]v4l2Plane
}

// Open opens the node at path in non-blocking mode.
func Open(path string) (*Device, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Fd returns the underlying file descriptor.
func (d *Device) Fd() int { return d.fd }

// Close releases the file descriptor. It is safe to call more than once.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := close(d.fd)
	d.fd = -1
	return err
}

// QueryCapability runs VIDIOC_QUERYCAP.
func (d *Device) QueryCapability() (Capability, error) {
	return queryCapabilityFd(d.fd)
}

// SetFormat requests want on the queue and returns what the driver
// actually chose.
func (d *Device) SetFormat(bufType uint32, want PixFormat) (PixFormat, error) {
	f := v4l2Format{typ: bufType}
	if IsMultiPlanar(bufType) {
		mp := f.pixMp()
		mp.width = want.Width
		mp.height = want.Height
		mp.pixelformat = want.PixelFormat
		mp.field = fieldNone
		n := want.NumPlanes
		if n == 0 {
			n = 1
		}
		if n > videoMaxPlanes {
			return PixFormat{}, fmt.Errorf("set format: %d planes exceeds %d", n, videoMaxPlanes)
		}
		mp.numPlanes = uint8(n)
		for i := range n {
			if int(i) < len(want.PlaneSizes) {
				mp.planeFmt[i].sizeimage = want.PlaneSizes[i]
			}
		}
	} else {
		p := f.pix()
		p.width = want.Width
		p.height = want.Height
		p.pixelformat = want.PixelFormat
		p.field = fieldNone
		p.bytesperline = want.BytesPerLine
		if len(want.PlaneSizes) > 0 {
			p.sizeimage = want.PlaneSizes[0]
		}
	}

	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_S_FMT: %w", err)
	}
	return decodeFormat(&f), nil
}

func decodeFormat(f *v4l2Format) PixFormat {
	if IsMultiPlanar(f.typ) {
		mp := f.pixMp()
		n := min(uint32(mp.numPlanes), videoMaxPlanes)
		out := PixFormat{
			Width:       mp.width,
			Height:      mp.height,
			PixelFormat: mp.pixelformat,
			Field:       mp.field,
			NumPlanes:   n,
			PlaneSizes:  make([]uint32, n),
		}
		if n > 0 {
			out.BytesPerLine = mp.planeFmt[0].bytesperline
		}
		for i := range n {
			out.PlaneSizes[i] = mp.planeFmt[i].sizeimage
		}
		return out
	}
	p := f.pix()
	return PixFormat{
		Width:        p.width,
		Height:       p.height,
		PixelFormat:  p.pixelformat,
		Field:        p.field,
		BytesPerLine: p.bytesperline,
		NumPlanes:    1,
		PlaneSizes:   []uint32{p.sizeimage},
	}
}

// SetFrameRate sets the time per frame of the queue to 1/fps and returns
// the rate the driver settled on. Drivers without frame interval support
// leave the rate unchanged; the returned value is then 0.
func (d *Device) SetFrameRate(bufType, fps uint32) (uint32, error) {
	if fps == 0 {
		return 0, fmt.Errorf("set frame rate: fps must be positive")
	}
	parm := v4l2Streamparm{typ: bufType}
	parm.parm.timeperframe = v4l2Fract{numerator: 1, denominator: fps}
	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		return 0, fmt.Errorf("VIDIOC_S_PARM: %w", err)
	}
	if parm.parm.capability&capTimePerFrame == 0 || parm.parm.timeperframe.numerator == 0 {
		return 0, nil
	}
	return parm.parm.timeperframe.denominator / parm.parm.timeperframe.numerator, nil
}

// RequestBuffers asks the driver for count memory-mapped buffers and returns
// the number it allocated. A count of zero releases every buffer.
func (d *Device) RequestBuffers(bufType, count uint32) (uint32, error) {
	req := v4l2Requestbuffers{
		count:  count,
		typ:    bufType,
		memory: memoryMMAP,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("VIDIOC_REQBUFS: %w", err)
	}
	return req.count, nil
}

// QueryBuffer returns the mmap offset and length of every plane of buffer index.
func (d *Device) QueryBuffer(bufType, index, numPlanes uint32) ([]PlaneInfo, error) {
	buf := v4l2Buffer{
		index:  index,
		typ:    bufType,
		memory: memoryMMAP,
	}
	mplane := d.attachPlanes(&buf, numPlanes)

	err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(d)
	if err != nil {
		return nil, fmt.Errorf("VIDIOC_QUERYBUF %d: %w", index, err)
	}

	if !mplane {
		return []PlaneInfo{{Offset: buf.memOffset(), Length: buf.length}}, nil
	}
	infos := make([]PlaneInfo, min(buf.length, videoMaxPlanes))
	for i := range infos {
		infos[i] = PlaneInfo{Offset: d.planes[i].memOffset(), Length: d.planes[i].length}
	}
	return infos, nil
}

// Map maps one plane returned by QueryBuffer into the process.
func (d *Device) Map(p PlaneInfo) ([]byte, error) {
	mem, err := unix.Mmap(d.fd, int64(p.Offset), int(p.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap offset %d: %w", p.Offset, err)
	}
	return mem, nil
}

// Unmap releases memory returned by Map.
func Unmap(mem []byte) error {
	return unix.Munmap(mem)
}

// QueueBuffer hands buffer index to the driver. For output queues bytesUsed
// carries the payload size of each plane; capture queues ignore it.
func (d *Device) QueueBuffer(bufType, index uint32, bytesUsed []uint32) error {
	n := uint32(len(bytesUsed))
	if n == 0 {
		n = 1
	}
	buf := v4l2Buffer{
		index:  index,
		typ:    bufType,
		memory: memoryMMAP,
		field:  fieldNone,
	}
	if d.attachPlanes(&buf, n) {
		for i, used := range bytesUsed {
			d.planes[i].bytesused = used
		}
	} else if len(bytesUsed) > 0 {
		buf.bytesused = bytesUsed[0]
	}

	err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(d)
	if err != nil {
		return fmt.Errorf("VIDIOC_QBUF %d: %w", index, err)
	}
	return nil
}

// DequeueBuffer takes a finished buffer back from the driver. It returns
// ErrWouldBlock when no buffer is ready.
func (d *Device) DequeueBuffer(bufType, numPlanes uint32) (uint32, []uint32, error) {
	buf := v4l2Buffer{
		typ:    bufType,
		memory: memoryMMAP,
	}
	mplane := d.attachPlanes(&buf, numPlanes)

	err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(d)
	if err != nil {
		return 0, nil, err
	}

	if !mplane {
		return buf.index, []uint32{buf.bytesused}, nil
	}
	used := make([]uint32, min(buf.length, videoMaxPlanes))
	for i := range used {
		used[i] = d.planes[i].bytesused
	}
	return buf.index, used, nil
}

// attachPlanes points a multi-planar buffer at the device scratch array.
func (d *Device) attachPlanes(buf *v4l2Buffer, numPlanes uint32) bool {
	if !IsMultiPlanar(buf.typ) {
		return false
	}
	numPlanes = max(1, min(numPlanes, videoMaxPlanes))
	d.planes = [videoMaxPlanes]v4l2Plane{}
	buf.length = numPlanes
	buf.setPlanes(&d.planes[0])
	return true
}

// StreamOn starts streaming on the queue.
func (d *Device) StreamOn(bufType uint32) error {
	typ := bufType
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}
	return nil
}

// StreamOff stops streaming on the queue. The driver returns every queued
// buffer to the application.
func (d *Device) StreamOff(bufType uint32) error {
	typ := bufType
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}
	return nil
}

// Poll waits for events on the device. A zero timeout waits forever.
// It returns the reported events, or 0 when the timeout expired.
func (d *Device) Poll(events int16, timeout time.Duration) (int16, error) {
	return poll(d.fd, events, timeout)
}
