// Package device defines the boundary between the capture core and a V4L2
// node: buffer types, formats, capabilities and the Device interface. The
// linux implementation drives real hardware through pkg/linuxav/v4l2; the
// fakedev package provides a software double.
package device

import (
	"fmt"
	"time"
)

// Direction is the data flow of a queue as seen from the application.
type Direction int

const (
	// Input carries data from the application to the driver (V4L2 OUTPUT queue).
	Input Direction = iota
	// Output carries data from the driver to the application (V4L2 CAPTURE queue).
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// BufferType selects one queue of a device.
type BufferType struct {
	Direction   Direction
	MultiPlanar bool
}

// Common buffer types.
var (
	VideoCapture       = BufferType{Direction: Output}
	VideoCaptureMPlane = BufferType{Direction: Output, MultiPlanar: true}
	VideoOutput        = BufferType{Direction: Input}
	VideoOutputMPlane  = BufferType{Direction: Input, MultiPlanar: true}
)

// V4L2 returns the kernel buffer type value.
func (t BufferType) V4L2() uint32 {
	switch {
	case t.Direction == Output && !t.MultiPlanar:
		return 1
	case t.Direction == Input && !t.MultiPlanar:
		return 2
	case t.Direction == Output:
		return 9
	default:
		return 10
	}
}

// Readiness returns the readiness event that signals a completed buffer on this queue.
func (t BufferType) Readiness() Readiness {
	if t.Direction == Output {
		return Readable
	}
	return Writable
}

func (t BufferType) String() string {
	s := t.Direction.String()
	if t.MultiPlanar {
		s += "-mplane"
	}
	return s
}

// FourCC is a four character pixel format code.
type FourCC uint32

// Pixel formats used by the capture pipeline.
const (
	FourCCYUYV FourCC = 0x56595559
	FourCCNV12 FourCC = 0x3231564E
	FourCCYU12 FourCC = 0x32315559
	FourCCH264 FourCC = 0x34363248
	FourCCHEVC FourCC = 0x43564548
	FourCCMJPG FourCC = 0x47504A4D
)

// ParseFourCC converts a code such as "YUYV" to its FourCC. Codes shorter
// than four characters are padded with spaces.
func ParseFourCC(code string) (FourCC, error) {
	if len(code) == 0 || len(code) > 4 {
		return 0, fmt.Errorf("invalid fourcc %q: need 1 to 4 characters", code)
	}
	b := [4]byte{' ', ' ', ' ', ' '}
	copy(b[:], code)
	return FourCC(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24), nil
}

func (f FourCC) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// Format is the image format of one queue.
type Format struct {
	Width       uint32
	Height      uint32
	PixelFormat FourCC
	// Planes is the number of memory planes per buffer; 0 is treated as 1.
	Planes int
	// SizeImage is the buffer size over all planes. Zero lets the driver choose.
	SizeImage uint32
}

// PlaneCount returns Planes, at least 1.
func (f Format) PlaneCount() int {
	return max(f.Planes, 1)
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.PixelFormat)
}

// Capability is the set of features a device reports.
type Capability uint32

// Capability flags. Values match the kernel's device_caps bits.
const (
	CapVideoCapture       Capability = 0x00000001
	CapVideoOutput        Capability = 0x00000002
	CapVideoCaptureMPlane Capability = 0x00001000
	CapVideoOutputMPlane  Capability = 0x00002000
	CapVideoM2MMPlane     Capability = 0x00004000
	CapVideoM2M           Capability = 0x00008000
	CapStreaming          Capability = 0x04000000
)

// Has reports whether every flag in flags is set.
func (c Capability) Has(flags Capability) bool {
	return c&flags == flags
}

// HasAny reports whether at least one flag in flags is set.
func (c Capability) HasAny(flags Capability) bool {
	return c&flags != 0
}

// Readiness is a device readiness condition.
type Readiness int

const (
	// Readable means an Output-direction buffer has been completed.
	Readable Readiness = iota
	// Writable means an Input-direction buffer has been consumed.
	Writable
)

func (r Readiness) String() string {
	if r == Readable {
		return "readable"
	}
	return "writable"
}

// State is the lifecycle state of a device.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// Device is an open video node. Implementations are not safe for
// concurrent use.
type Device interface {
	Index() int
	Path() string
	State() State
	Capabilities() (Capability, error)

	// SetFormat applies f to the queue and returns the format the driver chose.
	SetFormat(t BufferType, f Format) (Format, error)
	// SetFrameRate requests fps on the queue and returns the applied rate,
	// or 0 when the driver does not report one.
	SetFrameRate(t BufferType, fps uint32) (uint32, error)

	// RequestBuffers allocates count buffers and returns the granted count.
	RequestBuffers(t BufferType, count int) (int, error)
	// MapBuffer returns the memory of buffer index, one slice per plane.
	MapBuffer(t BufferType, index int) ([][]byte, error)
	// UnmapBuffers releases every mapping and the driver allocation of the queue.
	UnmapBuffers(t BufferType) error

	Queue(t BufferType, index int, bytesUsed []uint32) error
	// Dequeue returns a completed buffer without blocking, or ErrNotReady.
	Dequeue(t BufferType) (index int, bytesUsed []uint32, err error)
	// Wait blocks until the device reports r. A zero timeout waits forever;
	// otherwise ErrTimeout is returned on expiry.
	Wait(r Readiness, timeout time.Duration) error

	StreamOn(t BufferType) error
	StreamOff(t BufferType) error
	Close() error
}

// NodePath returns the node path of the video device with the given index.
func NodePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}
