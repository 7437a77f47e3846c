//go:build linux && arm && !arm64

package v4l2

import "unsafe"

// Compile-time struct size assertions for 32-bit ARM.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [60]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
)

// IOCTL constants for 32-bit ARM. Only the structures that embed a pointer
// or a struct timeval differ from 64-bit.
const (
	vidiocSFmt     = 0xc0cc5605
	vidiocQuerybuf = 0xc0445609
	vidiocQbuf     = 0xc044560f
	vidiocDqbuf    = 0xc0445611
)

// v4l2Format has size 204 bytes on 32-bit.
type v4l2Format struct {
	typ uint32    // offset 0
	fmt [200]byte // offset 4
}

// v4l2Buffer has size 68 bytes on 32-bit.
type v4l2Buffer struct {
	index         uint32       // offset 0
	typ           uint32       // offset 4
	bytesused     uint32       // offset 8
	flags         uint32       // offset 12
	field         uint32       // offset 16
	timestampSec  int32        // offset 20
	timestampUsec int32        // offset 24
	timecode      v4l2Timecode // offset 28
	sequence      uint32       // offset 44
	memory        uint32       // offset 48
	m             uint32       // offset 52 (offset / userptr / planes / fd)
	length        uint32       // offset 56
	reserved2     uint32       // offset 60
	requestFD     uint32       // offset 64
}

func (b *v4l2Buffer) memOffset() uint32 { return b.m }

func (b *v4l2Buffer) setPlanes(p *v4l2Plane) { b.m = uint32(uintptr(unsafe.Pointer(p))) }

// v4l2Plane has size 60 bytes on 32-bit.
type v4l2Plane struct {
	bytesused  uint32     // offset 0
	length     uint32     // offset 4
	m          uint32     // offset 8 (mem_offset / userptr / fd)
	dataOffset uint32     // offset 12
	reserved   [11]uint32 // offset 16
}

func (p *v4l2Plane) memOffset() uint32 { return p.m }
