//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
)

// IOCTL constants for 64-bit architectures.
const (
	vidiocSFmt     = 0xc0d05605
	vidiocQuerybuf = 0xc0585609
	vidiocQbuf     = 0xc058560f
	vidiocDqbuf    = 0xc0585611
)

// v4l2Format has size 208 bytes; the union is 8-byte aligned because
// v4l2_window carries pointers.
type v4l2Format struct {
	typ uint32    // offset 0
	_   uint32    // padding
	fmt [200]byte // offset 8
}

// v4l2Buffer has size 88 bytes.
type v4l2Buffer struct {
	index         uint32       // offset 0
	typ           uint32       // offset 4
	bytesused     uint32       // offset 8
	flags         uint32       // offset 12
	field         uint32       // offset 16
	_             uint32       // padding
	timestampSec  int64        // offset 24
	timestampUsec int64        // offset 32
	timecode      v4l2Timecode // offset 40
	sequence      uint32       // offset 56
	memory        uint32       // offset 60
	m             uint64       // offset 64 (offset / userptr / planes / fd)
	length        uint32       // offset 72
	reserved2     uint32       // offset 76
	requestFD     uint32       // offset 80
	_             uint32       // padding
}

func (b *v4l2Buffer) memOffset() uint32 { return uint32(b.m) }

func (b *v4l2Buffer) setPlanes(p *v4l2Plane) { b.m = uint64(uintptr(unsafe.Pointer(p))) }

// v4l2Plane has size 64 bytes.
type v4l2Plane struct {
	bytesused  uint32     // offset 0
	length     uint32     // offset 4
	m          uint64     // offset 8 (mem_offset / userptr / fd)
	dataOffset uint32     // offset 16
	reserved   [11]uint32 // offset 20
}

func (p *v4l2Plane) memOffset() uint32 { return uint32(p.m) }
