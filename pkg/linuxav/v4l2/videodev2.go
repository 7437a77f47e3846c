//go:build linux

package v4l2

import "unsafe"

// Structures whose layout is identical on every supported architecture.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2FrmsizeDiscrete{})]byte{}
	_ [24]byte  = [unsafe.Sizeof(v4l2FrmsizeStepwise{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Fract{})]byte{}
	_ [52]byte  = [unsafe.Sizeof(v4l2Frmivalenum{})]byte{}
	_ [124]byte = [unsafe.Sizeof(v4l2BTTimings{})]byte{}
	_ [132]byte = [unsafe.Sizeof(v4l2DVTimings{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2PlanePixFormat{})]byte{}
	_ [192]byte = [unsafe.Sizeof(v4l2PixFormatMplane{})]byte{}
	_ [40]byte  = [unsafe.Sizeof(v4l2Captureparm{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Streamparm{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2Requestbuffers{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(v4l2Timecode{})]byte{}
)

// IOCTL constants that do not depend on pointer or time_t size.
const (
	vidiocQuerycap           = 0x80685600
	vidiocEnumFmt            = 0xc0405602
	vidiocReqbufs            = 0xc0145608
	vidiocStreamon           = 0x40045612
	vidiocStreamoff          = 0x40045613
	vidiocGParm              = 0xc0cc5615
	vidiocSParm              = 0xc0cc5616
	vidiocEnumFramesizes     = 0xc02c564a
	vidiocEnumFrameintervals = 0xc034564b
	vidiocGDVTimings         = 0xc0845658
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// v4l2Fmtdesc has size 64 bytes.
type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

// v4l2FrmsizeDiscrete has size 8 bytes.
type v4l2FrmsizeDiscrete struct {
	width  uint32
	height uint32
}

// v4l2FrmsizeStepwise has size 24 bytes.
type v4l2FrmsizeStepwise struct {
	minWidth   uint32
	maxWidth   uint32
	stepWidth  uint32
	minHeight  uint32
	maxHeight  uint32
	stepHeight uint32
}

// v4l2Frmsizeenum has size 44 bytes.
type v4l2Frmsizeenum struct {
	index       uint32              // offset 0
	pixelFormat uint32              // offset 4
	typ         uint32              // offset 8
	discrete    v4l2FrmsizeDiscrete // offset 12 (union with stepwise)
	_           [16]byte            // padding for stepwise
	reserved    [2]uint32           // offset 36
}

// v4l2Fract has size 8 bytes.
type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2Frmivalenum has size 52 bytes.
type v4l2Frmivalenum struct {
	index       uint32    // offset 0
	pixelFormat uint32    // offset 4
	width       uint32    // offset 8
	height      uint32    // offset 12
	typ         uint32    // offset 16
	discrete    v4l2Fract // offset 20 (union with stepwise)
	_           [16]byte  // padding for stepwise
	reserved    [2]uint32 // offset 44
}

// v4l2BTTimings is packed in the kernel (124 bytes). The 64-bit pixel clock
// sits at offset 16 and is split into two words so the Go struct keeps
// 4-byte alignment and embeds at offset 4 of v4l2DVTimings.
type v4l2BTTimings struct {
	width         uint32    // offset 0
	height        uint32    // offset 4
	interlaced    uint32    // offset 8
	polarities    uint32    // offset 12
	pixelclockLo  uint32    // offset 16
	pixelclockHi  uint32    // offset 20
	hfrontporch   uint32    // offset 24
	hsync         uint32    // offset 28
	hbackporch    uint32    // offset 32
	vfrontporch   uint32    // offset 36
	vsync         uint32    // offset 40
	vbackporch    uint32    // offset 44
	ilVfrontporch uint32    // offset 48
	ilVsync       uint32    // offset 52
	ilVbackporch  uint32    // offset 56
	standards     uint32    // offset 60
	flags         uint32    // offset 64
	pictureAspect v4l2Fract // offset 68
	cea861Vic     uint8     // offset 76
	hdmiVic       uint8     // offset 77
	reserved      [46]byte  // offset 78 to 124
}

func (bt *v4l2BTTimings) pixelclock() uint64 {
	return uint64(bt.pixelclockHi)<<32 | uint64(bt.pixelclockLo)
}

// v4l2DVTimings has size 132 bytes.
type v4l2DVTimings struct {
	typ uint32        // offset 0
	bt  v4l2BTTimings // offset 4
	_   [4]byte       // union is 128 bytes
}

// v4l2PixFormat has size 48 bytes.
type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// v4l2PlanePixFormat has size 20 bytes.
type v4l2PlanePixFormat struct {
	sizeimage    uint32
	bytesperline uint32
	reserved     [6]uint16
}

// v4l2PixFormatMplane has size 192 bytes.
type v4l2PixFormatMplane struct {
	width        uint32                             // offset 0
	height       uint32                             // offset 4
	pixelformat  uint32                             // offset 8
	field        uint32                             // offset 12
	colorspace   uint32                             // offset 16
	planeFmt     [videoMaxPlanes]v4l2PlanePixFormat // offset 20
	numPlanes    uint8                              // offset 180
	flags        uint8
	ycbcrEnc     uint8
	quantization uint8
	xferFunc     uint8
	reserved     [7]uint8
}

// v4l2Captureparm has size 40 bytes. v4l2_outputparm shares the layout.
type v4l2Captureparm struct {
	capability   uint32    // offset 0
	mode         uint32    // offset 4
	timeperframe v4l2Fract // offset 8
	extendedmode uint32    // offset 16
	buffers      uint32    // offset 20
	reserved     [4]uint32 // offset 24
}

// v4l2Streamparm has size 204 bytes.
type v4l2Streamparm struct {
	typ  uint32          // offset 0
	parm v4l2Captureparm // offset 4 (union, raw_data[200])
	_    [160]byte
}

// v4l2Requestbuffers has size 20 bytes.
type v4l2Requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2Timecode has size 16 bytes.
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

func (f *v4l2Format) pix() *v4l2PixFormat {
	return (*v4l2PixFormat)(unsafe.Pointer(&f.fmt[0]))
}

func (f *v4l2Format) pixMp() *v4l2PixFormatMplane {
	return (*v4l2PixFormatMplane)(unsafe.Pointer(&f.fmt[0]))
}
