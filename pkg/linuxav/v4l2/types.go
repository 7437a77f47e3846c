//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Driver     string
	Caps       uint32
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Framerate represents a supported framerate as a fraction.
type Framerate struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the framerate as frames per second.
func (f Framerate) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// Capability is the result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version uint32
	// Caps holds the device capabilities when the driver reports them,
	// otherwise the capabilities of the physical device as a whole.
	Caps uint32
}

// Has reports whether every bit of flags is set.
func (c Capability) Has(flags uint32) bool {
	return c.Caps&flags == flags
}

// PixFormat is a negotiated image format for either the single-planar or
// the multi-planar API. PlaneSizes has one entry per plane.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	NumPlanes    uint32
	PlaneSizes   []uint32
}

// SizeImage returns the total buffer size over all planes.
func (p PixFormat) SizeImage() uint32 {
	var total uint32
	for _, s := range p.PlaneSizes {
		total += s
	}
	return total
}

// PlaneInfo describes the memory of one plane of a driver buffer.
type PlaneInfo struct {
	Offset uint32
	Length uint32
}

// DeviceType represents the type of V4L2 device.
type DeviceType int

// Device types.
const (
	DeviceTypeWebcam  DeviceType = 0
	DeviceTypeHDMI    DeviceType = 1
	DeviceTypeM2M     DeviceType = 2
	DeviceTypeUnknown DeviceType = -1
)

// SignalState represents the state of a video signal.
type SignalState int

// Signal states.
const (
	SignalStateNoDevice     SignalState = -1
	SignalStateNoLink       SignalState = 0 // No cable connected
	SignalStateNoSignal     SignalState = 1 // Cable connected, no signal
	SignalStateUnstable     SignalState = 2 // Signal present but unstable
	SignalStateLocked       SignalState = 3 // Signal locked and stable
	SignalStateOutOfRange   SignalState = 4 // Signal out of supported range
	SignalStateNotSupported SignalState = 5 // Device doesn't support DV timings
)

// SignalStatus contains detailed signal information.
type SignalStatus struct {
	State      SignalState
	Width      uint32
	Height     uint32
	FPS        float64
	Interlaced bool
}

// DeviceStatus contains combined device type and ready status.
type DeviceStatus struct {
	DeviceType DeviceType
	Ready      bool
}

// Capability flags.
const (
	CapVideoCapture       = 0x00000001
	CapVideoOutput        = 0x00000002
	CapVideoCaptureMPlane = 0x00001000
	CapVideoOutputMPlane  = 0x00002000
	CapVideoM2MMPlane     = 0x00004000
	CapVideoM2M           = 0x00008000
	CapStreaming          = 0x04000000
	CapDeviceCaps         = 0x80000000
)

// Format flags.
const (
	fmtFlagEmulated = 0x0002
)

// Common pixel formats.
const (
	PixFmtYUYV  = 0x56595559 // 'YUYV'
	PixFmtMJPEG = 0x47504A4D // 'MJPG'
	PixFmtH264  = 0x34363248 // 'H264'
	PixFmtHEVC  = 0x43564548 // 'HEVC'
	PixFmtNV12  = 0x3231564E // 'NV12'
	PixFmtYU12  = 0x32315559 // 'YU12'
)

// Frame size types.
const (
	frmsizeTypeDiscrete   = 1
	frmsizeTypeContinuous = 2
	frmsizeTypeStepwise   = 3
)

// Frame interval types.
const (
	frmivalTypeDiscrete   = 1
	frmivalTypeContinuous = 2
	frmivalTypeStepwise   = 3
)

// Buffer types.
const (
	BufTypeVideoCapture       = 1
	BufTypeVideoOutput        = 2
	BufTypeVideoCaptureMPlane = 9
	BufTypeVideoOutputMPlane  = 10
)

// IsMultiPlanar reports whether bufType uses the multi-planar API.
func IsMultiPlanar(bufType uint32) bool {
	return bufType == BufTypeVideoCaptureMPlane || bufType == BufTypeVideoOutputMPlane
}

// IsOutput reports whether bufType carries data from the application to the driver.
func IsOutput(bufType uint32) bool {
	return bufType == BufTypeVideoOutput || bufType == BufTypeVideoOutputMPlane
}

const (
	memoryMMAP = 1
	fieldNone  = 1

	capTimePerFrame = 0x1000

	videoMaxPlanes = 8
)
