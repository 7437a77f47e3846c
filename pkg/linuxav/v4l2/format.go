//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GetQueueFormats returns all pixel formats the given queue of a device accepts.
func GetQueueFormats(devicePath string, bufType uint32) ([]FormatInfo, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{
			index: i,
			typ:   bufType,
		}

		if ioctlErr := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&desc)); ioctlErr != nil {
			if errors.Is(ioctlErr, unix.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, ioctlErr)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: desc.pixelformat,
			FormatName:  cstr(desc.description[:]),
			Emulated:    desc.flags&fmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// GetResolutions returns all supported resolutions for a device and pixel format.
func GetResolutions(devicePath string, pixelFormat uint32) ([]Resolution, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	var resolutions []Resolution

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if ioctlErr := ioctl(fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); ioctlErr != nil {
			if errors.Is(ioctlErr, unix.EINVAL) {
				break // End of enumeration
			}
			// ENOTTY means device doesn't support frame size enumeration
			if errors.Is(ioctlErr, unix.ENOTTY) {
				return []Resolution{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, ioctlErr)
		}

		switch frmsize.typ {
		case frmsizeTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case frmsizeTypeContinuous, frmsizeTypeStepwise:
			resolutions = append(resolutions, stepwiseResolutions(&frmsize)...)
			return resolutions, nil // Only one stepwise entry
		}
	}

	return resolutions, nil
}

// GetFramerates returns all supported framerates for a device, format, and resolution.
func GetFramerates(devicePath string, pixelFormat uint32, width, height uint32) ([]Framerate, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer close(fd)

	var framerates []Framerate

	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: pixelFormat,
			width:       width,
			height:      height,
		}

		if ioctlErr := ioctl(fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); ioctlErr != nil {
			if errors.Is(ioctlErr, unix.EINVAL) || errors.Is(ioctlErr, unix.ENOTTY) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate frame interval %d: %w", i, ioctlErr)
		}

		switch frmival.typ {
		case frmivalTypeDiscrete:
			framerates = append(framerates, Framerate{
				Numerator:   frmival.discrete.numerator,
				Denominator: frmival.discrete.denominator,
			})
		case frmivalTypeContinuous, frmivalTypeStepwise:
			framerates = append(framerates, commonFramerates()...)
			return framerates, nil
		}
	}

	return framerates, nil
}

// stepwiseResolutions returns common resolutions within a stepwise range.
func stepwiseResolutions(frmsize *v4l2Frmsizeenum) []Resolution {
	common := [][2]uint32{
		{320, 240},  // QVGA
		{640, 480},  // VGA
		{800, 600},  // SVGA
		{1024, 768}, // XGA
		{1280, 720}, // HD
		{1280, 960},
		{1280, 1024}, // SXGA
		{1920, 1080}, // Full HD
		{1920, 1200}, // WUXGA
		{2560, 1440}, // QHD
		{3840, 2160}, // 4K UHD
		{4096, 2160}, // 4K DCI
	}

	// stepwise overlays discrete in the union
	stepwise := (*v4l2FrmsizeStepwise)(unsafe.Pointer(&frmsize.discrete))

	var resolutions []Resolution
	for _, res := range common {
		w, h := res[0], res[1]
		if w >= stepwise.minWidth && w <= stepwise.maxWidth &&
			h >= stepwise.minHeight && h <= stepwise.maxHeight {
			resolutions = append(resolutions, Resolution{Width: w, Height: h})
		}
	}

	return resolutions
}

func commonFramerates() []Framerate {
	return []Framerate{
		{1, 60},
		{1, 50},
		{1, 30},
		{1, 25},
		{1, 20},
		{1, 15},
		{1, 10},
		{1, 5},
	}
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	return string([]byte{
		byte(format),
		byte(format >> 8),
		byte(format >> 16),
		byte(format >> 24),
	})
}

// ParseFourCC is the inverse of FormatFourCC. Codes shorter than four
// characters are padded with spaces.
func ParseFourCC(code string) (uint32, error) {
	if len(code) == 0 || len(code) > 4 {
		return 0, fmt.Errorf("invalid fourcc %q", code)
	}
	var b [4]byte
	copy(b[:], "    ")
	copy(b[:], code)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
