//go:build linux

package api

import (
	"errors"
	"fmt"

	"github.com/smazurov/v4l2cast/internal/api/models"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/pkg/linuxav/v4l2"
)

// hostDevices reads the V4L2 nodes of this host.
type hostDevices struct{}

func (hostDevices) List() ([]models.DeviceInfo, error) {
	found, err := v4l2.FindDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}

	devices := make([]models.DeviceInfo, 0, len(found))
	for _, d := range found {
		kind := deviceKind(d.Caps)
		status := v4l2.GetDeviceStatus(d.DevicePath)
		if kind == "camera" && status.DeviceType == v4l2.DeviceTypeHDMI {
			kind = "hdmi"
		}
		devices = append(devices, models.DeviceInfo{
			DevicePath:   d.DevicePath,
			DeviceName:   d.DeviceName,
			DeviceID:     d.DeviceID,
			Driver:       d.Driver,
			Kind:         kind,
			Ready:        status.Ready,
			Caps:         d.Caps,
			Capabilities: translateCapabilities(d.Caps),
		})
	}
	return devices, nil
}

func (hostDevices) PathByID(deviceID string) (string, error) {
	path, err := v4l2.GetDevicePathByID(deviceID)
	if errors.Is(err, v4l2.ErrDeviceNotFound) {
		return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return path, err
}

// queueTypes returns the buffer types worth enumerating for a node, capture
// queues first.
func queueTypes(caps device.Capability) []uint32 {
	switch {
	case caps.HasAny(device.CapVideoM2MMPlane):
		return []uint32{v4l2.BufTypeVideoCaptureMPlane, v4l2.BufTypeVideoOutputMPlane}
	case caps.HasAny(device.CapVideoM2M):
		return []uint32{v4l2.BufTypeVideoCapture, v4l2.BufTypeVideoOutput}
	case caps.HasAny(device.CapVideoCaptureMPlane):
		return []uint32{v4l2.BufTypeVideoCaptureMPlane}
	default:
		return []uint32{v4l2.BufTypeVideoCapture}
	}
}

func (hostDevices) Formats(devicePath string) ([]models.FormatInfo, error) {
	caps, err := v4l2.QueryCapability(devicePath)
	if err != nil {
		return nil, err
	}

	formats := []models.FormatInfo{}
	for _, typ := range queueTypes(device.Capability(caps.Caps)) {
		queue := "capture"
		if v4l2.IsOutput(typ) {
			queue = "output"
		}
		found, err := v4l2.GetQueueFormats(devicePath, typ)
		if err != nil {
			return nil, fmt.Errorf("%s queue: %w", queue, err)
		}
		for _, f := range found {
			formats = append(formats, models.FormatInfo{
				FourCC:      v4l2.FormatFourCC(f.PixelFormat),
				Description: f.FormatName,
				Queue:       queue,
				Emulated:    f.Emulated,
			})
		}
	}
	return formats, nil
}

func (hostDevices) Resolutions(devicePath string, fourcc device.FourCC) ([]models.Resolution, error) {
	found, err := v4l2.GetResolutions(devicePath, uint32(fourcc))
	if err != nil {
		return nil, err
	}
	resolutions := make([]models.Resolution, len(found))
	for i, r := range found {
		resolutions[i] = models.Resolution{Width: r.Width, Height: r.Height}
	}
	return resolutions, nil
}

func (hostDevices) Framerates(devicePath string, fourcc device.FourCC, width, height uint32) ([]models.Framerate, error) {
	found, err := v4l2.GetFramerates(devicePath, uint32(fourcc), width, height)
	if err != nil {
		return nil, err
	}
	framerates := make([]models.Framerate, len(found))
	for i, r := range found {
		framerates[i] = models.Framerate{
			Numerator:   r.Numerator,
			Denominator: r.Denominator,
			Fps:         r.FPS(),
		}
	}
	return framerates, nil
}

var signalStates = map[v4l2.SignalState]string{
	v4l2.SignalStateNoDevice:     "no_device",
	v4l2.SignalStateNoLink:       "no_link",
	v4l2.SignalStateNoSignal:     "no_signal",
	v4l2.SignalStateUnstable:     "unstable",
	v4l2.SignalStateLocked:       "locked",
	v4l2.SignalStateOutOfRange:   "out_of_range",
	v4l2.SignalStateNotSupported: "not_supported",
}

func (hostDevices) Signal(devicePath string) (models.SignalData, error) {
	st := v4l2.GetDVTimings(devicePath)
	if st.State == v4l2.SignalStateNoDevice {
		return models.SignalData{}, fmt.Errorf("open %s failed", devicePath)
	}
	return models.SignalData{
		State:      signalStates[st.State],
		Width:      st.Width,
		Height:     st.Height,
		FPS:        st.FPS,
		Interlaced: st.Interlaced,
	}, nil
}
