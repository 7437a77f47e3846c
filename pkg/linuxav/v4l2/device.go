//go:build linux

package v4l2

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

const sysfsVideo = "/sys/class/video4linux"

// ErrDeviceNotFound is returned when no node has the requested stable ID.
var ErrDeviceNotFound = errors.New("device not found")

// streamingCaps lists the capability bits of nodes that can stream video in
// either direction.
const streamingCaps = CapVideoCapture | CapVideoCaptureMPlane | CapVideoOutput |
	CapVideoOutputMPlane | CapVideoM2M | CapVideoM2MMPlane

// FindDevices finds all V4L2 video nodes on the system that can capture
// or encode video. Metadata-only nodes are skipped.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsVideo)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	logger := slog.With("component", "linuxav")
	var devices []DeviceInfo

	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		caps, err := QueryCapability(devicePath)
		if err != nil {
			logger.Debug("failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}
		if caps.Caps&streamingCaps == 0 {
			continue
		}

		indexValue := readSysfsInt(filepath.Join(sysfsVideo, entry.Name(), "index"))

		stableID := findStableID(entry.Name(), indexValue)
		if stableID == "" {
			if strings.HasPrefix(caps.BusInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", caps.BusInfo, indexValue)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", caps.BusInfo, indexValue)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: caps.Card,
			DeviceID:   stableID,
			Driver:     caps.Driver,
			Caps:       caps.Caps,
		})
	}

	return devices, nil
}

// GetDevicePathByID finds the device path for a given stable device ID.
func GetDevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", fmt.Errorf("failed to find devices: %w", err)
	}

	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	byIDDir := "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// QueryCapability opens devicePath just long enough to run VIDIOC_QUERYCAP.
func QueryCapability(devicePath string) (Capability, error) {
	fd, err := open(devicePath)
	if err != nil {
		return Capability{}, err
	}
	defer close(fd)
	return queryCapabilityFd(fd)
}

func queryCapabilityFd(fd int) (Capability, error) {
	raw := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, err
	}

	caps := raw.capabilities
	if caps&CapDeviceCaps != 0 {
		caps = raw.deviceCaps
	}

	return Capability{
		Driver:  cstr(raw.driver[:]),
		Card:    cstr(raw.card[:]),
		BusInfo: cstr(raw.busInfo[:]),
		Version: raw.version,
		Caps:    caps,
	}, nil
}
