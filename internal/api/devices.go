package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/v4l2cast/internal/api/models"
	"github.com/smazurov/v4l2cast/internal/device"
)

// ErrDeviceNotFound is returned by a DeviceSource for an unknown device ID.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceSource enumerates video nodes and what they accept.
type DeviceSource interface {
	List() ([]models.DeviceInfo, error)
	PathByID(deviceID string) (string, error)
	Formats(devicePath string) ([]models.FormatInfo, error)
	Resolutions(devicePath string, fourcc device.FourCC) ([]models.Resolution, error)
	Framerates(devicePath string, fourcc device.FourCC, width, height uint32) ([]models.Framerate, error)
	Signal(devicePath string) (models.SignalData, error)
}

// HostDevices returns the DeviceSource reading this host's V4L2 nodes.
func HostDevices() DeviceSource { return hostDevices{} }

// Device path parameter input
type DevicePathInput struct {
	DeviceID string `path:"device_id" example:"usb-0000:00:14.0-1" doc:"Stable device identifier"`
}

// Device format query input
type DeviceFormatInput struct {
	DevicePathInput
	FourCC string `query:"fourcc" minLength:"1" maxLength:"4" example:"YUYV" doc:"Four character pixel format code"`
}

// Device resolution query input
type DeviceResolutionInput struct {
	DeviceFormatInput
	Width  string `query:"width" example:"1920" doc:"Video width in pixels"`
	Height string `query:"height" example:"1080" doc:"Video height in pixels"`
}

var capabilityNames = []struct {
	flag device.Capability
	name string
}{
	{device.CapVideoCapture, "Video Capture"},
	{device.CapVideoOutput, "Video Output"},
	{device.CapVideoCaptureMPlane, "Multi-planar Video Capture"},
	{device.CapVideoOutputMPlane, "Multi-planar Video Output"},
	{device.CapVideoM2MMPlane, "Multi-planar Memory-to-Memory"},
	{device.CapVideoM2M, "Memory-to-Memory"},
	{device.CapStreaming, "Streaming I/O"},
}

// translateCapabilities converts V4L2 capability flags to readable strings
func translateCapabilities(caps uint32) []string {
	capabilities := []string{}
	for _, c := range capabilityNames {
		if device.Capability(caps)&c.flag != 0 {
			capabilities = append(capabilities, c.name)
		}
	}
	return capabilities
}

// deviceKind names the role a node can take in a session.
func deviceKind(caps uint32) string {
	c := device.Capability(caps)
	switch {
	case c&(device.CapVideoM2M|device.CapVideoM2MMPlane) != 0:
		return "encoder"
	case c&(device.CapVideoCapture|device.CapVideoCaptureMPlane) != 0:
		return "camera"
	default:
		return "unknown"
	}
}

func (s *Server) lookupDevice(deviceID string) (string, error) {
	devicePath, err := s.devices.PathByID(deviceID)
	if errors.Is(err, ErrDeviceNotFound) {
		return "", huma.Error404NotFound("Device not found", err)
	}
	if err != nil {
		return "", huma.Error500InternalServerError("Failed to look up device", err)
	}
	return devicePath, nil
}

func parseFourCC(code string) (device.FourCC, error) {
	fourcc, err := device.ParseFourCC(code)
	if err != nil {
		return 0, huma.Error400BadRequest("Invalid pixel format", err)
	}
	return fourcc, nil
}

// registerDeviceRoutes registers all device-related endpoints
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List V4L2 nodes that can capture or encode video",
		Tags:        []string{"devices"},
		Errors:      []int{500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceResponse, error) {
		devices, err := s.devices.List()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get devices", err)
		}
		slices.SortFunc(devices, func(a, b models.DeviceInfo) int {
			return compareNodePaths(a.DevicePath, b.DevicePath)
		})
		return &models.DeviceResponse{
			Body: models.DeviceData{Devices: devices, Count: len(devices)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-formats",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}/formats",
		Summary:     "Formats",
		Description: "List pixel formats of every queue of a device",
		Tags:        []string{"devices"},
		Errors:      []int{404, 500},
	}, func(ctx context.Context, input *DevicePathInput) (*models.DeviceFormatsResponse, error) {
		devicePath, err := s.lookupDevice(input.DeviceID)
		if err != nil {
			return nil, err
		}
		formats, err := s.devices.Formats(devicePath)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get device formats", err)
		}
		return &models.DeviceFormatsResponse{
			Body: models.DeviceFormatsData{DevicePath: devicePath, Formats: formats},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-resolutions",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}/resolutions",
		Summary:     "Resolutions",
		Description: "List supported resolutions for a specific format",
		Tags:        []string{"devices"},
		Errors:      []int{400, 404, 500},
	}, func(ctx context.Context, input *DeviceFormatInput) (*models.DeviceResolutionsResponse, error) {
		devicePath, err := s.lookupDevice(input.DeviceID)
		if err != nil {
			return nil, err
		}
		fourcc, err := parseFourCC(input.FourCC)
		if err != nil {
			return nil, err
		}
		resolutions, err := s.devices.Resolutions(devicePath, fourcc)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get device resolutions", err)
		}
		return &models.DeviceResolutionsResponse{
			Body: models.DeviceResolutionsData{Resolutions: resolutions},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-framerates",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}/framerates",
		Summary:     "Framerates",
		Description: "List supported framerates for a specific format and resolution",
		Tags:        []string{"devices"},
		Errors:      []int{400, 404, 500},
	}, func(ctx context.Context, input *DeviceResolutionInput) (*models.DeviceFrameratesResponse, error) {
		devicePath, err := s.lookupDevice(input.DeviceID)
		if err != nil {
			return nil, err
		}
		fourcc, err := parseFourCC(input.FourCC)
		if err != nil {
			return nil, err
		}

		width, err := strconv.ParseUint(input.Width, 10, 32)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid width parameter", err)
		}
		height, err := strconv.ParseUint(input.Height, 10, 32)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid height parameter", err)
		}

		framerates, err := s.devices.Framerates(devicePath, fourcc, uint32(width), uint32(height))
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get device framerates", err)
		}
		return &models.DeviceFrameratesResponse{
			Body: models.DeviceFrameratesData{Framerates: framerates},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-signal",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}/signal",
		Summary:     "Signal",
		Description: "Input signal of an HDMI receiver. Other devices report not_supported.",
		Tags:        []string{"devices"},
		Errors:      []int{404, 500},
	}, func(ctx context.Context, input *DevicePathInput) (*models.DeviceSignalResponse, error) {
		devicePath, err := s.lookupDevice(input.DeviceID)
		if err != nil {
			return nil, err
		}
		signal, err := s.devices.Signal(devicePath)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get device signal", err)
		}
		return &models.DeviceSignalResponse{Body: signal}, nil
	})
}

// compareNodePaths orders /dev/video2 before /dev/video10.
func compareNodePaths(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
