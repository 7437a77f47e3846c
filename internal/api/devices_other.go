//go:build !linux

package api

import (
	"github.com/smazurov/v4l2cast/internal/api/models"
	"github.com/smazurov/v4l2cast/internal/device"
)

type hostDevices struct{}

func (hostDevices) List() ([]models.DeviceInfo, error) { return []models.DeviceInfo{}, nil }

func (hostDevices) PathByID(string) (string, error) { return "", ErrDeviceNotFound }

func (hostDevices) Formats(string) ([]models.FormatInfo, error) {
	return nil, device.ErrUnsupported
}

func (hostDevices) Resolutions(string, device.FourCC) ([]models.Resolution, error) {
	return nil, device.ErrUnsupported
}

func (hostDevices) Framerates(string, device.FourCC, uint32, uint32) ([]models.Framerate, error) {
	return nil, device.ErrUnsupported
}

func (hostDevices) Signal(string) (models.SignalData, error) {
	return models.SignalData{}, device.ErrUnsupported
}
