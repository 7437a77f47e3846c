//go:build !linux

package device

// Open is not available on this platform.
func Open(index int) (Device, error) {
	return nil, DeviceError(ErrUnsupported, "open %s", NodePath(index))
}

// OpenPath is not available on this platform.
func OpenPath(index int, path string) (Device, error) {
	return nil, DeviceError(ErrUnsupported, "open %s", path)
}
