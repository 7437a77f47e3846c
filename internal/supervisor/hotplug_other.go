//go:build !linux

package supervisor

import (
	"context"

	"github.com/smazurov/v4l2cast/internal/device"
)

// WatchHotplug is only available on Linux.
func (s *Supervisor) WatchHotplug(context.Context) error {
	return device.ErrUnsupported
}
