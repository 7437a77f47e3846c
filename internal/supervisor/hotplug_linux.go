//go:build linux

package supervisor

import (
	"context"

	"github.com/smazurov/v4l2cast/internal/logging"
	"github.com/smazurov/v4l2cast/pkg/linuxav/hotplug"
)

// WatchHotplug feeds V4L2 uevents to DeviceChanged until ctx is cancelled.
func (s *Supervisor) WatchHotplug(ctx context.Context) error {
	m, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		return err
	}
	defer m.Close()

	logger := logging.GetLogger("hotplug")
	logger.Info("Watching V4L2 hotplug events")

	ch := make(chan hotplug.Event, 16)
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, ch) }()

	for ev := range ch {
		node := ev.DeviceNode()
		if node == "" {
			continue
		}
		logger.Debug("Device event", "action", ev.Action, "device", node)
		if ev.Action == hotplug.ActionAdd || ev.Action == hotplug.ActionRemove {
			s.DeviceChanged(ev.Action, node)
		}
	}

	if err := <-errc; ctx.Err() == nil {
		return err
	}
	return nil
}
