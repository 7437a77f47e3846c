package supervisor

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/v4l2cast/internal/logging"
)

// Notifier receives service manager notifications.
type Notifier interface {
	Ready()
	Watchdog()
	Status(text string)
	Stopping()
}

type nopNotifier struct{}

func (nopNotifier) Ready()        {}
func (nopNotifier) Watchdog()     {}
func (nopNotifier) Status(string) {}
func (nopNotifier) Stopping()     {}

// SystemdNotifier sends sd_notify messages. Outside systemd every call is
// a no-op.
type SystemdNotifier struct{}

func (SystemdNotifier) Ready()    { sdNotify(daemon.SdNotifyReady) }
func (SystemdNotifier) Watchdog() { sdNotify(daemon.SdNotifyWatchdog) }
func (SystemdNotifier) Stopping() { sdNotify(daemon.SdNotifyStopping) }

func (SystemdNotifier) Status(text string) {
	sdNotify("STATUS=" + text)
}

func sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.GetLogger("supervisor").Debug("sd_notify failed", "state", state, "error", err)
	}
}
