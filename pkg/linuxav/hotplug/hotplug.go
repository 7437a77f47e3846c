//go:build linux

// Package hotplug reports kernel device events by listening to
// NETLINK_KOBJECT_UEVENT, without cgo or libudev.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"golang.org/x/sys/unix"
)

// Action constants for device events.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// SubsystemVideo4Linux is the subsystem of V4L2 device nodes.
const SubsystemVideo4Linux = "video4linux"

// pollInterval bounds how long Run waits before rechecking ctx, in ms.
const pollInterval = 500

// Event represents a kernel device event.
type Event struct {
	Action    string            // "add", "remove", "change", etc.
	KObj      string            // Kernel object path: /devices/pci0000:00/...
	Subsystem string            // "video4linux", "usb", ...
	DevType   string            // Device type if available
	DevName   string            // Device name relative to /dev, e.g. "video0"
	DevPath   string            // sysfs path from DEVPATH
	Env       map[string]string // All environment variables from the event
}

// DeviceNode returns the /dev path of the event's device, or "" when the
// event carries no DEVNAME.
func (e Event) DeviceNode() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// Monitor listens for kernel device events of selected subsystems.
type Monitor struct {
	fd         int
	subsystems map[string]struct{}
}

// NewMonitor opens a uevent socket. Only events of the given subsystems are
// delivered; with none, every event is.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}

	// Group 1 is the kernel broadcast group
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		unix.Close(fd)
		return nil, err
	}

	m := &Monitor{fd: fd, subsystems: make(map[string]struct{}, len(subsystems))}
	for _, s := range subsystems {
		m.subsystems[s] = struct{}{}
	}
	return m, nil
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run delivers events until ctx is cancelled or the socket fails, and
// closes events when it returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, pollInterval)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		n, _, err = unix.Recvfrom(m.fd, buf, unix.MSG_DONTWAIT)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			// ENOBUFS means events were dropped; keep listening
			if errors.Is(err, unix.ENOBUFS) {
				continue
			}
			return err
		}

		event := ParseUEvent(buf[:n])
		if event == nil || !m.wants(event.Subsystem) {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Monitor) wants(subsystem string) bool {
	if len(m.subsystems) == 0 {
		return true
	}
	_, ok := m.subsystems[subsystem]
	return ok
}

// ParseUEvent parses a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0...". Messages relayed by udev carry
// a binary "libudev" header, which is skipped.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}

	if bytes.HasPrefix(data, []byte("libudev")) {
		for i := 0; i < len(data)-1; i++ {
			if data[i] == 0 {
				rest := data[i+1:]
				if idx := bytes.IndexByte(rest, '@'); idx > 0 && idx < 20 {
					data = rest
					break
				}
			}
		}
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts[0]) == 0 {
		return nil
	}

	header := string(parts[0])
	atIdx := strings.Index(header, "@")
	if atIdx < 1 {
		return nil
	}

	event := &Event{
		Action: header[:atIdx],
		KObj:   header[atIdx+1:],
		Env:    make(map[string]string),
	}

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVTYPE":
			event.DevType = value
		case "DEVNAME":
			event.DevName = value
		case "DEVPATH":
			event.DevPath = value
		}
	}

	return event
}
