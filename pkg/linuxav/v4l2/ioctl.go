//go:build linux

package v4l2

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by DequeueBuffer when no buffer is ready.
var ErrWouldBlock = unix.EAGAIN

// Poll event bits.
const (
	PollIn  = int16(unix.POLLIN)
	PollOut = int16(unix.POLLOUT)
	PollErr = int16(unix.POLLERR)
	PollPri = int16(unix.POLLPRI)
)

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func open(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

func close(fd int) error {
	return unix.Close(fd)
}

// poll waits for any of events on fd. A zero timeout blocks indefinitely.
// Returns 0 revents when the timeout expires.
func poll(fd int, events int16, timeout time.Duration) (int16, error) {
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
		return fds[0].Revents, nil
	}
}
