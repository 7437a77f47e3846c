//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format negotiation and memory-mapped streaming I/O.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Streaming I/O
//
// Open a device node and drive its buffer queues directly:
//
//	dev, _ := v4l2.Open("/dev/video0")
//	defer dev.Close()
//	pf, _ := dev.SetFormat(v4l2.BufTypeVideoCapture, v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtYUYV})
//	n, _ := dev.RequestBuffers(v4l2.BufTypeVideoCapture, 3)
//	for i := uint32(0); i < n; i++ {
//	    planes, _ := dev.QueryBuffer(v4l2.BufTypeVideoCapture, i, 1)
//	    mem, _ := dev.Map(planes[0].Offset, planes[0].Length)
//	    _ = dev.QueueBuffer(v4l2.BufTypeVideoCapture, i, nil)
//	}
//	_ = dev.StreamOn(v4l2.BufTypeVideoCapture)
//	_, _ = dev.Poll(v4l2.PollIn, 0)
//	index, used, _ := dev.DequeueBuffer(v4l2.BufTypeVideoCapture, 1)
//
// The file descriptor is opened non-blocking; DequeueBuffer returns
// ErrWouldBlock when the driver has not completed a buffer yet, and Poll
// waits for the readiness notification.
//
// # HDMI Signal Detection
//
// For HDMI capture devices, check signal status:
//
//	status := v4l2.GetDVTimings("/dev/video0")
//	if status.State == v4l2.SignalStateLocked {
//	    fmt.Printf("Signal: %dx%d @ %.2f fps\n", status.Width, status.Height, status.FPS)
//	}
package v4l2
