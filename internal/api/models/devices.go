package models

// DeviceInfo represents a video device with snake_case fields
type DeviceInfo struct {
	DevicePath   string   `json:"device_path" example:"/dev/video0" doc:"System device path"`
	DeviceName   string   `json:"device_name" example:"USB Camera" doc:"Device name"`
	DeviceID     string   `json:"device_id" example:"usb-0000:00:14.0-1" doc:"Stable device identifier"`
	Driver       string   `json:"driver" example:"uvcvideo" doc:"Kernel driver"`
	Kind         string   `json:"kind" enum:"camera,encoder,hdmi,unknown" example:"camera" doc:"Role the device can play in a session"`
	Ready        bool     `json:"ready" example:"true" doc:"Whether the device can deliver frames now; false for an HDMI receiver without a locked signal"`
	Caps         uint32   `json:"caps" example:"84000001" doc:"Raw V4L2 capability flags"`
	Capabilities []string `json:"capabilities" example:"[\"Video Capture\", \"Streaming I/O\"]" doc:"Device capabilities"`
}

// SignalData is the input signal of an HDMI receiver.
type SignalData struct {
	State      string  `json:"state" enum:"no_device,no_link,no_signal,unstable,locked,out_of_range,not_supported" example:"locked" doc:"Signal state"`
	Width      uint32  `json:"width,omitempty" example:"1920" doc:"Active width when locked"`
	Height     uint32  `json:"height,omitempty" example:"1080" doc:"Active height when locked"`
	FPS        float64 `json:"fps,omitempty" example:"60" doc:"Frame rate when locked"`
	Interlaced bool    `json:"interlaced,omitempty" example:"false" doc:"Whether the signal is interlaced"`
}

type DeviceSignalResponse struct {
	Body SignalData
}

// FormatInfo is a pixel format one queue of a device accepts.
type FormatInfo struct {
	FourCC      string `json:"fourcc" example:"YUYV" doc:"Four character code"`
	Description string `json:"description" example:"YUYV 4:2:2" doc:"Driver description"`
	Queue       string `json:"queue" enum:"capture,output" example:"capture" doc:"Queue that accepts the format"`
	Emulated    bool   `json:"emulated" example:"false" doc:"Whether format is emulated"`
}

// Resolution represents video resolution with snake_case fields
type Resolution struct {
	Width  uint32 `json:"width" example:"1920" doc:"Video width in pixels"`
	Height uint32 `json:"height" example:"1080" doc:"Video height in pixels"`
}

// Framerate represents video framerate with snake_case fields
type Framerate struct {
	Numerator   uint32  `json:"numerator" example:"1" doc:"Framerate fraction numerator"`
	Denominator uint32  `json:"denominator" example:"30" doc:"Framerate fraction denominator"`
	Fps         float64 `json:"fps" example:"30.0" doc:"Frames per second"`
}

// Device API response models
type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"List of available video devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}

type DeviceFormatsData struct {
	DevicePath string       `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Formats    []FormatInfo `json:"formats" doc:"Supported pixel formats"`
}

type DeviceFormatsResponse struct {
	Body DeviceFormatsData
}

type DeviceResolutionsData struct {
	Resolutions []Resolution `json:"resolutions" doc:"Supported resolutions for the format"`
}

type DeviceResolutionsResponse struct {
	Body DeviceResolutionsData
}

type DeviceFrameratesData struct {
	Framerates []Framerate `json:"framerates" doc:"Supported framerates for the format and resolution"`
}

type DeviceFrameratesResponse struct {
	Body DeviceFrameratesData
}
