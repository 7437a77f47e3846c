package events

// Event type constants for kelindar/event.
const (
	TypeSessionStarted uint32 = iota + 1
	TypeSessionStopped
	TypeSessionFailed
	TypeDeviceHotplug
	TypeConfigReloaded
	TypeSessionStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStartedEvent is published once both devices are streaming.
type SessionStartedEvent struct {
	SessionID     string `json:"session_id" example:"0b9f6c1e-5d7a-4c36-9a0e-3f1c2d4e5f60" doc:"Session identifier"`
	CameraPath    string `json:"camera_path" example:"/dev/video0" doc:"Camera device node"`
	EncoderPath   string `json:"encoder_path" example:"/dev/video11" doc:"Encoder device node"`
	CameraFormat  string `json:"camera_format" example:"640x480 YUYV" doc:"Negotiated camera format"`
	EncoderFormat string `json:"encoder_format" example:"640x480 H264" doc:"Negotiated coded format"`
	FPS           uint32 `json:"fps" example:"30" doc:"Negotiated frame rate"`
	Timestamp     string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStartedEvent.
func (e SessionStartedEvent) Type() uint32 { return TypeSessionStarted }

// SessionStoppedEvent is published when a session ends without error.
type SessionStoppedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Reason    string `json:"reason" example:"cancelled" doc:"Why the session ended: cancelled, completed, reload, hotplug"`
	Frames    uint64 `json:"frames" example:"900" doc:"Frames encoded during the session"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStoppedEvent.
func (e SessionStoppedEvent) Type() uint32 { return TypeSessionStopped }

// SessionFailedEvent is published when a session ends with an error.
type SessionFailedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Kind      string `json:"kind" example:"IO" doc:"Error kind"`
	Error     string `json:"error" doc:"Error message"`
	Restart   bool   `json:"restart" doc:"Whether the supervisor will recreate the session"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionFailedEvent.
func (e SessionFailedEvent) Type() uint32 { return TypeSessionFailed }

// DeviceHotplugEvent represents a V4L2 device node being added or removed.
type DeviceHotplugEvent struct {
	Action     string `json:"action" example:"add" doc:"Action type: add, remove"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceHotplugEvent.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }

// ConfigReloadedEvent is published after the config file changed on disk.
type ConfigReloadedEvent struct {
	Path      string `json:"path" example:"/etc/v4l2cast/config.toml" doc:"Config file path"`
	Restart   bool   `json:"restart" doc:"Whether the change requires a new session"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }

// SessionStatsEvent carries throughput of the running session, sampled
// periodically.
type SessionStatsEvent struct {
	SessionID   string  `json:"session_id" doc:"Session identifier"`
	Frames      uint64  `json:"frames" example:"900" doc:"Frames encoded so far"`
	Units       uint64  `json:"units" example:"2700" doc:"NAL units written so far"`
	FPS         string  `json:"fps" example:"14.98" doc:"Measured frame rate over the last interval"`
	BitrateKbps string  `json:"bitrate_kbps" example:"812.4" doc:"Measured coded bitrate over the last interval"`
	FrameTimeMs float64 `json:"frame_time_ms" example:"4.2" doc:"Duration of the last frame round trip"`
	Timestamp   string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStatsEvent.
func (e SessionStatsEvent) Type() uint32 { return TypeSessionStats }
