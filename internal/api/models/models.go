package models

import (
	"time"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	Modified  bool   `json:"modified" example:"false" doc:"Built from a tree with uncommitted changes"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type SessionStats struct {
	Frames       uint64  `json:"frames" example:"900" doc:"Frames encoded in this session"`
	Bytes        uint64  `json:"bytes" example:"1048576" doc:"Encoded bytes produced"`
	Units        uint64  `json:"units" example:"2700" doc:"NAL units written to the sink"`
	FrameTimeMs  float64 `json:"frame_time_ms" example:"4.2" doc:"Duration of the last frame round trip in milliseconds"`
	CameraFormat string  `json:"camera_format" example:"640x480 YUYV" doc:"Negotiated camera format"`
	CodedFormat  string  `json:"coded_format" example:"640x480 H264" doc:"Negotiated encoder output format"`
	FPS          uint32  `json:"fps" example:"15" doc:"Negotiated frame rate"`
	Failed       bool    `json:"failed" example:"false" doc:"Whether the pipeline is poisoned"`
	LastError    string  `json:"last_error,omitempty" doc:"Last error recorded by the pipeline"`
}

type SessionData struct {
	State     string        `json:"state" enum:"idle,starting,running,restarting,stopped,failed" example:"running" doc:"Supervisor state"`
	SessionID string        `json:"session_id,omitempty" example:"6f1c1f4e-4a55-4c1b-9a55-0c8b1f0e2d7a" doc:"Identifier of the current or last session"`
	Camera    string        `json:"camera" example:"/dev/video0" doc:"Camera device node"`
	Encoder   string        `json:"encoder" example:"/dev/video11" doc:"Encoder device node"`
	StartTime *time.Time    `json:"start_time,omitempty" doc:"When both devices started streaming"`
	Uptime    time.Duration `json:"uptime,omitempty" example:"3600000000000" doc:"Session uptime in nanoseconds"`
	Failures  int           `json:"failures" example:"0" doc:"Failed sessions since start"`
	LastError string        `json:"last_error,omitempty" doc:"Error of the last failed session"`
	Stats     SessionStats  `json:"stats" doc:"Counters of the current or last session"`
}

type SessionResponse struct {
	Body SessionData
}

type RestartData struct {
	Status  string `json:"status" example:"accepted" doc:"Request status"`
	Message string `json:"message" example:"Session restart requested" doc:"Status message"`
}

type RestartResponse struct {
	Body RestartData
}

// Log models
type LogEntry struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Position in the log since startup"`
	Timestamp  string         `json:"timestamp" example:"2024-12-15T14:30:00.123456789Z" doc:"Time of the record"`
	Level      string         `json:"level" example:"INFO" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Module that logged the record"`
	Message    string         `json:"message" example:"Session started" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
	Line       string         `json:"line" doc:"Record formatted as a single text line"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Buffered log records, oldest first"`
	Count   int        `json:"count" example:"20" doc:"Number of entries returned"`
	Dropped uint64     `json:"dropped" example:"0" doc:"Records evicted from the buffer since startup"`
}

type LogsResponse struct {
	Body LogsData
}

// Error response
type ErrorData struct {
	Status  string `json:"status" example:"error" doc:"Error status"`
	Message string `json:"message" example:"Device not found" doc:"Error message"`
}

type ErrorResponse struct {
	Body ErrorData
}
