package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4l2cast/internal/capture"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/logging"
	"github.com/smazurov/v4l2cast/internal/streaming"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	ServerAddr string `help:"Status API listen address, empty to disable" name:"server-addr" default:":8090" toml:"server.addr" env:"SERVER_ADDR"`

	// Camera settings
	CameraDevice  int    `help:"Camera device index (/dev/videoN)" name:"camera-device" default:"0" toml:"camera.device" env:"CAMERA_DEVICE"`
	CameraWidth   int    `help:"Capture width" name:"width" default:"640" toml:"camera.width" env:"CAMERA_WIDTH"`
	CameraHeight  int    `help:"Capture height" name:"height" default:"480" toml:"camera.height" env:"CAMERA_HEIGHT"`
	CameraFourCC  string `help:"Capture pixel format" name:"camera-fourcc" default:"YUYV" toml:"camera.fourcc" env:"CAMERA_FOURCC"`
	CameraFPS     int    `help:"Capture and encode frame rate" name:"fps" default:"15" toml:"camera.fps" env:"CAMERA_FPS"`
	CameraBuffers int    `help:"Capture queue depth" name:"capture-buffers" default:"3" toml:"camera.buffers" env:"CAMERA_BUFFERS"`

	// Encoder settings
	EncoderDevice        int    `help:"Encoder device index (/dev/videoN)" name:"encoder-device" default:"11" toml:"encoder.device" env:"ENCODER_DEVICE"`
	EncoderFourCC        string `help:"Coded format" name:"encoder-fourcc" default:"H264" toml:"encoder.fourcc" env:"ENCODER_FOURCC"`
	EncoderInputBuffers  int    `help:"Encoder input queue depth" name:"encoder-input-buffers" default:"1" toml:"encoder.input_buffers" env:"ENCODER_INPUT_BUFFERS"`
	EncoderOutputBuffers int    `help:"Encoder output queue depth" name:"encoder-output-buffers" default:"1" toml:"encoder.output_buffers" env:"ENCODER_OUTPUT_BUFFERS"`

	// Pipeline settings
	PipelineWaitTimeout string `help:"Readiness wait timeout, 0 waits forever" name:"wait-timeout" default:"0s" toml:"pipeline.wait_timeout" env:"PIPELINE_WAIT_TIMEOUT"`
	PipelineMaxFrames   int    `help:"Stop each session after this many frames, 0 for no limit" name:"max-frames" default:"0" toml:"pipeline.max_frames" env:"PIPELINE_MAX_FRAMES"`
	PipelinePacing      bool   `help:"Pace frames with a 1/fps ticker" name:"pacing" default:"true" toml:"pipeline.pacing" env:"PIPELINE_PACING"`

	// Output settings
	OutputSink                string `help:"Unit sink (file, track, discard)" name:"sink" default:"file" toml:"output.sink" env:"OUTPUT_SINK"`
	OutputPath                string `help:"Annex-B output file, - for stdout" name:"output" short:"o" default:"-" toml:"output.path" env:"OUTPUT_PATH"`
	OutputInjectParameterSets bool   `help:"Repeat SPS and PPS before every IDR" name:"inject-parameter-sets" default:"true" toml:"output.inject_parameter_sets" env:"OUTPUT_INJECT_PARAMETER_SETS"`
	OutputParameterSets       string `help:"fmtp line with sprop-parameter-sets to seed the injector" name:"parameter-sets" default:"" toml:"output.parameter_sets" env:"OUTPUT_PARAMETER_SETS"`

	// Restart settings
	RestartEnabled  bool   `help:"Recreate the session after a failure" name:"restart" default:"true" toml:"restart.enabled" env:"RESTART_ENABLED"`
	RestartBurst    int    `help:"Restarts allowed back to back" name:"restart-burst" default:"3" toml:"restart.burst" env:"RESTART_BURST"`
	RestartInterval string `help:"Time to earn one more restart" name:"restart-interval" default:"5s" toml:"restart.interval" env:"RESTART_INTERVAL"`

	// Features settings
	FeaturesHotplug     bool `help:"Restart the session when the camera is replugged" name:"hotplug" default:"true" toml:"features.hotplug" env:"FEATURES_HOTPLUG"`
	FeaturesWatchConfig bool `help:"Reload the config file when it changes" name:"watch-config" default:"true" toml:"features.watch_config" env:"FEATURES_WATCH_CONFIG"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" name:"logging-level" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" name:"logging-format" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture    string `help:"Capture logging level" name:"logging-capture" default:"" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingSink       string `help:"Sink logging level" name:"logging-sink" default:"" toml:"logging.sink" env:"LOGGING_SINK"`
	LoggingSupervisor string `help:"Supervisor logging level" name:"logging-supervisor" default:"" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingAPI        string `help:"API logging level" name:"logging-api" default:"" toml:"logging.api" env:"LOGGING_API"`
	LoggingHotplug    string `help:"Hotplug logging level" name:"logging-hotplug" default:"" toml:"logging.hotplug" env:"LOGGING_HOTPLUG"`
}

// Defaults returns Options with every default tag applied.
func Defaults() Options {
	var o Options
	ApplyDefaults(&o)
	return o
}

// Load reads path on top of the defaults and the environment. It is the
// loader used by the config watcher.
func Load(path string) (Options, error) {
	o := Defaults()
	o.Config = path
	if err := LoadConfig(&o, nil); err != nil {
		return Options{}, err
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Reloader returns a watcher loader that reads path like Load and then
// restores every setting cli received from a changed flag.
func Reloader(cli Options, changed map[string]bool) func(path string) (Options, error) {
	return func(path string) (Options, error) {
		o := Defaults()
		o.Config = path
		if err := LoadConfig(&o, nil); err != nil {
			return Options{}, err
		}
		keepChanged(&o, &cli, changed)
		if err := o.Validate(); err != nil {
			return Options{}, err
		}
		return o, nil
	}
}

// Validate reports every invalid setting.
func (o *Options) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(o.CameraDevice >= 0, "camera.device must not be negative")
	check(o.EncoderDevice >= 0, "encoder.device must not be negative")
	check(o.CameraWidth > 0 && o.CameraHeight > 0, "camera size %dx%d must be positive", o.CameraWidth, o.CameraHeight)
	check(o.CameraFPS > 0, "camera.fps must be positive")
	check(o.CameraBuffers >= 1, "camera.buffers must be at least 1")
	check(o.EncoderInputBuffers >= 1, "encoder.input_buffers must be at least 1")
	check(o.EncoderOutputBuffers >= 1, "encoder.output_buffers must be at least 1")
	check(o.PipelineMaxFrames >= 0, "pipeline.max_frames must not be negative")
	check(o.RestartBurst >= 1 || !o.RestartEnabled, "restart.burst must be at least 1")

	if _, err := device.ParseFourCC(o.CameraFourCC); err != nil {
		errs = append(errs, fmt.Errorf("camera.fourcc: %w", err))
	}
	if _, err := device.ParseFourCC(o.EncoderFourCC); err != nil {
		errs = append(errs, fmt.Errorf("encoder.fourcc: %w", err))
	}
	if d, err := time.ParseDuration(o.PipelineWaitTimeout); err != nil || d < 0 {
		errs = append(errs, fmt.Errorf("pipeline.wait_timeout: invalid duration %q", o.PipelineWaitTimeout))
	}
	if d, err := time.ParseDuration(o.RestartInterval); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("restart.interval: invalid duration %q", o.RestartInterval))
	}
	if _, _, err := streaming.ParseParameterSets(o.OutputParameterSets); err != nil {
		errs = append(errs, fmt.Errorf("output.parameter_sets: %w", err))
	}
	switch o.OutputSink {
	case streaming.KindFile, streaming.KindTrack, streaming.KindDiscard:
	default:
		errs = append(errs, fmt.Errorf("output.sink: unknown sink %q", o.OutputSink))
	}

	return errors.Join(errs...)
}

// CaptureConfig converts the camera, encoder and pipeline settings.
// Options must have passed Validate.
func (o *Options) CaptureConfig() capture.Config {
	camFmt, _ := device.ParseFourCC(o.CameraFourCC)
	coded, _ := device.ParseFourCC(o.EncoderFourCC)
	timeout := o.WaitTimeout()

	return capture.Config{
		Camera: capture.CameraConfig{
			Width:       uint32(o.CameraWidth),
			Height:      uint32(o.CameraHeight),
			PixelFormat: camFmt,
			FPS:         uint32(o.CameraFPS),
			Buffers:     o.CameraBuffers,
			WaitTimeout: timeout,
		},
		Encoder: capture.EncoderConfig{
			Coded:         coded,
			FPS:           uint32(o.CameraFPS),
			InputBuffers:  o.EncoderInputBuffers,
			OutputBuffers: o.EncoderOutputBuffers,
			WaitTimeout:   timeout,
		},
	}
}

// SinkConfig converts the output settings.
func (o *Options) SinkConfig() streaming.Config {
	return streaming.Config{
		Kind:                o.OutputSink,
		Path:                o.OutputPath,
		ParameterSets:       o.OutputParameterSets,
		InjectParameterSets: o.OutputInjectParameterSets,
	}
}

// LoggingConfig converts the logging settings. Empty module levels
// inherit the global level.
func (o *Options) LoggingConfig() logging.Config {
	modules := map[string]string{}
	for name, level := range map[string]string{
		"capture":    o.LoggingCapture,
		"sink":       o.LoggingSink,
		"supervisor": o.LoggingSupervisor,
		"api":        o.LoggingAPI,
		"hotplug":    o.LoggingHotplug,
	} {
		if level != "" {
			modules[name] = level
		}
	}
	return logging.Config{Level: o.LoggingLevel, Format: o.LoggingFormat, Modules: modules}
}

// WaitTimeout returns the parsed readiness timeout, zero when unset or invalid.
func (o *Options) WaitTimeout() time.Duration {
	d, err := time.ParseDuration(o.PipelineWaitTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// RestartEvery returns the parsed restart refill interval.
func (o *Options) RestartEvery() time.Duration {
	d, err := time.ParseDuration(o.RestartInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// RequiresRestart reports whether moving from old to updated changes
// anything a running session depends on. Devices, formats, queue depths and
// the sink cannot be changed in place, so any difference recreates the
// session.
func RequiresRestart(old, updated Options) bool {
	return old.CaptureConfig() != updated.CaptureConfig() ||
		old.SinkConfig() != updated.SinkConfig() ||
		old.PipelineMaxFrames != updated.PipelineMaxFrames ||
		old.PipelinePacing != updated.PipelinePacing ||
		old.CameraDevice != updated.CameraDevice ||
		old.EncoderDevice != updated.EncoderDevice
}
