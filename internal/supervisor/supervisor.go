// Package supervisor owns the capture session lifecycle: it opens both
// devices, runs the pipeline into the sink, and recreates the whole session
// after a failure, a config change or a replugged device.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/ratelimit"

	"github.com/smazurov/v4l2cast/internal/capture"
	"github.com/smazurov/v4l2cast/internal/config"
	"github.com/smazurov/v4l2cast/internal/device"
	"github.com/smazurov/v4l2cast/internal/events"
	"github.com/smazurov/v4l2cast/internal/logging"
	"github.com/smazurov/v4l2cast/internal/metrics"
	"github.com/smazurov/v4l2cast/internal/streaming"
)

// Reasons a session ends without error.
const (
	ReasonCancelled = "cancelled"
	ReasonCompleted = "completed"
	ReasonReload    = "reload"
	ReasonHotplug   = "hotplug"
	ReasonRequested = "requested"
)

// watchdogSeconds of frames pass between two watchdog pings.
const watchdogSeconds = 5

// Opener opens the V4L2 node with the given index.
type Opener func(index int) (device.Device, error)

// SinkFactory builds the unit sink of a session.
type SinkFactory func(cfg streaming.Config) (streaming.Sink, error)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithOpener replaces device.Open.
func WithOpener(open Opener) Option {
	return func(s *Supervisor) { s.open = open }
}

// WithSinkFactory replaces streaming.New.
func WithSinkFactory(f SinkFactory) Option {
	return func(s *Supervisor) { s.newSink = f }
}

// WithEventBus publishes session events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(s *Supervisor) { s.bus = bus }
}

// WithNotifier reports readiness and liveness to n.
func WithNotifier(n Notifier) Option {
	return func(s *Supervisor) { s.notifier = n }
}

// Supervisor runs one session at a time. Run must be called once; the
// other methods are safe from any goroutine.
type Supervisor struct {
	open     Opener
	newSink  SinkFactory
	bus      *events.Bus
	notifier Notifier
	logger   *slog.Logger

	restart chan string
	done    chan struct{}

	mu       sync.Mutex
	opts     config.Options
	bucket   *ratelimit.Bucket
	pipeline *capture.Pipeline
	status   Status
}

// New creates a supervisor for opts, which must have passed Validate.
func New(opts config.Options, options ...Option) *Supervisor {
	s := &Supervisor{
		open:     device.Open,
		newSink:  streaming.New,
		bus:      events.New(),
		notifier: nopNotifier{},
		logger:   logging.GetLogger("supervisor"),
		restart:  make(chan string, 1),
		done:     make(chan struct{}),
		opts:     opts,
		status:   Status{State: StateIdle},
	}
	for _, o := range options {
		o(s)
	}
	s.bucket = s.newBucket(opts)
	return s
}

func (s *Supervisor) newBucket(opts config.Options) *ratelimit.Bucket {
	return ratelimit.NewBucket(opts.RestartEvery(), int64(max(opts.RestartBurst, 1)))
}

// Options returns the settings the next session will use.
func (s *Supervisor) Options() config.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Run runs sessions until ctx is cancelled, a session completes its frame
// limit, or a session fails and restarts are disabled.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.notifier.Stopping()

	for {
		reason, err := s.runSession(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return nil
		}

		switch {
		case err == nil && reason == ReasonCompleted:
			s.setState(StateStopped)
			return nil
		case err == nil:
			// reload or hotplug: recreate right away
			continue
		}

		opts := s.Options()
		if !opts.RestartEnabled {
			s.setState(StateFailed)
			return err
		}

		s.mu.Lock()
		bucket := s.bucket
		s.mu.Unlock()
		wait := bucket.Take(1)
		s.setState(StateRestarting)
		s.logger.Warn("Session failed, recreating", "error", err, "wait", wait)
		s.notifier.Status(fmt.Sprintf("restarting in %s: %v", wait.Round(time.Millisecond), err))

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.setState(StateStopped)
				return nil
			case <-timer.C:
			}
		}
	}
}

// Wait blocks until Run has returned and its session is torn down, or
// until timeout passes. A timeout of zero or less waits indefinitely.
// It reports whether Run returned.
func (s *Supervisor) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-s.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

// Restart ends the current session between frames and starts a new one.
// Requests made while one is already pending are merged.
func (s *Supervisor) Restart(reason string) {
	select {
	case s.restart <- reason:
	default:
	}
}

// Reload swaps in new settings. The session is recreated only when a
// setting it depends on changed.
func (s *Supervisor) Reload(opts config.Options) {
	s.mu.Lock()
	old := s.opts
	s.opts = opts
	if old.RestartBurst != opts.RestartBurst || old.RestartInterval != opts.RestartInterval {
		s.bucket = s.newBucket(opts)
	}
	s.mu.Unlock()

	logging.SetLevels(opts.LoggingConfig())
	restart := config.RequiresRestart(old, opts)
	s.bus.Publish(events.ConfigReloadedEvent{
		Path:      opts.Config,
		Restart:   restart,
		Timestamp: now(),
	})
	if restart {
		s.logger.Info("Pipeline settings changed, recreating session")
		s.Restart(ReasonReload)
	}
}

// DeviceChanged handles a hotplug event for devicePath. Adding back the
// camera or the encoder recreates the session.
func (s *Supervisor) DeviceChanged(action, devicePath string) {
	s.bus.Publish(events.DeviceHotplugEvent{
		Action:     action,
		DevicePath: devicePath,
		Timestamp:  now(),
	})

	opts := s.Options()
	if devicePath != device.NodePath(opts.CameraDevice) && devicePath != device.NodePath(opts.EncoderDevice) {
		return
	}
	s.logger.Info("Session device changed", "action", action, "device", devicePath)
	if action == "add" {
		s.Restart(ReasonHotplug)
	}
}

// runSession opens the devices, streams until the session ends and
// releases everything. reason is set when err is nil.
func (s *Supervisor) runSession(ctx context.Context) (reason string, err error) {
	opts := s.Options()
	id := uuid.NewString()
	logger := s.logger.With("session_id", id)

	// drop restart requests made before this session existed
	select {
	case <-s.restart:
	default:
	}

	s.beginSession(id, opts)
	defer func() { s.endSession(id, reason, err) }()

	cam, err := s.open(opts.CameraDevice)
	if err != nil {
		return "", err
	}
	defer cam.Close()

	enc, err := s.open(opts.EncoderDevice)
	if err != nil {
		return "", err
	}
	defer enc.Close()

	p, err := capture.Open(cam, enc, opts.CaptureConfig())
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			logger.Warn("Failed to release pipeline", "error", cerr)
		}
	}()

	sink, err := s.newSink(opts.SinkConfig())
	if err != nil {
		return "", fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	if err := p.Start(); err != nil {
		return "", err
	}
	s.sessionRunning(id, p)
	logger.Info("Session started",
		"camera", cam.Path(), "encoder", enc.Path(),
		"format", p.Camera().Format().String(), "fps", p.FrameRate())

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	requested := make(chan string, 1)
	go func() {
		select {
		case r := <-s.restart:
			requested <- r
			cancel()
		case <-sessCtx.Done():
		}
	}()

	runOpts := []capture.RunOption{s.watchdogHook(p.FrameRate())}
	if opts.PipelineMaxFrames > 0 {
		runOpts = append(runOpts, capture.WithMaxFrames(uint64(opts.PipelineMaxFrames)))
	}
	if opts.PipelinePacing {
		runOpts = append(runOpts, capture.WithPacing())
	}

	if err := p.Run(sessCtx, sink, runOpts...); err != nil {
		return "", err
	}

	select {
	case r := <-requested:
		return r, nil
	default:
	}
	if ctx.Err() != nil {
		return ReasonCancelled, nil
	}
	return ReasonCompleted, nil
}

// watchdogHook pings the watchdog every watchdogSeconds worth of frames.
func (s *Supervisor) watchdogHook(fps uint32) capture.RunOption {
	every := int(max(fps, 1)) * watchdogSeconds
	n := 0
	return capture.WithFrameHook(func([]byte) {
		if n++; n >= every {
			s.notifier.Watchdog()
			n = 0
		}
	})
}

func (s *Supervisor) beginSession(id string, opts config.Options) {
	s.mu.Lock()
	s.status.SessionID = id
	s.status.State = StateStarting
	s.status.Camera = device.NodePath(opts.CameraDevice)
	s.status.Encoder = device.NodePath(opts.EncoderDevice)
	s.status.Started = time.Time{}
	s.pipeline = nil
	s.mu.Unlock()
}

func (s *Supervisor) sessionRunning(id string, p *capture.Pipeline) {
	s.mu.Lock()
	s.pipeline = p
	s.status.State = StateRunning
	s.status.Started = time.Now()
	s.mu.Unlock()

	stats := p.Stats()
	metrics.SessionStarted()
	s.notifier.Ready()
	s.notifier.Status(fmt.Sprintf("streaming %s at %d fps", stats.CameraFmt, stats.FPS))
	s.bus.Publish(events.SessionStartedEvent{
		SessionID:     id,
		CameraPath:    p.Camera().Device().Path(),
		EncoderPath:   p.Encoder().Device().Path(),
		CameraFormat:  stats.CameraFmt.String(),
		EncoderFormat: stats.EncoderFmt.String(),
		FPS:           stats.FPS,
		Timestamp:     now(),
	})
}

func (s *Supervisor) endSession(id, reason string, err error) {
	s.mu.Lock()
	var frames uint64
	if s.pipeline != nil {
		st := s.pipeline.Stats()
		frames = st.Frames
		s.status.last = &st
	}
	running := s.status.State == StateRunning
	s.pipeline = nil
	if err != nil {
		s.status.LastError = err.Error()
		s.status.Failures++
	}
	s.mu.Unlock()

	if err != nil {
		kind := errorKind(err)
		if running {
			metrics.SessionEnded("failed")
		}
		s.logger.Error("Session failed", "session_id", id, "kind", kind, "error", err)
		s.bus.Publish(events.SessionFailedEvent{
			SessionID: id,
			Kind:      kind,
			Error:     err.Error(),
			Restart:   s.Options().RestartEnabled,
			Timestamp: now(),
		})
		return
	}

	if running {
		metrics.SessionEnded("stopped")
	}
	s.logger.Info("Session ended", "session_id", id, "reason", reason, "frames", frames)
	s.bus.Publish(events.SessionStoppedEvent{
		SessionID: id,
		Reason:    reason,
		Frames:    frames,
		Timestamp: now(),
	})
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func errorKind(err error) string {
	var e *device.Error
	switch {
	case errors.As(err, &e):
		return string(e.Code)
	case errors.Is(err, capture.ErrPipelineFailed):
		return "PIPELINE_FAILED"
	default:
		return "OTHER"
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
