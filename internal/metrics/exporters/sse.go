package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/v4l2cast/internal/events"
	"github.com/smazurov/v4l2cast/internal/supervisor"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// StatsSource reports the supervised session.
type StatsSource interface {
	Status() supervisor.Status
}

// SSEExporter samples the running session and publishes its throughput as
// SessionStatsEvent.
type SSEExporter struct {
	eventBus EventPublisher
	source   StatsSource
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// previous sample, only touched by run
	lastID     string
	lastFrames uint64
	lastBytes  uint64
	lastAt     time.Time
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher, source StatsSource) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		source:   source,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.publishStats(now)
		}
	}
}

func (s *SSEExporter) publishStats(now time.Time) {
	st := s.source.Status()
	if st.State != supervisor.StateRunning {
		s.lastID = ""
		return
	}

	// the first sample of a session only sets the baseline
	if st.SessionID != s.lastID {
		s.lastID = st.SessionID
		s.lastFrames, s.lastBytes, s.lastAt = st.Stats.Frames, st.Stats.Bytes, now
		return
	}

	elapsed := now.Sub(s.lastAt).Seconds()
	if elapsed <= 0 {
		return
	}
	fps := float64(st.Stats.Frames-s.lastFrames) / elapsed
	kbps := float64(st.Stats.Bytes-s.lastBytes) * 8 / 1000 / elapsed
	s.lastFrames, s.lastBytes, s.lastAt = st.Stats.Frames, st.Stats.Bytes, now

	s.eventBus.Publish(events.SessionStatsEvent{
		SessionID:   st.SessionID,
		Frames:      st.Stats.Frames,
		Units:       st.Stats.Units,
		FPS:         strconv.FormatFloat(fps, 'f', 2, 64),
		BitrateKbps: strconv.FormatFloat(kbps, 'f', 1, 64),
		FrameTimeMs: float64(st.Stats.FrameTime) / float64(time.Millisecond),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"session-stats": events.SessionStatsEvent{},
	}
}
