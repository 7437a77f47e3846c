package api

import (
	"context"
	"maps"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/v4l2cast/internal/api/models"
	"github.com/smazurov/v4l2cast/internal/events"
	"github.com/smazurov/v4l2cast/internal/metrics/exporters"
	"github.com/smazurov/v4l2cast/internal/supervisor"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of session lifecycle, device hotplug, config reload and throughput events. The current session state is sent first.",
		Tags:        []string{"events"},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"session-status":  models.SessionData{},
			"session-started": events.SessionStartedEvent{},
			"session-stopped": events.SessionStoppedEvent{},
			"session-failed":  events.SessionFailedEvent{},
			"device-hotplug":  events.DeviceHotplugEvent{},
			"config-reloaded": events.ConfigReloadedEvent{},
		}
		maps.Copy(eventTypes, exporters.GetEventTypes())
		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)
		var dropped atomic.Uint64

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStartedEvent](s.eventBus, eventCh, &dropped),
			events.SubscribeToChannel[events.SessionStoppedEvent](s.eventBus, eventCh, &dropped),
			events.SubscribeToChannel[events.SessionFailedEvent](s.eventBus, eventCh, &dropped),
			events.SubscribeToChannel[events.DeviceHotplugEvent](s.eventBus, eventCh, &dropped),
			events.SubscribeToChannel[events.ConfigReloadedEvent](s.eventBus, eventCh, &dropped),
			events.SubscribeToChannel[events.SessionStatsEvent](s.eventBus, eventCh, &dropped),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
			if n := dropped.Load(); n > 0 {
				s.logger.Debug("SSE client fell behind", "dropped", n)
			}
		}()

		if err := send.Data(s.sessionSnapshot()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

func (s *Server) sessionSnapshot() models.SessionData {
	if s.session == nil {
		return models.SessionData{State: string(supervisor.StateIdle)}
	}
	return sessionData(s.session.Status(), time.Now())
}
