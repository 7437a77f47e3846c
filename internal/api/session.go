package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/v4l2cast/internal/api/models"
	"github.com/smazurov/v4l2cast/internal/supervisor"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Session",
		Description: "State and counters of the capture session",
		Tags:        []string{"session"},
	}, func(ctx context.Context, input *struct{}) (*models.SessionResponse, error) {
		return &models.SessionResponse{Body: sessionData(s.session.Status(), time.Now())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "restart-session",
		Method:        http.MethodPost,
		Path:          "/api/session/restart",
		Summary:       "Restart Session",
		Description:   "Recreate the capture session after the frame in progress. The new session is announced via SSE.",
		Tags:          []string{"session"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{409},
	}, func(ctx context.Context, input *struct{}) (*models.RestartResponse, error) {
		switch s.session.Status().State {
		case supervisor.StateStopped, supervisor.StateFailed, supervisor.StateIdle:
			return nil, huma.Error409Conflict("No session is being supervised")
		}
		s.session.Restart(supervisor.ReasonRequested)
		return &models.RestartResponse{
			Body: models.RestartData{
				Status:  "accepted",
				Message: "Session restart requested",
			},
		}, nil
	})
}

func sessionData(st supervisor.Status, now time.Time) models.SessionData {
	data := models.SessionData{
		State:     string(st.State),
		SessionID: st.SessionID,
		Camera:    st.Camera,
		Encoder:   st.Encoder,
		Failures:  st.Failures,
		LastError: st.LastError,
		Stats: models.SessionStats{
			Frames:      st.Stats.Frames,
			Bytes:       st.Stats.Bytes,
			Units:       st.Stats.Units,
			FrameTimeMs: float64(st.Stats.FrameTime) / float64(time.Millisecond),
			FPS:         st.Stats.FPS,
			Failed:      st.Stats.Failed,
			LastError:   st.Stats.LastError,
		},
	}
	if st.Stats.CameraFmt.Width != 0 {
		data.Stats.CameraFormat = st.Stats.CameraFmt.String()
		data.Stats.CodedFormat = st.Stats.EncoderFmt.String()
	}
	if !st.Started.IsZero() {
		started := st.Started
		data.StartTime = &started
		if st.State == supervisor.StateRunning {
			data.Uptime = now.Sub(started)
		}
	}
	return data
}
