package supervisor

import (
	"time"

	"github.com/smazurov/v4l2cast/internal/capture"
)

// State is the lifecycle state of the supervisor.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

// Status is a snapshot of the supervisor and its current session.
type Status struct {
	State     State
	SessionID string
	Camera    string
	Encoder   string
	// Started is zero until both devices stream.
	Started   time.Time
	Failures  int
	LastError string
	// Stats of the running session, or of the last one when none runs.
	Stats capture.Stats
	last  *capture.Stats
}

// Status returns the current snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	switch {
	case s.pipeline != nil:
		st.Stats = s.pipeline.Stats()
	case s.status.last != nil:
		st.Stats = *s.status.last
	}
	st.last = nil
	return st
}
