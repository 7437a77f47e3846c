package streaming

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// TrackSink writes units as samples to a local WebRTC track. Attaching the
// track to a peer connection is up to the embedding application.
type TrackSink struct {
	track *webrtc.TrackLocalStaticSample
}

// NewTrackSink creates an H.264 sample track.
func NewTrackSink(trackID, streamID string) (*TrackSink, error) {
	if trackID == "" {
		trackID = "video"
	}
	if streamID == "" {
		streamID = "v4l2cast"
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		trackID, streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}
	return &TrackSink{track: track}, nil
}

// Track returns the underlying track for use with AddTrack.
func (s *TrackSink) Track() *webrtc.TrackLocalStaticSample {
	return s.track
}

func (s *TrackSink) WriteUnit(unit []byte, duration time.Duration) error {
	return s.track.WriteSample(media.Sample{Data: unit, Duration: duration})
}

func (s *TrackSink) Close() error { return nil }
