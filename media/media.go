// Package media provides the local capture primitive shared across every
// peer connection of a call.
package media

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrMediaAccess is returned when no capture source can be provided.
var ErrMediaAccess = errors.New("media access denied")

// Stream is the acquired local media source. Tracks are shared read-only
// across all peer connections created for a call.
type Stream struct {
	tracks []webrtc.TrackLocal
}

func (s *Stream) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

// Acquire creates local sample tracks for the requested kinds. Requesting
// nothing fails with ErrMediaAccess, as does a track allocation failure.
func Acquire(video, audio bool) (*Stream, error) {
	if !video && !audio {
		return nil, ErrMediaAccess
	}
	var tracks []webrtc.TrackLocal
	if video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "roomcall",
		)
		if err != nil {
			return nil, errors.Join(ErrMediaAccess, err)
		}
		tracks = append(tracks, track)
	}
	if audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "roomcall",
		)
		if err != nil {
			return nil, errors.Join(ErrMediaAccess, err)
		}
		tracks = append(tracks, track)
	}
	return &Stream{tracks: tracks}, nil
}
