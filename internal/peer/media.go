package peer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Constraints selects which kinds of local media to capture.
type Constraints struct {
	Audio bool
	Video bool
}

// MediaSource acquires local capture tracks. Real device capture lives
// outside this package.
type MediaSource interface {
	GetUserMedia(ctx context.Context, c Constraints) (*LocalStream, error)
}

// LocalTrack is one captured track. A disabled track keeps its place in the
// session but its samples are discarded.
type LocalTrack struct {
	Kind  webrtc.RTPCodecType
	Track webrtc.TrackLocal

	sample  *webrtc.TrackLocalStaticSample
	mu      sync.Mutex
	enabled bool
	stopped bool
}

// NewLocalTrack wraps a pion track. Sample-based tracks can be fed through
// WriteSample.
func NewLocalTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) *LocalTrack {
	t := &LocalTrack{Kind: kind, Track: track, enabled: true}
	if s, ok := track.(*webrtc.TrackLocalStaticSample); ok {
		t.sample = s
	}
	return t
}

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *LocalTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stop ends capture. A stopped track never sends again.
func (t *LocalTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// WriteSample forwards s to the peer unless the track is muted or stopped.
func (t *LocalTrack) WriteSample(s media.Sample) error {
	t.mu.Lock()
	live := t.enabled && !t.stopped
	t.mu.Unlock()

	if !live || t.sample == nil {
		return nil
	}
	return t.sample.WriteSample(s)
}

// LocalStream groups the tracks of one capture.
type LocalStream struct {
	ID     string
	Tracks []*LocalTrack
}

func (s *LocalStream) tracksOf(kind webrtc.RTPCodecType) []*LocalTrack {
	var out []*LocalTrack
	for _, t := range s.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (s *LocalStream) AudioTracks() []*LocalTrack { return s.tracksOf(webrtc.RTPCodecTypeAudio) }
func (s *LocalStream) VideoTracks() []*LocalTrack { return s.tracksOf(webrtc.RTPCodecTypeVideo) }

// Stop stops every track.
func (s *LocalStream) Stop() {
	for _, t := range s.Tracks {
		t.Stop()
	}
}

// SyntheticSource hands out opus and VP8 sample tracks that carry whatever
// the application writes to them. It lets a headless client negotiate a
// real media session without a capture device.
type SyntheticSource struct{}

func (SyntheticSource) GetUserMedia(ctx context.Context, c Constraints) (*LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, ErrMediaUnavailable
	}

	streamID := "callroom-" + uuid.New().String()
	stream := &LocalStream{ID: streamID}

	if c.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID,
		)
		if err != nil {
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, NewLocalTrack(webrtc.RTPCodecTypeAudio, track))
	}
	if c.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", streamID,
		)
		if err != nil {
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, NewLocalTrack(webrtc.RTPCodecTypeVideo, track))
	}
	return stream, nil
}
