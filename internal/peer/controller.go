package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/callroom/internal/models"
)

// Signaler is what the controller needs from the signaling connection.
type Signaler interface {
	JoinRoom(roomID string) error
	Signal(roomID string, data json.RawMessage) error
}

// Call describes the session to start. Initiator is fixed for the life of
// the session: the caller initiates, the callee responds.
type Call struct {
	RoomID    string
	Peer      string
	Type      models.CallType
	Initiator bool
}

type session struct {
	call      Call
	stream    *LocalStream
	pc        PeerConnection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// Controller owns at most one peer session at a time.
type Controller struct {
	signaler Signaler
	media    MediaSource
	newPC    PeerConnectionFactory
	logger   *slog.Logger

	mu      sync.Mutex
	session *session

	onRemoteTrack func(kind webrtc.RTPCodecType)
}

func NewController(signaler Signaler, media MediaSource, newPC PeerConnectionFactory, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		signaler: signaler,
		media:    media,
		newPC:    newPC,
		logger:   logger,
	}
}

// OnRemoteTrack registers a callback for tracks arriving from the peer.
// Call it before StartCall.
func (c *Controller) OnRemoteTrack(f func(kind webrtc.RTPCodecType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemoteTrack = f
}

// Active reports whether a session exists.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Current returns the active call, if any.
func (c *Controller) Current() (Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Call{}, false
	}
	return c.session.call, true
}

func constraintsFor(t models.CallType) Constraints {
	if t == models.CallAudio {
		return Constraints{Audio: true}
	}
	return Constraints{Audio: true, Video: true}
}

// StartCall acquires local media, joins the room and creates the peer
// connection. The initiator sends the offer; the responder waits for one.
// If media cannot be acquired nothing is sent.
func (c *Controller) StartCall(ctx context.Context, call Call) error {
	if call.Type == "" {
		call.Type = models.CallVideo
	}
	if call.RoomID == "" || call.Peer == "" || !call.Type.Valid() {
		return newError("start call", ErrInvalidCall)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return newError("start call", ErrSessionActive)
	}

	stream, err := c.media.GetUserMedia(ctx, constraintsFor(call.Type))
	if err != nil {
		if !errors.Is(err, ErrMediaUnavailable) {
			err = fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
		}
		return newError("acquire media", err)
	}

	if err := c.signaler.JoinRoom(call.RoomID); err != nil {
		stream.Stop()
		return newError("join room", err)
	}

	pc, err := c.newPC()
	if err != nil {
		stream.Stop()
		return newError("create peer connection", err)
	}

	s := &session{call: call, stream: stream, pc: pc}
	if err := c.wire(s); err != nil {
		c.teardown(s)
		return err
	}
	c.session = s

	c.logger.Info("call started", "room", call.RoomID, "peer", call.Peer, "type", call.Type, "initiator", call.Initiator)

	if !call.Initiator {
		return nil
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.endLocked()
		return newError("create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		c.endLocked()
		return newError("set local description", err)
	}
	if err := c.send(call.RoomID, SignalPayload{Type: SignalOffer, SDP: offer.SDP}); err != nil {
		c.endLocked()
		return newError("send offer", err)
	}
	return nil
}

// wire adds the local tracks and installs the peer connection callbacks.
func (c *Controller) wire(s *session) error {
	for _, t := range s.stream.Tracks {
		if _, err := s.pc.AddTrack(t.Track); err != nil {
			return newError("add track", err)
		}
	}

	roomID := s.call.RoomID
	s.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if err := c.send(roomID, SignalPayload{Type: SignalCandidate, Candidate: &init}); err != nil {
			c.logger.Warn("failed to send ICE candidate", "room", roomID, "error", err)
		}
	})

	onRemote := c.onRemoteTrack
	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("remote track", "room", roomID, "kind", track.Kind().String())
		if onRemote != nil {
			onRemote(track.Kind())
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Info("peer connection state", "room", roomID, "state", state.String())
	})
	return nil
}

// HandleSignal feeds a payload from another identity into the session.
// Payloads from anyone but the session's peer are ignored.
func (c *Controller) HandleSignal(from string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return ErrNoSession
	}
	if from != s.call.Peer {
		c.logger.Debug("ignoring signal from non-peer", "from", from, "peer", s.call.Peer)
		return nil
	}

	payload, err := decodeSignal(data)
	if err != nil {
		return newError("decode signal", err)
	}

	switch payload.Type {
	case SignalOffer:
		if s.call.Initiator {
			return newError("handle offer", fmt.Errorf("%w: offer received by initiator", ErrUnexpectedSignal))
		}
		if err := c.setRemote(s, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP}); err != nil {
			return err
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return newError("create answer", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return newError("set local description", err)
		}
		if err := c.send(s.call.RoomID, SignalPayload{Type: SignalAnswer, SDP: answer.SDP}); err != nil {
			return newError("send answer", err)
		}

	case SignalAnswer:
		if !s.call.Initiator {
			return newError("handle answer", fmt.Errorf("%w: answer received by responder", ErrUnexpectedSignal))
		}
		return c.setRemote(s, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: payload.SDP})

	case SignalCandidate:
		if !s.remoteSet {
			s.pending = append(s.pending, *payload.Candidate)
			return nil
		}
		if err := s.pc.AddICECandidate(*payload.Candidate); err != nil {
			return newError("add ICE candidate", err)
		}
	}
	return nil
}

// setRemote applies the remote description and flushes queued candidates.
func (c *Controller) setRemote(s *session, desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return newError("set remote description", err)
	}
	s.remoteSet = true

	pending := s.pending
	s.pending = nil
	for _, candidate := range pending {
		if err := s.pc.AddICECandidate(candidate); err != nil {
			c.logger.Warn("failed to add queued ICE candidate", "error", err)
		}
	}
	return nil
}

// EndCall stops local media and closes the peer connection. Without a
// session it does nothing.
func (c *Controller) EndCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endLocked()
}

func (c *Controller) endLocked() error {
	s := c.session
	if s == nil {
		return nil
	}
	c.session = nil
	err := c.teardown(s)
	c.logger.Info("call ended", "room", s.call.RoomID, "peer", s.call.Peer)
	return err
}

func (c *Controller) teardown(s *session) error {
	s.stream.Stop()
	if err := s.pc.Close(); err != nil {
		return newError("close peer connection", err)
	}
	return nil
}

// ToggleAudio mutes or unmutes the local audio and returns the new state.
func (c *Controller) ToggleAudio() (bool, error) {
	return c.toggle(webrtc.RTPCodecTypeAudio)
}

// ToggleVideo turns the local video on or off and returns the new state.
func (c *Controller) ToggleVideo() (bool, error) {
	return c.toggle(webrtc.RTPCodecTypeVideo)
}

func (c *Controller) toggle(kind webrtc.RTPCodecType) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return false, ErrNoSession
	}
	tracks := c.session.stream.tracksOf(kind)
	if len(tracks) == 0 {
		return false, fmt.Errorf("%w: %s", ErrNoTrack, kind)
	}

	enabled := !tracks[0].Enabled()
	for _, t := range tracks {
		t.SetEnabled(enabled)
	}
	return enabled, nil
}

func (c *Controller) send(roomID string, p SignalPayload) error {
	data, err := encodeSignal(p)
	if err != nil {
		return err
	}
	return c.signaler.Signal(roomID, data)
}
