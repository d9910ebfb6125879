package peer

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/callroom/config"
)

// PeerConnection is the part of *webrtc.PeerConnection a session drives.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// PeerConnectionFactory creates the single peer connection of a session.
type PeerConnectionFactory func() (PeerConnection, error)

// NewPionFactory returns a factory for pion peer connections using the
// client's STUN and TURN servers.
func NewPionFactory(cfg *config.ClientConfig) PeerConnectionFactory {
	stun, turn := cfg.ICEServerURLs()

	var iceServers []webrtc.ICEServer
	if len(stun) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}

	return func() (PeerConnection, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		return pc, nil
	}
}

// Signal types carried in SignalPayload.Type.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalPayload is the negotiation blob exchanged between controllers. The
// server relays it without looking inside.
type SignalPayload struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func encodeSignal(p SignalPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}

func decodeSignal(data json.RawMessage) (SignalPayload, error) {
	var p SignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	switch p.Type {
	case SignalOffer, SignalAnswer:
		if p.SDP == "" {
			return p, fmt.Errorf("%w: %s without sdp", ErrMalformedSignal, p.Type)
		}
	case SignalCandidate:
		if p.Candidate == nil {
			return p, fmt.Errorf("%w: candidate without body", ErrMalformedSignal)
		}
	default:
		return p, fmt.Errorf("%w: unknown type %q", ErrMalformedSignal, p.Type)
	}
	return p, nil
}
