// Package peertest provides in-memory stand-ins for the media and peer
// connection collaborators of peer.Controller.
package peertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/callroom/internal/peer"
)

// Media is a MediaSource that records requests and can be told to fail.
type Media struct {
	mu       sync.Mutex
	Fail     bool
	Requests []peer.Constraints
	Streams  []*peer.LocalStream
}

var errNoDevice = errors.New("no capture device")

func (m *Media) GetUserMedia(ctx context.Context, c peer.Constraints) (*peer.LocalStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, c)
	if m.Fail {
		return nil, errNoDevice
	}
	stream, err := peer.SyntheticSource{}.GetUserMedia(ctx, c)
	if err != nil {
		return nil, err
	}
	m.Streams = append(m.Streams, stream)
	return stream, nil
}

// PeerConnection records every call a session makes. SDP strings are
// synthesized so two fakes can negotiate through a real signaling path.
type PeerConnection struct {
	mu          sync.Mutex
	Tracks      []webrtc.TrackLocal
	Local       *webrtc.SessionDescription
	Remote      *webrtc.SessionDescription
	Candidates  []webrtc.ICECandidateInit
	Closed      bool
	onCandidate func(*webrtc.ICECandidate)
	onTrack     func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	seq         int
}

func (p *PeerConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Tracks = append(p.Tracks, track)
	return nil, nil
}

func (p *PeerConnection) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return p.describe(webrtc.SDPTypeOffer), nil
}

func (p *PeerConnection) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	remote := p.Remote
	p.mu.Unlock()
	if remote == nil || remote.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return p.describe(webrtc.SDPTypeAnswer), nil
}

func (p *PeerConnection) describe(t webrtc.SDPType) webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return webrtc.SessionDescription{Type: t, SDP: fmt.Sprintf("v=0 %s %d tracks=%d", t, p.seq, len(p.Tracks))}
}

// SetLocalDescription stores desc and emits one host candidate, the way a
// real connection starts gathering.
func (p *PeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	p.Local = &desc
	onCandidate := p.onCandidate
	p.mu.Unlock()

	if onCandidate != nil {
		onCandidate(&webrtc.ICECandidate{
			Foundation: "1",
			Priority:   1,
			Address:    "127.0.0.1",
			Protocol:   webrtc.ICEProtocolUDP,
			Port:       50000,
			Typ:        webrtc.ICECandidateTypeHost,
			Component:  1,
		})
	}
	return nil
}

func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Remote = &desc
	return nil
}

func (p *PeerConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Remote == nil {
		return errors.New("remote description not set")
	}
	p.Candidates = append(p.Candidates, c)
	return nil
}

func (p *PeerConnection) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = f
}

func (p *PeerConnection) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = f
}

func (p *PeerConnection) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Snapshot returns copies of the recorded state.
func (p *PeerConnection) Snapshot() (local, remote *webrtc.SessionDescription, candidates int, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Local, p.Remote, len(p.Candidates), p.Closed
}

// Factory hands out fakes and remembers them in creation order.
type Factory struct {
	mu    sync.Mutex
	Fail  bool
	Conns []*PeerConnection
}

func (f *Factory) New() (peer.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail {
		return nil, errors.New("peer connection refused")
	}
	pc := &PeerConnection{}
	f.Conns = append(f.Conns, pc)
	return pc, nil
}

// Last returns the most recently created fake, or nil.
func (f *Factory) Last() *PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Conns) == 0 {
		return nil
	}
	return f.Conns[len(f.Conns)-1]
}
