package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"medconnect-backend/internal/domain"
)

// DefaultSTUNServers is the fixed set of public STUN servers used for ICE.
// No TURN fallback is configured; deployments behind symmetric NATs need a
// relay added here.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// PionFactory creates peers backed by pion/webrtc.
type PionFactory struct {
	config webrtc.Configuration
}

// NewPionFactory builds a factory using the given STUN URLs, falling back
// to DefaultSTUNServers when none are given.
func NewPionFactory(stunURLs []string) *PionFactory {
	if len(stunURLs) == 0 {
		stunURLs = DefaultSTUNServers
	}
	return &PionFactory{
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
		},
	}
}

// NewPeer creates a pion peer connection wired to cb.
func (f *PionFactory) NewPeer(cb PeerCallbacks) (Peer, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cb.OnLocalCandidate == nil {
			return
		}
		init := c.ToJSON()
		cb.OnLocalCandidate(domain.ICECandidatePayload{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if cb.OnConnectionState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			cb.OnConnectionState(PeerConnConnected)
		case webrtc.PeerConnectionStateFailed:
			cb.OnConnectionState(PeerConnFailed)
		case webrtc.PeerConnectionStateClosed:
			cb.OnConnectionState(PeerConnClosed)
		default:
			cb.OnConnectionState(PeerConnConnecting)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if cb.OnRemoteStream == nil {
			return
		}
		cb.OnRemoteStream(&pionRemoteStream{id: track.StreamID()})
	})

	return &pionPeer{pc: pc}, nil
}

type pionRemoteStream struct {
	id string
}

func (s *pionRemoteStream) ID() string { return s.id }

type pionPeer struct {
	pc        *webrtc.PeerConnection
	closeOnce sync.Once
}

func (p *pionPeer) AttachMedia(m *LocalMedia) error {
	for _, t := range m.Tracks() {
		pt, ok := t.(*PionTrack)
		if !ok {
			return fmt.Errorf("track %s is not a pion track", t.Kind())
		}
		if _, err := p.pc.AddTrack(pt.local); err != nil {
			return fmt.Errorf("failed to add %s track: %w", t.Kind(), err)
		}
	}
	return nil
}

func (p *pionPeer) CreateOffer(_ context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return offer.SDP, nil
}

func (p *pionPeer) HandleRemoteOffer(_ context.Context, sdp string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return "", fmt.Errorf("failed to set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return answer.SDP, nil
}

func (p *pionPeer) HandleRemoteAnswer(_ context.Context, sdp string) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("failed to set remote answer: %w", err)
	}
	return nil
}

func (p *pionPeer) AddICECandidate(c domain.ICECandidatePayload) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (p *pionPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.pc.Close()
	})
	return err
}

// PionTrack is a local media track backed by a pion static-sample track.
// The hosting application pumps captured frames through WriteSample; the
// Enabled flag gates whether samples reach the wire, which is how
// mute/video-off behave without renegotiation.
type PionTrack struct {
	kind  TrackKind
	local *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func (t *PionTrack) Kind() TrackKind { return t.kind }

func (t *PionTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *PionTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *PionTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.enabled = false
	t.mu.Unlock()
}

// WriteSample forwards one captured sample while the track is enabled.
// Samples written to a disabled or stopped track are dropped.
func (t *PionTrack) WriteSample(s media.Sample) error {
	t.mu.Lock()
	ok := t.enabled && !t.stopped
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return t.local.WriteSample(s)
}

// PionDevices acquires a pion-backed camera+microphone track pair. The
// binding of capture hardware to WriteSample calls is the hosting
// application's concern; this layer owns track identity and lifecycle.
type PionDevices struct{}

// NewPionDevices creates the production MediaDevices.
func NewPionDevices() *PionDevices { return &PionDevices{} }

// GetUserMedia creates one opus audio track and one VP8 video track.
func (d *PionDevices) GetUserMedia(_ context.Context) (*LocalMedia, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "medconnect")
	if err != nil {
		return nil, &ErrMediaAccess{Cause: err}
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "medconnect")
	if err != nil {
		return nil, &ErrMediaAccess{Cause: err}
	}

	return NewLocalMedia(
		&PionTrack{kind: TrackKindAudio, local: audio, enabled: true},
		&PionTrack{kind: TrackKindVideo, local: video, enabled: true},
	), nil
}

var (
	_ PeerFactory  = (*PionFactory)(nil)
	_ MediaDevices = (*PionDevices)(nil)
	_ LocalTrack   = (*PionTrack)(nil)
)
