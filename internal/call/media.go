// Package call owns the lifecycle of one local call session: the state
// machine mediating between UI intent, the signaling transport and the
// negotiated peer media session.
package call

import (
	"context"
	"fmt"

	"medconnect-backend/internal/domain"
)

// TrackKind distinguishes audio from video tracks
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// LocalTrack is one independently toggle-able local media track.
type LocalTrack interface {
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	// Stop releases the underlying capture resource. Idempotent.
	Stop()
}

// LocalMedia bundles the camera and microphone tracks acquired for a call.
type LocalMedia struct {
	tracks []LocalTrack
}

// NewLocalMedia wraps the given tracks.
func NewLocalMedia(tracks ...LocalTrack) *LocalMedia {
	return &LocalMedia{tracks: tracks}
}

// Tracks returns all tracks.
func (m *LocalMedia) Tracks() []LocalTrack {
	return m.tracks
}

// TrackOfKind returns the first track of the given kind, or nil.
func (m *LocalMedia) TrackOfKind(kind TrackKind) LocalTrack {
	for _, t := range m.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// StopAll stops every track. Safe to call repeatedly.
func (m *LocalMedia) StopAll() {
	for _, t := range m.tracks {
		t.Stop()
	}
}

// ErrMediaAccess is the typed acquisition failure surfaced to the state
// machine rather than swallowed.
type ErrMediaAccess struct {
	Cause error
}

func (e *ErrMediaAccess) Error() string {
	return fmt.Sprintf("Failed to access camera/microphone: %v", e.Cause)
}

func (e *ErrMediaAccess) Unwrap() error { return e.Cause }

// MediaDevices acquires local camera and microphone tracks. Acquisition
// failures are returned as *ErrMediaAccess.
type MediaDevices interface {
	GetUserMedia(ctx context.Context) (*LocalMedia, error)
}

// RemoteStream is the single remote media stream of a 1:1 call. Remote
// tracks arriving on the peer connection overwrite the previous reference.
type RemoteStream interface {
	ID() string
}

// PeerConnState is the coarse connection state reported by the peer layer
type PeerConnState string

const (
	PeerConnConnecting PeerConnState = "connecting"
	PeerConnConnected  PeerConnState = "connected"
	PeerConnFailed     PeerConnState = "failed"
	PeerConnClosed     PeerConnState = "closed"
)

// PeerCallbacks are invoked by the peer session as negotiation progresses.
// All callbacks may fire from peer-internal goroutines.
type PeerCallbacks struct {
	// OnLocalCandidate fires for each locally gathered ICE candidate.
	OnLocalCandidate func(domain.ICECandidatePayload)
	// OnConnectionState fires on peer-connection state transitions.
	OnConnectionState func(PeerConnState)
	// OnRemoteStream fires when remote media arrives.
	OnRemoteStream func(RemoteStream)
}

// Peer wraps one negotiated real-time transport beneath a single call.
type Peer interface {
	// AttachMedia adds the local tracks to the connection. Must be called
	// before CreateOffer or HandleRemoteOffer.
	AttachMedia(media *LocalMedia) error

	// CreateOffer produces and installs the local session offer.
	CreateOffer(ctx context.Context) (sdp string, err error)

	// HandleRemoteOffer installs the remote offer and produces the local
	// answer in one step.
	HandleRemoteOffer(ctx context.Context, sdp string) (answer string, err error)

	// HandleRemoteAnswer installs the remote answer.
	HandleRemoteAnswer(ctx context.Context, sdp string) error

	// AddICECandidate applies one remote candidate. A failed candidate is
	// a recoverable condition for the caller.
	AddICECandidate(c domain.ICECandidatePayload) error

	// Close releases the connection. Idempotent.
	Close() error
}

// PeerFactory creates one Peer per call attempt.
type PeerFactory interface {
	NewPeer(cb PeerCallbacks) (Peer, error)
}
