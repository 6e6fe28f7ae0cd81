package call

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medconnect-backend/internal/domain"
	"medconnect-backend/internal/signaling"
)

// fakeTrack is a toggle-able, stoppable local track.
type fakeTrack struct {
	mu      sync.Mutex
	kind    TrackKind
	enabled bool
	stopped int
}

func newFakeTrack(kind TrackKind) *fakeTrack {
	return &fakeTrack{kind: kind, enabled: true}
}

func (t *fakeTrack) Kind() TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped++
	t.mu.Unlock()
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakeDevices hands out fresh track pairs, or fails on demand. A non-nil
// gate makes acquisition block until the gate is closed, so tests can
// interleave signaling with an in-flight GetUserMedia.
type fakeDevices struct {
	mu     sync.Mutex
	err    error
	gate   chan struct{}
	tracks [][]*fakeTrack
}

func (d *fakeDevices) GetUserMedia(ctx context.Context) (*LocalMedia, error) {
	d.mu.Lock()
	err := d.err
	gate := d.gate
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if gate != nil {
		<-gate
	}
	d.mu.Lock()
	pair := []*fakeTrack{newFakeTrack(TrackKindAudio), newFakeTrack(TrackKindVideo)}
	d.tracks = append(d.tracks, pair)
	d.mu.Unlock()
	return NewLocalMedia(pair[0], pair[1]), nil
}

func (d *fakeDevices) lastTracks() []*fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tracks) == 0 {
		return nil
	}
	return d.tracks[len(d.tracks)-1]
}

// fakePeer produces canned SDP and reports connected once the remote
// description lands.
type fakePeer struct {
	mu        sync.Mutex
	cb        PeerCallbacks
	attachErr error
	offerErr  error
	closed    int
	attached  bool
	offered   bool
	answered  bool
	remoteICE []domain.ICECandidatePayload
}

func (p *fakePeer) AttachMedia(media *LocalMedia) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attachErr != nil {
		return p.attachErr
	}
	p.attached = true
	return nil
}

func (p *fakePeer) CreateOffer(ctx context.Context) (string, error) {
	p.mu.Lock()
	err := p.offerErr
	p.offered = true
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "offer-sdp", nil
}

func (p *fakePeer) HandleRemoteOffer(ctx context.Context, sdp string) (string, error) {
	p.mu.Lock()
	p.answered = true
	p.mu.Unlock()
	return "answer-sdp", nil
}

// reportConnected simulates the transport-level connection coming up.
func (p *fakePeer) reportConnected() {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb.OnConnectionState != nil {
		cb.OnConnectionState(PeerConnConnected)
	}
}

func (p *fakePeer) HandleRemoteAnswer(ctx context.Context, sdp string) error {
	return nil
}

func (p *fakePeer) AddICECandidate(c domain.ICECandidatePayload) error {
	p.mu.Lock()
	p.remoteICE = append(p.remoteICE, c)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeFactory remembers the peers it created. Per-call errors set on the
// factory are stamped onto every peer it hands out.
type fakeFactory struct {
	mu        sync.Mutex
	err       error
	attachErr error
	offerErr  error
	peers     []*fakePeer
}

func (f *fakeFactory) NewPeer(cb PeerCallbacks) (Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{cb: cb, attachErr: f.attachErr, offerErr: f.offerErr}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) lastPeer() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

type endpoint struct {
	user      domain.Participant
	transport *signaling.LoopbackTransport
	devices   *fakeDevices
	peers     *fakeFactory
	machine   *Machine
}

func newEndpoint(t *testing.T, board *signaling.Switchboard, name string, role domain.Role) *endpoint {
	t.Helper()

	user := domain.Participant{ID: uuid.New(), DisplayName: name, Role: role}
	transport := board.Transport()
	require.NoError(t, transport.Initialize(context.Background(), user.ID))

	devices := &fakeDevices{}
	peers := &fakeFactory{}
	machine := NewMachine(Config{
		LocalUser: user,
		Transport: transport,
		Devices:   devices,
		Peers:     peers,
	})
	machine.Start()
	t.Cleanup(machine.Stop)

	return &endpoint{user: user, transport: transport, devices: devices, peers: peers, machine: machine}
}

func waitForStatus(t *testing.T, m *Machine, want domain.CallStatus) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return m.Session().Status == want
	}, 2*time.Second, 5*time.Millisecond, "machine never reached %q (now %q)", want, m.Session().Status)
}

func TestOutgoingCallFullLifecycle(t *testing.T) {
	board := signaling.NewSwitchboard()
	clinician := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	patient := newEndpoint(t, board, "J. Alvarez", domain.RolePatient)

	require.NoError(t, clinician.machine.InitiateCall(context.Background(), patient.user, nil))
	assert.Equal(t, domain.CallStatusCalling, clinician.machine.Session().Status)

	// The callee rings out and sees the caller's identity before any
	// negotiation completes.
	waitForStatus(t, patient.machine, domain.CallStatusRinging)
	session := patient.machine.Session()
	require.NotNil(t, session.RemoteParticipant)
	assert.Equal(t, clinician.user.ID, session.RemoteParticipant.ID)
	assert.Equal(t, "Dr. Okafor", session.RemoteParticipant.DisplayName)
	assert.True(t, session.IsIncoming())

	require.NoError(t, patient.machine.AnswerCall())

	// The caller connects on call-answer; the callee connects when its
	// peer reports a live connection.
	waitForStatus(t, clinician.machine, domain.CallStatusConnected)
	assert.NotNil(t, clinician.machine.Session().StartedAt)

	// Both sides negotiated real SDP through the transport.
	assert.Eventually(t, func() bool {
		callerPeer := clinician.peers.lastPeer()
		calleePeer := patient.peers.lastPeer()
		return callerPeer != nil && calleePeer != nil && callerPeer.offered && calleePeer.answered
	}, 2*time.Second, 5*time.Millisecond)

	patient.peers.lastPeer().reportConnected()
	waitForStatus(t, patient.machine, domain.CallStatusConnected)

	require.NoError(t, clinician.machine.EndCall())
	assert.Equal(t, domain.CallStatusIdle, clinician.machine.Session().Status)
	waitForStatus(t, patient.machine, domain.CallStatusIdle)

	// Teardown released every capture resource on both sides.
	for _, track := range clinician.devices.lastTracks() {
		assert.GreaterOrEqual(t, track.stopCount(), 1)
	}
	for _, track := range patient.devices.lastTracks() {
		assert.GreaterOrEqual(t, track.stopCount(), 1)
	}
	assert.GreaterOrEqual(t, clinician.peers.lastPeer().closeCount(), 1)
}

func TestRejectCall(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	callee := newEndpoint(t, board, "J. Alvarez", domain.RolePatient)

	rejects := 0
	sub, cancel := caller.transport.Subscribe()
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub {
			if msg.Type == domain.SignalCallReject {
				rejects++
			}
		}
	}()

	require.NoError(t, caller.machine.InitiateCall(context.Background(), callee.user, nil))
	waitForStatus(t, callee.machine, domain.CallStatusRinging)

	require.NoError(t, callee.machine.RejectCall())

	// Exactly one call-reject crosses the wire; the caller lands idle
	// carrying the rejection reason, the callee resets immediately.
	waitForStatus(t, caller.machine, domain.CallStatusIdle)
	assert.Equal(t, ReasonRejected, caller.machine.Session().ErrorReason)
	assert.Equal(t, domain.CallStatusIdle, callee.machine.Session().Status)

	cancel()
	<-done
	assert.Equal(t, 1, rejects)

	// The rejected caller released its media.
	for _, track := range caller.devices.lastTracks() {
		assert.GreaterOrEqual(t, track.stopCount(), 1)
	}
}

func TestInitiateFailsWhenMediaUnavailable(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	target := domain.Participant{ID: uuid.New(), DisplayName: "J. Alvarez", Role: domain.RolePatient}

	caller.devices.err = &ErrMediaAccess{Cause: fmt.Errorf("permission denied")}

	var statuses []domain.CallStatus
	var mu sync.Mutex
	caller.machine.OnSession(func(s domain.CallSession) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})

	err := caller.machine.InitiateCall(context.Background(), target, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ReasonStartFailed)

	session := caller.machine.Session()
	assert.Equal(t, domain.CallStatusIdle, session.Status)
	assert.Equal(t, ReasonStartFailed, session.ErrorReason)

	// Observers saw the terminal failed snapshot before the reset.
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, statuses, domain.CallStatusFailed)
}

func TestInitiateClosesPeerWhenOfferFails(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	target := domain.Participant{ID: uuid.New(), DisplayName: "J. Alvarez", Role: domain.RolePatient}

	caller.peers.offerErr = fmt.Errorf("sdp generation failed")

	err := caller.machine.InitiateCall(context.Background(), target, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ReasonStartFailed)

	session := caller.machine.Session()
	assert.Equal(t, domain.CallStatusIdle, session.Status)
	assert.Equal(t, ReasonStartFailed, session.ErrorReason)

	// The half-built peer connection is closed, not leaked, and the
	// acquired tracks are stopped.
	peer := caller.peers.lastPeer()
	require.NotNil(t, peer)
	assert.GreaterOrEqual(t, peer.closeCount(), 1)
	for _, track := range caller.devices.lastTracks() {
		assert.GreaterOrEqual(t, track.stopCount(), 1)
	}
}

func TestInitiateClosesPeerWhenAttachFails(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	target := domain.Participant{ID: uuid.New(), DisplayName: "J. Alvarez", Role: domain.RolePatient}

	caller.peers.attachErr = fmt.Errorf("track add failed")

	err := caller.machine.InitiateCall(context.Background(), target, nil)
	require.Error(t, err)

	assert.Equal(t, domain.CallStatusIdle, caller.machine.Session().Status)
	peer := caller.peers.lastPeer()
	require.NotNil(t, peer)
	assert.GreaterOrEqual(t, peer.closeCount(), 1)
	for _, track := range caller.devices.lastTracks() {
		assert.GreaterOrEqual(t, track.stopCount(), 1)
	}
}

func TestRejectDuringMediaAcquisition(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	callee := newEndpoint(t, board, "J. Alvarez", domain.RolePatient)

	gate := make(chan struct{})
	caller.devices.gate = gate

	errCh := make(chan error, 1)
	go func() {
		errCh <- caller.machine.InitiateCall(context.Background(), callee.user, nil)
	}()
	waitForStatus(t, caller.machine, domain.CallStatusCalling)

	// The counterpart declines while the camera is still being acquired.
	msg, err := domain.NewSignalMessage(domain.SignalCallReject, callee.user.ID, caller.user.ID,
		domain.CallRejectPayload{})
	require.NoError(t, err)
	require.NoError(t, callee.transport.Send(msg))

	waitForStatus(t, caller.machine, domain.CallStatusIdle)
	assert.Equal(t, ReasonRejected, caller.machine.Session().ErrorReason)

	// Acquisition resolves against the torn-down session: the late tracks
	// are stopped immediately and no peer connection is ever created.
	close(gate)
	require.NoError(t, <-errCh)
	assert.Eventually(t, func() bool {
		tracks := caller.devices.lastTracks()
		if len(tracks) == 0 {
			return false
		}
		for _, track := range tracks {
			if track.stopCount() == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, caller.peers.lastPeer())
	assert.Equal(t, domain.CallStatusIdle, caller.machine.Session().Status)
}

func TestPeerFailureTearsDownSession(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	callee := newEndpoint(t, board, "J. Alvarez", domain.RolePatient)

	require.NoError(t, caller.machine.InitiateCall(context.Background(), callee.user, nil))
	waitForStatus(t, callee.machine, domain.CallStatusRinging)
	require.NoError(t, callee.machine.AnswerCall())
	waitForStatus(t, caller.machine, domain.CallStatusConnected)

	peer := caller.peers.lastPeer()
	require.NotNil(t, peer)
	peer.cb.OnConnectionState(PeerConnFailed)

	waitForStatus(t, caller.machine, domain.CallStatusIdle)
	assert.Equal(t, ReasonConnectionFailed, caller.machine.Session().ErrorReason)
	for _, track := range caller.devices.lastTracks() {
		assert.GreaterOrEqual(t, track.stopCount(), 1)
	}
	assert.GreaterOrEqual(t, peer.closeCount(), 1)
}

func TestTogglesAreNoOpsWithoutMedia(t *testing.T) {
	board := signaling.NewSwitchboard()
	ep := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)

	ep.machine.ToggleVideo()
	ep.machine.ToggleAudio()
	ep.machine.ToggleMute()

	session := ep.machine.Session()
	assert.True(t, session.VideoEnabled)
	assert.True(t, session.AudioEnabled)
	assert.False(t, session.Muted)
}

func TestToggleMuteMirrorsAudio(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	callee := newEndpoint(t, board, "J. Alvarez", domain.RolePatient)

	require.NoError(t, caller.machine.InitiateCall(context.Background(), callee.user, nil))
	waitForStatus(t, callee.machine, domain.CallStatusRinging)
	require.NoError(t, callee.machine.AnswerCall())
	waitForStatus(t, caller.machine, domain.CallStatusConnected)

	caller.machine.ToggleMute()
	session := caller.machine.Session()
	assert.False(t, session.AudioEnabled)
	assert.True(t, session.Muted)

	caller.machine.ToggleMute()
	session = caller.machine.Session()
	assert.True(t, session.AudioEnabled)
	assert.False(t, session.Muted)

	caller.machine.ToggleVideo()
	assert.False(t, caller.machine.Session().VideoEnabled)
	assert.False(t, caller.machine.Session().Muted)
}

func TestEarlyICECandidateIsDropped(t *testing.T) {
	board := signaling.NewSwitchboard()
	sender := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	receiver := newEndpoint(t, board, "J. Alvarez", domain.RolePatient)

	// A candidate arriving before any peer connection exists is dropped
	// without disturbing the session.
	msg, err := domain.NewSignalMessage(domain.SignalICECandidate, sender.user.ID, receiver.user.ID,
		domain.ICECandidatePayload{Candidate: "candidate:early"})
	require.NoError(t, err)
	require.NoError(t, sender.transport.Send(msg))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.CallStatusIdle, receiver.machine.Session().Status)

	// The stray candidate must not poison a subsequent, correctly ordered
	// negotiation between the same pair.
	require.NoError(t, sender.machine.InitiateCall(context.Background(), receiver.user, nil))
	waitForStatus(t, receiver.machine, domain.CallStatusRinging)
	require.NoError(t, receiver.machine.AnswerCall())
	waitForStatus(t, sender.machine, domain.CallStatusConnected)

	assert.Eventually(t, func() bool {
		peer := receiver.peers.lastPeer()
		return peer != nil && peer.answered
	}, 2*time.Second, 5*time.Millisecond)
	receiver.peers.lastPeer().reportConnected()
	waitForStatus(t, receiver.machine, domain.CallStatusConnected)
}

func TestIncomingInitiateWhileBusyIsDropped(t *testing.T) {
	board := signaling.NewSwitchboard()
	caller := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)
	callee := newEndpoint(t, board, "J. Alvarez", domain.RolePatient)
	other := newEndpoint(t, board, "Dr. Singh", domain.RoleClinician)

	require.NoError(t, caller.machine.InitiateCall(context.Background(), callee.user, nil))
	waitForStatus(t, callee.machine, domain.CallStatusRinging)
	require.NoError(t, callee.machine.AnswerCall())
	assert.Eventually(t, func() bool { return callee.peers.lastPeer() != nil }, 2*time.Second, 5*time.Millisecond)
	callee.peers.lastPeer().reportConnected()
	waitForStatus(t, callee.machine, domain.CallStatusConnected)

	require.NoError(t, other.machine.InitiateCall(context.Background(), callee.user, nil))

	// The busy callee keeps its live session; the second caller rings out.
	time.Sleep(50 * time.Millisecond)
	session := callee.machine.Session()
	assert.Equal(t, domain.CallStatusConnected, session.Status)
	require.NotNil(t, session.RemoteParticipant)
	assert.Equal(t, caller.user.ID, session.RemoteParticipant.ID)
}

func TestRingTimeout(t *testing.T) {
	board := signaling.NewSwitchboard()
	user := domain.Participant{ID: uuid.New(), DisplayName: "Dr. Okafor", Role: domain.RoleClinician}
	transport := board.Transport()
	require.NoError(t, transport.Initialize(context.Background(), user.ID))

	devices := &fakeDevices{}
	machine := NewMachine(Config{
		LocalUser:   user,
		Transport:   transport,
		Devices:     devices,
		Peers:       &fakeFactory{},
		RingTimeout: 30 * time.Millisecond,
	})
	machine.Start()
	defer machine.Stop()

	target := domain.Participant{ID: uuid.New(), DisplayName: "J. Alvarez", Role: domain.RolePatient}
	require.NoError(t, machine.InitiateCall(context.Background(), target, nil))

	waitForStatus(t, machine, domain.CallStatusIdle)
	assert.Equal(t, ReasonTimedOut, machine.Session().ErrorReason)
	for _, track := range devices.lastTracks() {
		assert.GreaterOrEqual(t, track.stopCount(), 1)
	}
}

func TestAnswerOnlyValidFromRinging(t *testing.T) {
	board := signaling.NewSwitchboard()
	ep := newEndpoint(t, board, "Dr. Okafor", domain.RoleClinician)

	assert.Error(t, ep.machine.AnswerCall())
	assert.Error(t, ep.machine.RejectCall())
	assert.Error(t, ep.machine.EndCall())
}
