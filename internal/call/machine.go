package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medconnect-backend/internal/domain"
	"medconnect-backend/internal/signaling"
	"medconnect-backend/pkg/logger"
)

// Terminal failure reasons surfaced verbatim to the UI.
const (
	ReasonStartFailed      = "Failed to start call"
	ReasonNegotiateFailed  = "Failed to establish connection"
	ReasonConnectionFailed = "Connection failed"
	ReasonRejected         = "Call was rejected"
	ReasonTimedOut         = "Call timed out"
)

// ToastSink receives fire-and-forget user-facing call events. No delivery
// contract.
type ToastSink interface {
	Toast(title, message string)
}

// Observer receives a snapshot of the session after every transition.
type Observer func(session domain.CallSession)

// Config assembles a Machine's collaborators.
type Config struct {
	LocalUser domain.Participant
	Transport signaling.Transport
	Devices   MediaDevices
	Peers     PeerFactory
	// Toasts may be nil.
	Toasts ToastSink
	// RingTimeout bounds how long a session may sit in calling or ringing
	// before failing. Zero disables the timeout.
	RingTimeout time.Duration
}

// Machine is the single authority over one local call session's lifecycle.
// Exactly one call session is live per machine at a time; terminal
// transitions reset it to a fresh idle session through the single cleanup
// path. All transitions are guarded by one mutex, and every continuation
// of an asynchronous operation re-checks the session generation so that a
// reject or end arriving mid-operation cannot resurrect a torn-down
// session.
type Machine struct {
	cfg Config

	mu      sync.Mutex
	gen     uint64
	session *domain.CallSession
	media   *LocalMedia
	peer    Peer
	remote  RemoteStream
	ringT   *time.Timer

	obsMu     sync.Mutex
	observers []Observer

	stopOnce sync.Once
	unsub    func()
	done     chan struct{}
}

// NewMachine creates a machine with a fresh idle session. Call Start to
// begin consuming inbound signaling.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:     cfg,
		session: domain.NewIdleSession(),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the transport and dispatches inbound envelopes until
// Stop is called or the subscription closes.
func (m *Machine) Start() {
	ch, cancel := m.cfg.Transport.Subscribe()
	m.unsub = cancel

	go func() {
		for {
			select {
			case <-m.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				m.dispatch(msg)
			}
		}
	}()
}

// Stop ends dispatching and tears down any live session without sending
// call-end (the transport may already be gone).
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		if m.unsub != nil {
			m.unsub()
		}
		m.mu.Lock()
		m.resetLocked("")
		m.mu.Unlock()
	})
}

// Session returns a snapshot of the current session.
func (m *Machine) Session() domain.CallSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// OnSession registers an observer invoked with a snapshot after every
// transition.
func (m *Machine) OnSession(fn Observer) {
	m.obsMu.Lock()
	m.observers = append(m.observers, fn)
	m.obsMu.Unlock()
}

// RemoteStream returns the current remote media stream, if any.
func (m *Machine) RemoteStream() RemoteStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// InitiateCall places an outgoing call to target. Valid only from idle.
// Media acquisition and offer creation happen inline; a failure at any
// step moves the session to failed with reason "Failed to start call" and
// releases every partially acquired resource.
func (m *Machine) InitiateCall(ctx context.Context, target domain.Participant, appointmentID *uuid.UUID) error {
	m.mu.Lock()
	if m.session.Status != domain.CallStatusIdle {
		m.mu.Unlock()
		return fmt.Errorf("cannot initiate call from %q", m.session.Status)
	}
	gen := m.gen
	m.session = &domain.CallSession{
		Status:            domain.CallStatusCalling,
		Direction:         domain.CallDirectionOutgoing,
		RemoteParticipant: &target,
		AppointmentID:     appointmentID,
		VideoEnabled:      true,
		AudioEnabled:      true,
		Quality:           domain.QualityUnknown,
	}
	m.mu.Unlock()
	m.publish()

	media, err := m.cfg.Devices.GetUserMedia(ctx)
	if err != nil {
		m.fail(gen, ReasonStartFailed, err)
		return fmt.Errorf("%s: %w", ReasonStartFailed, err)
	}
	if !m.adoptMedia(gen, media) {
		return nil // session was torn down mid-acquisition
	}

	peer, err := m.newPeer(gen)
	if err != nil {
		m.fail(gen, ReasonStartFailed, err)
		return fmt.Errorf("%s: %w", ReasonStartFailed, err)
	}
	if err := peer.AttachMedia(media); err != nil {
		peer.Close()
		m.fail(gen, ReasonStartFailed, err)
		return fmt.Errorf("%s: %w", ReasonStartFailed, err)
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		peer.Close()
		m.fail(gen, ReasonStartFailed, err)
		return fmt.Errorf("%s: %w", ReasonStartFailed, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		peer.Close()
		return nil
	}
	m.peer = peer
	m.startRingTimerLocked(gen)
	m.mu.Unlock()

	m.send(domain.SignalCallInitiate, target.ID, domain.CallInitiatePayload{
		Caller:        m.cfg.LocalUser,
		AppointmentID: appointmentID,
	})
	m.send(domain.SignalOffer, target.ID, domain.SDPPayload{SDP: offer})
	return nil
}

// AnswerCall signals intent to accept an incoming call. Valid only from
// ringing. The media connection itself completes asynchronously when the
// caller's offer arrives and the local answer is produced.
func (m *Machine) AnswerCall() error {
	m.mu.Lock()
	if m.session.Status != domain.CallStatusRinging || m.session.RemoteParticipant == nil {
		m.mu.Unlock()
		return fmt.Errorf("cannot answer call from %q", m.session.Status)
	}
	to := m.session.RemoteParticipant.ID
	m.mu.Unlock()

	m.send(domain.SignalCallAnswer, to, nil)
	return nil
}

// RejectCall declines an incoming call. Valid only from ringing.
func (m *Machine) RejectCall() error {
	m.mu.Lock()
	if m.session.Status != domain.CallStatusRinging || m.session.RemoteParticipant == nil {
		m.mu.Unlock()
		return fmt.Errorf("cannot reject call from %q", m.session.Status)
	}
	to := m.session.RemoteParticipant.ID
	m.resetLocked(ReasonRejected)
	m.mu.Unlock()

	m.send(domain.SignalCallReject, to, domain.CallRejectPayload{})
	m.publish()
	return nil
}

// EndCall ends the call from any non-idle state, notifies the remote
// participant when known, and releases all resources.
func (m *Machine) EndCall() error {
	m.mu.Lock()
	if m.session.Status == domain.CallStatusIdle {
		m.mu.Unlock()
		return fmt.Errorf("no call to end")
	}
	var to uuid.UUID
	if m.session.RemoteParticipant != nil {
		to = m.session.RemoteParticipant.ID
	}
	m.resetLocked("")
	m.mu.Unlock()

	if to != uuid.Nil {
		m.send(domain.SignalCallEnd, to, nil)
	}
	m.publish()
	return nil
}

// ToggleVideo flips the local video track. A no-op when no local media
// exists.
func (m *Machine) ToggleVideo() {
	m.toggleTrack(TrackKindVideo)
}

// ToggleAudio flips the local audio track. A no-op when no local media
// exists.
func (m *Machine) ToggleAudio() {
	m.toggleTrack(TrackKindAudio)
}

// ToggleMute delegates to ToggleAudio and additionally maintains the
// explicit muted flag. The flag mirrors audio-enabled exactly; it is kept
// separate so the UI can later restore an independent mute intent without
// an API change.
func (m *Machine) ToggleMute() {
	m.toggleTrack(TrackKindAudio)
	m.mu.Lock()
	if m.media != nil {
		m.session.Muted = !m.session.AudioEnabled
	}
	m.mu.Unlock()
	m.publish()
}

func (m *Machine) toggleTrack(kind TrackKind) {
	m.mu.Lock()
	if m.media == nil {
		m.mu.Unlock()
		return
	}
	track := m.media.TrackOfKind(kind)
	if track == nil {
		m.mu.Unlock()
		return
	}
	track.SetEnabled(!track.Enabled())
	switch kind {
	case TrackKindAudio:
		m.session.AudioEnabled = track.Enabled()
	case TrackKindVideo:
		m.session.VideoEnabled = track.Enabled()
	}
	m.mu.Unlock()
	m.publish()
}

// dispatch routes one inbound envelope. Envelopes not addressed to the
// local user are dropped.
func (m *Machine) dispatch(msg *domain.SignalMessage) {
	if msg.To != uuid.Nil && msg.To != m.cfg.LocalUser.ID {
		return
	}

	switch msg.Type {
	case domain.SignalCallInitiate:
		m.handleCallInitiate(msg)
	case domain.SignalCallAnswer:
		m.handleCallAnswer()
	case domain.SignalCallReject:
		m.handleCallReject()
	case domain.SignalCallEnd:
		m.handleCallEnd()
	case domain.SignalOffer:
		m.handleOffer(msg)
	case domain.SignalAnswer:
		m.handleAnswer(msg)
	case domain.SignalICECandidate:
		m.handleICECandidate(msg)
	}
}

func (m *Machine) handleCallInitiate(msg *domain.SignalMessage) {
	var payload domain.CallInitiatePayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("Malformed call-initiate payload", zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.session.Status != domain.CallStatusIdle {
		// Already in a call; the unanswered initiation rings out on the
		// caller's side.
		status := m.session.Status
		m.mu.Unlock()
		logger.Info("Dropping call-initiate while busy",
			zap.String("from", msg.From.String()),
			zap.String("status", string(status)))
		return
	}
	caller := payload.Caller
	m.session = &domain.CallSession{
		Status:            domain.CallStatusRinging,
		Direction:         domain.CallDirectionIncoming,
		RemoteParticipant: &caller,
		AppointmentID:     payload.AppointmentID,
		VideoEnabled:      true,
		AudioEnabled:      true,
		Quality:           domain.QualityUnknown,
	}
	gen := m.gen
	m.startRingTimerLocked(gen)
	m.mu.Unlock()

	m.toast("Incoming Call", caller.DisplayName+" is calling you")
	m.publish()
}

func (m *Machine) handleCallAnswer() {
	m.mu.Lock()
	if m.session.Status != domain.CallStatusCalling {
		m.mu.Unlock()
		return
	}
	m.connectLocked()
	m.mu.Unlock()
	m.publish()
}

func (m *Machine) handleCallReject() {
	m.mu.Lock()
	if m.session.Status != domain.CallStatusCalling && m.session.Status != domain.CallStatusRinging {
		m.mu.Unlock()
		return
	}
	// An expected business outcome, not an error: surface ended, then
	// reset.
	m.session.Status = domain.CallStatusEnded
	m.session.ErrorReason = ReasonRejected
	m.mu.Unlock()
	m.publish()

	m.mu.Lock()
	m.resetLocked(ReasonRejected)
	m.mu.Unlock()

	m.toast("Call Rejected", ReasonRejected)
	m.publish()
}

func (m *Machine) handleCallEnd() {
	m.mu.Lock()
	if !m.session.Status.Active() {
		m.mu.Unlock()
		return
	}
	m.session.Status = domain.CallStatusEnded
	m.mu.Unlock()
	m.publish()

	m.mu.Lock()
	m.resetLocked("")
	m.mu.Unlock()
	m.publish()
}

// handleOffer reacts to the caller's session offer. On the callee this is
// where local media and the peer connection are created; any exception
// moves the session to failed.
func (m *Machine) handleOffer(msg *domain.SignalMessage) {
	var payload domain.SDPPayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("Malformed offer payload", zap.Error(err))
		return
	}

	m.mu.Lock()
	if !m.session.Status.Active() {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	peer := m.peer
	var to uuid.UUID
	if m.session.RemoteParticipant != nil {
		to = m.session.RemoteParticipant.ID
	}
	m.mu.Unlock()

	ctx := context.Background()

	if peer == nil {
		media, err := m.cfg.Devices.GetUserMedia(ctx)
		if err != nil {
			m.fail(gen, ReasonNegotiateFailed, err)
			return
		}
		if !m.adoptMedia(gen, media) {
			return
		}
		peer, err = m.newPeer(gen)
		if err != nil {
			m.fail(gen, ReasonNegotiateFailed, err)
			return
		}
		if err := peer.AttachMedia(media); err != nil {
			peer.Close()
			m.fail(gen, ReasonNegotiateFailed, err)
			return
		}
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			peer.Close()
			return
		}
		m.peer = peer
		m.mu.Unlock()
	}

	answer, err := peer.HandleRemoteOffer(ctx, payload.SDP)
	if err != nil {
		m.fail(gen, ReasonNegotiateFailed, err)
		return
	}

	m.mu.Lock()
	stale := m.gen != gen
	m.mu.Unlock()
	if stale {
		return
	}
	m.send(domain.SignalAnswer, to, domain.SDPPayload{SDP: answer})
}

// handleAnswer installs the counterpart's answer. Defensive no-op when no
// peer connection exists.
func (m *Machine) handleAnswer(msg *domain.SignalMessage) {
	var payload domain.SDPPayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("Malformed answer payload", zap.Error(err))
		return
	}

	m.mu.Lock()
	gen := m.gen
	peer := m.peer
	m.mu.Unlock()
	if peer == nil {
		logger.Debug("Answer received with no peer connection")
		return
	}

	if err := peer.HandleRemoteAnswer(context.Background(), payload.SDP); err != nil {
		m.fail(gen, ReasonNegotiateFailed, err)
	}
}

// handleICECandidate applies one remote candidate. A dropped candidate
// must not abort an otherwise viable negotiation, so failures are logged
// and swallowed.
func (m *Machine) handleICECandidate(msg *domain.SignalMessage) {
	var payload domain.ICECandidatePayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("Malformed ICE candidate payload", zap.Error(err))
		return
	}

	m.mu.Lock()
	peer := m.peer
	m.mu.Unlock()
	if peer == nil {
		logger.Debug("ICE candidate received before peer connection; dropped")
		return
	}

	if err := peer.AddICECandidate(payload); err != nil {
		logger.Warn("Failed to apply ICE candidate", zap.Error(err))
	}
}

// handlePeerState reacts to peer-connection-level state changes.
func (m *Machine) handlePeerState(gen uint64, state PeerConnState) {
	switch state {
	case PeerConnConnected:
		m.mu.Lock()
		if m.gen != gen || !m.session.Status.Active() {
			m.mu.Unlock()
			return
		}
		m.connectLocked()
		m.mu.Unlock()
		m.publish()
	case PeerConnFailed:
		m.fail(gen, ReasonConnectionFailed, fmt.Errorf("peer connection failed"))
	}
}

// connectLocked forces the session into connected. Caller holds the lock.
func (m *Machine) connectLocked() {
	m.session.Status = domain.CallStatusConnected
	// Quality-tier detection beyond this binary signal is not implemented.
	m.session.Quality = domain.QualityExcellent
	now := time.Now()
	m.session.StartedAt = &now
	m.stopRingTimerLocked()
}

// newPeer creates a peer wired to this machine's callbacks. Callbacks
// carry the generation so a late event from a closed peer cannot mutate a
// newer session.
func (m *Machine) newPeer(gen uint64) (Peer, error) {
	var to uuid.UUID
	m.mu.Lock()
	if m.session.RemoteParticipant != nil {
		to = m.session.RemoteParticipant.ID
	}
	m.mu.Unlock()

	return m.cfg.Peers.NewPeer(PeerCallbacks{
		OnLocalCandidate: func(c domain.ICECandidatePayload) {
			m.mu.Lock()
			stale := m.gen != gen
			m.mu.Unlock()
			if stale {
				return
			}
			m.send(domain.SignalICECandidate, to, c)
		},
		OnConnectionState: func(s PeerConnState) {
			m.handlePeerState(gen, s)
		},
		OnRemoteStream: func(rs RemoteStream) {
			m.mu.Lock()
			if m.gen == gen {
				m.remote = rs
			}
			m.mu.Unlock()
		},
	})
}

// adoptMedia stores freshly acquired media, or stops it when the session
// it was acquired for is already gone. Returns false in the stale case.
func (m *Machine) adoptMedia(gen uint64, media *LocalMedia) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		media.StopAll()
		return false
	}
	m.media = media
	m.mu.Unlock()
	return true
}

// fail moves the session to failed with reason, publishes the terminal
// snapshot, then resets. Stale generations are ignored.
func (m *Machine) fail(gen uint64, reason string, err error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	logger.Error("Call failed",
		zap.String("reason", reason),
		zap.Error(err))
	m.session.Status = domain.CallStatusFailed
	m.session.ErrorReason = reason
	m.mu.Unlock()
	m.publish()

	m.mu.Lock()
	if m.gen == gen {
		m.resetLocked(reason)
	}
	m.mu.Unlock()

	m.toast("Call Failed", reason)
	m.publish()
}

// resetLocked is the single cleanup path invoked from every terminal
// transition: stops every local track, clears the remote stream, closes
// the peer connection and installs a fresh idle session carrying reason.
// Idempotent. Caller holds the lock.
func (m *Machine) resetLocked(reason string) {
	m.gen++
	m.stopRingTimerLocked()
	if m.media != nil {
		m.media.StopAll()
		m.media = nil
	}
	if m.peer != nil {
		m.peer.Close()
		m.peer = nil
	}
	m.remote = nil
	m.session = domain.NewIdleSession()
	m.session.ErrorReason = reason
}

func (m *Machine) startRingTimerLocked(gen uint64) {
	if m.cfg.RingTimeout <= 0 {
		return
	}
	m.stopRingTimerLocked()
	m.ringT = time.AfterFunc(m.cfg.RingTimeout, func() {
		m.mu.Lock()
		expired := m.gen == gen &&
			(m.session.Status == domain.CallStatusCalling || m.session.Status == domain.CallStatusRinging)
		m.mu.Unlock()
		if expired {
			m.fail(gen, ReasonTimedOut, fmt.Errorf("no answer within %s", m.cfg.RingTimeout))
		}
	})
}

func (m *Machine) stopRingTimerLocked() {
	if m.ringT != nil {
		m.ringT.Stop()
		m.ringT = nil
	}
}

// send queues an envelope on the transport. Fire-and-forget: failures are
// logged, never propagated, and loss is tolerated via timeouts and UI.
func (m *Machine) send(t domain.SignalType, to uuid.UUID, payload any) {
	msg, err := domain.NewSignalMessage(t, m.cfg.LocalUser.ID, to, payload)
	if err != nil {
		logger.Error("Failed to build signal message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := m.cfg.Transport.Send(msg); err != nil {
		logger.Warn("Failed to queue signal message",
			zap.String("type", string(t)),
			zap.Error(err))
	}
}

func (m *Machine) snapshotLocked() domain.CallSession {
	snap := *m.session
	if m.session.RemoteParticipant != nil {
		remote := *m.session.RemoteParticipant
		snap.RemoteParticipant = &remote
	}
	return snap
}

func (m *Machine) publish() {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.obsMu.Lock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.obsMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (m *Machine) toast(title, message string) {
	if m.cfg.Toasts != nil {
		m.cfg.Toasts.Toast(title, message)
	}
}
