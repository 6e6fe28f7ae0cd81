package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"medconnect-backend/internal/domain"
)

// Switchboard routes envelopes between in-process loopback transports,
// addressed by user id. It stands in for the real signaling channel in
// tests and local demos; envelopes addressed to an unregistered user are
// silently dropped, matching the at-most-once delivery contract.
type Switchboard struct {
	mu         sync.RWMutex
	transports map[uuid.UUID]*LoopbackTransport
}

// NewSwitchboard creates an empty switchboard.
func NewSwitchboard() *Switchboard {
	return &Switchboard{transports: make(map[uuid.UUID]*LoopbackTransport)}
}

// Transport returns a new loopback transport attached to this switchboard.
// The transport joins the switchboard on Initialize.
func (sb *Switchboard) Transport() *LoopbackTransport {
	return &LoopbackTransport{
		board:    sb,
		fanout:   newFanout(),
		notifier: newStateNotifier(),
		state:    StateClosed,
	}
}

func (sb *Switchboard) attach(t *LoopbackTransport) {
	sb.mu.Lock()
	sb.transports[t.localUserID] = t
	sb.mu.Unlock()
}

func (sb *Switchboard) detach(t *LoopbackTransport) {
	sb.mu.Lock()
	if sb.transports[t.localUserID] == t {
		delete(sb.transports, t.localUserID)
	}
	sb.mu.Unlock()
}

func (sb *Switchboard) route(msg *domain.SignalMessage) {
	sb.mu.RLock()
	target, ok := sb.transports[msg.To]
	sb.mu.RUnlock()
	if ok {
		target.deliver(msg)
	}
}

// LoopbackTransport is the in-memory Transport used by tests and demos.
type LoopbackTransport struct {
	board    *Switchboard
	fanout   *fanout
	notifier *stateNotifier

	mu          sync.Mutex
	localUserID uuid.UUID
	state       ConnState
}

// Initialize registers the transport on the switchboard under localUserID.
func (t *LoopbackTransport) Initialize(_ context.Context, localUserID uuid.UUID) error {
	t.mu.Lock()
	if t.state == StateConnected {
		t.mu.Unlock()
		return nil
	}
	t.localUserID = localUserID
	t.state = StateConnected
	t.mu.Unlock()

	t.board.attach(t)
	t.notifier.notify(StateConnected)
	return nil
}

// Disconnect detaches from the switchboard and closes subscriber channels.
func (t *LoopbackTransport) Disconnect() error {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = StateClosed
	t.mu.Unlock()

	t.board.detach(t)
	t.fanout.close()
	t.notifier.notify(StateClosed)
	return nil
}

// Send routes the envelope synchronously through the switchboard.
func (t *LoopbackTransport) Send(msg *domain.SignalMessage) error {
	t.mu.Lock()
	state := t.state
	from := t.localUserID
	t.mu.Unlock()

	if state != StateConnected {
		return fmt.Errorf("loopback transport not connected")
	}
	if msg.From == uuid.Nil {
		msg.From = from
	}
	t.board.route(msg)
	return nil
}

// Subscribe returns an inbound envelope channel.
func (t *LoopbackTransport) Subscribe() (<-chan *domain.SignalMessage, func()) {
	return t.fanout.subscribe()
}

// State returns the current connection state.
func (t *LoopbackTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnStateChange registers a state observer.
func (t *LoopbackTransport) OnStateChange(fn func(ConnState)) func() {
	return t.notifier.register(fn)
}

// Retry re-attaches to the switchboard under the existing identity.
func (t *LoopbackTransport) Retry(ctx context.Context) error {
	t.mu.Lock()
	id := t.localUserID
	t.mu.Unlock()
	if id == uuid.Nil {
		return fmt.Errorf("loopback transport was never initialized")
	}
	return t.Initialize(ctx, id)
}

func (t *LoopbackTransport) deliver(msg *domain.SignalMessage) {
	t.fanout.publish(msg)
}

var _ Transport = (*LoopbackTransport)(nil)
