// Package signaling delivers call-control and WebRTC negotiation envelopes
// between two identified participants. A Transport instance is owned by (or
// injected into) one call machine; there is no process-wide shared handler
// state, and inbound messages fan out to any number of subscribers.
package signaling

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"medconnect-backend/internal/domain"
)

// ConnState classifies the transport's connection to the signaling channel
type ConnState string

const (
	// StateConnecting is set during initial connect and automatic retries.
	StateConnecting ConnState = "connecting"
	// StateConnected means envelopes can be sent and received.
	StateConnected ConnState = "connected"
	// StateFallback means automatic reconnection gave up; a manual Retry is
	// required. Drives the connection-status banner.
	StateFallback ConnState = "fallback"
	// StateClosed means Disconnect was called.
	StateClosed ConnState = "closed"
)

// Transport delivers signaling envelopes point-to-point, addressed by user
// id. Send is fire-and-forget: a nil return means the message was queued
// locally, not that it was delivered. Message loss must be tolerated by the
// caller through timeouts and UI affordances, not transport retries.
type Transport interface {
	// Initialize establishes the transport's identity and connection.
	Initialize(ctx context.Context, localUserID uuid.UUID) error

	// Disconnect tears the transport down and closes all subscriber
	// channels. Idempotent.
	Disconnect() error

	// Send queues an envelope for delivery to msg.To.
	Send(msg *domain.SignalMessage) error

	// Subscribe returns a channel of inbound envelopes and a cancel
	// function. Multiple subscribers each receive every envelope.
	Subscribe() (<-chan *domain.SignalMessage, func())

	// State returns the current connection state.
	State() ConnState

	// OnStateChange registers an observer for state transitions and
	// returns an unregister function.
	OnStateChange(fn func(ConnState)) func()

	// Retry re-attempts the connection after automatic reconnection has
	// given up (StateFallback).
	Retry(ctx context.Context) error
}

// fanout implements the multi-subscriber inbound side shared by the
// websocket and loopback transports.
type fanout struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan *domain.SignalMessage
	closed bool
}

func newFanout() *fanout {
	return &fanout{subs: make(map[int]chan *domain.SignalMessage)}
}

func (f *fanout) subscribe() (<-chan *domain.SignalMessage, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan *domain.SignalMessage, 64)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
}

// publish delivers msg to every subscriber. A subscriber that has fallen
// behind drops the message rather than blocking the read pump.
func (f *fanout) publish(msg *domain.SignalMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// stateNotifier implements OnStateChange observer registration.
type stateNotifier struct {
	mu        sync.Mutex
	nextID    int
	observers map[int]func(ConnState)
}

func newStateNotifier() *stateNotifier {
	return &stateNotifier{observers: make(map[int]func(ConnState))}
}

func (n *stateNotifier) register(fn func(ConnState)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.observers[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.observers, id)
	}
}

func (n *stateNotifier) notify(s ConnState) {
	n.mu.Lock()
	fns := make([]func(ConnState), 0, len(n.observers))
	for _, fn := range n.observers {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
