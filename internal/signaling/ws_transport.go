package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medconnect-backend/internal/domain"
	"medconnect-backend/pkg/constants"
	"medconnect-backend/pkg/logger"
)

// WSConfig holds WebSocket transport configuration
type WSConfig struct {
	// URL of the signaling endpoint, e.g. wss://host/ws/signal
	URL string
	// AuthToken is sent as a Bearer token during the handshake.
	AuthToken string
	// BaseRetryDelay is multiplied by the attempt number between
	// reconnection attempts (fixed escalating delay).
	BaseRetryDelay time.Duration
	// MaxRetryAttempts bounds automatic reconnection. Beyond it the
	// transport enters StateFallback and requires a manual Retry.
	MaxRetryAttempts int
}

// DefaultWSConfig returns the production defaults for url.
func DefaultWSConfig(url, token string) *WSConfig {
	return &WSConfig{
		URL:              url,
		AuthToken:        token,
		BaseRetryDelay:   constants.SignalRetryBaseDelay,
		MaxRetryAttempts: constants.SignalMaxRetryAttempts,
	}
}

// WSTransport is the production Transport over a persistent WebSocket to
// the signaling hub. Outbound envelopes are queued on a buffered channel
// and written by a single write pump; inbound envelopes fan out to
// subscribers.
type WSTransport struct {
	cfg      *WSConfig
	fanout   *fanout
	notifier *stateNotifier

	mu          sync.Mutex
	localUserID uuid.UUID
	conn        *websocket.Conn
	send        chan []byte
	state       ConnState
	pumpCancel  context.CancelFunc
}

// NewWSTransport creates a transport; no connection is made until
// Initialize.
func NewWSTransport(cfg *WSConfig) *WSTransport {
	return &WSTransport{
		cfg:      cfg,
		fanout:   newFanout(),
		notifier: newStateNotifier(),
		state:    StateClosed,
	}
}

// Initialize connects to the signaling hub as localUserID, retrying with a
// fixed escalating delay up to the configured attempt bound.
func (t *WSTransport) Initialize(ctx context.Context, localUserID uuid.UUID) error {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return nil
	}
	t.localUserID = localUserID
	t.state = StateConnecting
	t.mu.Unlock()
	t.notifier.notify(StateConnecting)

	return t.connectWithRetry(ctx)
}

func (t *WSTransport) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxRetryAttempts; attempt++ {
		if err := t.connect(ctx); err != nil {
			lastErr = err
			delay := time.Duration(attempt) * t.cfg.BaseRetryDelay
			logger.Warn("Signaling connection attempt failed",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				t.setState(StateFallback)
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		t.setState(StateConnected)
		return nil
	}

	t.setState(StateFallback)
	return fmt.Errorf("signaling connection failed after %d attempts: %w",
		t.cfg.MaxRetryAttempts, lastErr)
}

func (t *WSTransport) connect(ctx context.Context) error {
	header := http.Header{}
	if t.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+t.cfg.AuthToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial signaling hub: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.conn = conn
	t.send = make(chan []byte, 256)
	t.pumpCancel = cancel
	t.mu.Unlock()

	go t.readPump(conn)
	go t.writePump(pumpCtx, conn, t.send)
	return nil
}

// Disconnect tears the connection down and closes all subscriber channels.
func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = StateClosed
	conn := t.conn
	cancel := t.pumpCancel
	t.conn = nil
	t.pumpCancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	t.fanout.close()
	t.notifier.notify(StateClosed)
	return nil
}

// Send queues the envelope for the write pump. Fire-and-forget: a nil
// return only means the message was queued.
func (t *WSTransport) Send(msg *domain.SignalMessage) error {
	t.mu.Lock()
	state := t.state
	send := t.send
	from := t.localUserID
	t.mu.Unlock()

	if state != StateConnected || send == nil {
		return fmt.Errorf("signaling transport not connected")
	}

	if msg.From == uuid.Nil {
		msg.From = from
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal message: %w", err)
	}

	select {
	case send <- data:
		return nil
	default:
		return fmt.Errorf("signaling send queue full")
	}
}

// Subscribe returns an inbound envelope channel and its cancel function.
func (t *WSTransport) Subscribe() (<-chan *domain.SignalMessage, func()) {
	return t.fanout.subscribe()
}

// State returns the current connection state.
func (t *WSTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnStateChange registers a state observer.
func (t *WSTransport) OnStateChange(fn func(ConnState)) func() {
	return t.notifier.register(fn)
}

// Retry re-attempts the connection after automatic reconnection gave up.
func (t *WSTransport) Retry(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return nil
	}
	if t.localUserID == uuid.Nil {
		t.mu.Unlock()
		return fmt.Errorf("transport was never initialized")
	}
	t.state = StateConnecting
	t.mu.Unlock()
	t.notifier.notify(StateConnecting)

	return t.connectWithRetry(ctx)
}

func (t *WSTransport) setState(s ConnState) {
	t.mu.Lock()
	if t.state == StateClosed && s != StateClosed {
		// Disconnect raced the connect; leave closed.
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()
	t.notifier.notify(s)
}

// readPump reads envelopes from the hub and fans them out. A read error
// moves the transport to fallback; it does not fail an in-progress call.
func (t *WSTransport) readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			stillCurrent := t.conn == conn
			t.mu.Unlock()
			if stillCurrent {
				logger.Warn("Signaling connection lost", zap.Error(err))
				t.setState(StateFallback)
			}
			return
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Invalid signal message from hub", zap.Error(err))
			continue
		}
		if !msg.Type.Valid() {
			logger.Warn("Unknown signal type from hub", zap.String("type", string(msg.Type)))
			continue
		}
		t.fanout.publish(&msg)
	}
}

// writePump writes queued envelopes and keepalive pings.
func (t *WSTransport) writePump(ctx context.Context, conn *websocket.Conn, send chan []byte) {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ Transport = (*WSTransport)(nil)
