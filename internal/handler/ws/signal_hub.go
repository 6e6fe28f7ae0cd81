// Package ws carries the server side of call signaling: one WebSocket per
// authenticated user, with envelopes routed point-to-point by user id and
// fanned out across service instances over Redis Pub/Sub.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medconnect-backend/internal/database"
	"medconnect-backend/internal/domain"
	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/metrics"
)

// Presence marks users online/offline as their signaling socket comes and
// goes. IsUserOnline answers cluster-wide, not just for this instance.
type Presence interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
	IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}

// CallAlerter pushes an incoming-call alert to a user with no live
// signaling socket. Fire-and-forget.
type CallAlerter interface {
	AlertIncomingCall(ctx context.Context, calleeID uuid.UUID, caller domain.Participant) error
}

// EventArchiver records signaling events for audit.
type EventArchiver interface {
	Archive(ctx context.Context, event *domain.CallEvent) error
}

// SignalHub routes signaling envelopes between connected users. Exactly
// one client per user id may be registered; a newer socket replaces the
// older one.
type SignalHub struct {
	// Registered clients by user id
	clients map[uuid.UUID]*SignalClient

	// Cancel functions for per-user Redis subscriptions
	subscriptionCancels map[uuid.UUID]context.CancelFunc

	redisClient *database.RedisClient
	presence    Presence
	alerter     CallAlerter
	archiver    EventArchiver

	mu sync.RWMutex

	register   chan *SignalClient
	unregister chan *SignalClient
	forward    chan *domain.SignalMessage

	// Concurrency limit for WebSocket connections
	maxConnections int
	semaphore      chan struct{}
}

// NewSignalHub creates a hub and starts its run loop. redisClient,
// presence, alerter and archiver may each be nil; the hub degrades to
// single-instance, best-effort behavior without them.
func NewSignalHub(redisClient *database.RedisClient, presence Presence, alerter CallAlerter, archiver EventArchiver) *SignalHub {
	maxConns := 1000
	if val := os.Getenv("WS_MAX_SIGNALING_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			maxConns = n
		}
	}

	hub := &SignalHub{
		clients:             make(map[uuid.UUID]*SignalClient),
		subscriptionCancels: make(map[uuid.UUID]context.CancelFunc),
		redisClient:         redisClient,
		presence:            presence,
		alerter:             alerter,
		archiver:            archiver,
		register:            make(chan *SignalClient),
		unregister:          make(chan *SignalClient),
		forward:             make(chan *domain.SignalMessage, 256),
		maxConnections:      maxConns,
		semaphore:           make(chan struct{}, maxConns),
	}

	go hub.run()

	return hub
}

func (h *SignalHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.userID]; ok {
				// Replace a stale socket for the same user
				close(old.send)
				old.cancel()
			}
			h.clients[client.userID] = client
			if h.redisClient != nil {
				if _, ok := h.subscriptionCancels[client.userID]; !ok {
					ctx, cancel := context.WithCancel(context.Background())
					h.subscriptionCancels[client.userID] = cancel
					go h.subscribeToUser(ctx, client.userID)
				}
			}
			h.mu.Unlock()

			metrics.SignalConnectionsActive.Inc()
			if h.presence != nil {
				if err := h.presence.SetUserOnline(context.Background(), client.userID); err != nil {
					logger.Warn("Failed to mark user online", zap.Error(err))
				}
			}

		case client := <-h.unregister:
			// Every socket passes through here exactly once when its
			// readPump exits, including sockets replaced by a newer one,
			// so this is where its connection slot is returned.
			<-h.semaphore
			h.mu.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
				client.cancel()
				if cancel, ok := h.subscriptionCancels[client.userID]; ok {
					cancel()
					delete(h.subscriptionCancels, client.userID)
				}
			}
			h.mu.Unlock()

			metrics.SignalConnectionsActive.Dec()
			if h.presence != nil {
				if err := h.presence.SetUserOffline(context.Background(), client.userID); err != nil {
					logger.Warn("Failed to mark user offline", zap.Error(err))
				}
			}

		case msg := <-h.forward:
			h.route(msg)
		}
	}
}

// route delivers one envelope: locally when the target's socket is on
// this instance, via Redis otherwise. An unreachable callee with a
// pending call-initiate gets a push alert; everything else is dropped
// (at-most-once delivery).
func (h *SignalHub) route(msg *domain.SignalMessage) {
	metrics.SignalMessagesRouted.WithLabelValues(string(msg.Type)).Inc()
	h.archive(msg)

	h.mu.RLock()
	client, local := h.clients[msg.To]
	h.mu.RUnlock()

	if local {
		data, err := json.Marshal(msg)
		if err != nil {
			logger.Error("Failed to marshal signal message", zap.Error(err))
			return
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the socket, readPump will unregister.
			client.conn.Close()
		}
		return
	}

	if h.redisClient != nil {
		data, err := json.Marshal(msg)
		if err != nil {
			logger.Error("Failed to marshal signal message", zap.Error(err))
			return
		}
		channel := fmt.Sprintf("signal:%s", msg.To)
		if err := h.redisClient.SafePublish(context.Background(), channel, data).Err(); err == nil {
			// Another instance may hold the socket. Push-alert only
			// when the callee is offline cluster-wide.
			if h.presence != nil {
				if online, err := h.presence.IsUserOnline(context.Background(), msg.To); err == nil && online {
					return
				}
			} else {
				return
			}
		}
	}

	h.alertIfInitiate(msg)
}

func (h *SignalHub) alertIfInitiate(msg *domain.SignalMessage) {
	if h.alerter == nil || msg.Type != domain.SignalCallInitiate {
		return
	}
	var payload domain.CallInitiatePayload
	if err := msg.DecodePayload(&payload); err != nil {
		logger.Warn("Malformed call-initiate payload for alert", zap.Error(err))
		return
	}
	if err := h.alerter.AlertIncomingCall(context.Background(), msg.To, payload.Caller); err != nil {
		logger.Warn("Failed to push incoming-call alert",
			zap.String("callee_id", msg.To.String()),
			zap.Error(err))
	}
}

func (h *SignalHub) archive(msg *domain.SignalMessage) {
	if h.archiver == nil {
		return
	}
	event := &domain.CallEvent{
		UserID:    msg.From,
		PeerID:    msg.To,
		EventType: string(msg.Type),
		CreatedAt: time.Now(),
	}
	if err := h.archiver.Archive(context.Background(), event); err != nil {
		logger.Debug("Failed to archive call event", zap.Error(err))
	}
}

// subscribeToUser delivers envelopes published for userID by other
// instances.
func (h *SignalHub) subscribeToUser(ctx context.Context, userID uuid.UUID) {
	channel := fmt.Sprintf("signal:%s", userID)

	pubsub := h.redisClient.SafeSubscribe(ctx, channel)
	if pubsub == nil {
		return
	}
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("Failed to subscribe to signal channel",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ch:
			if m == nil {
				continue
			}
			var msg domain.SignalMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("Failed to unmarshal published signal",
					zap.String("user_id", userID.String()),
					zap.Error(err))
				continue
			}

			h.mu.RLock()
			client, ok := h.clients[userID]
			h.mu.RUnlock()
			if !ok {
				continue
			}
			select {
			case client.send <- []byte(m.Payload):
			default:
			}
		}
	}
}

// GetAllowedOrigins returns allowed WebSocket origins from environment or defaults
func GetAllowedOrigins() map[string]bool {
	allowedOrigins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return allowedOrigins
}

var signalUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Require an explicit origin
			return false
		}
		allowedOrigins := GetAllowedOrigins()
		for allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	},
}

// ServeWS upgrades an authenticated request to the signaling socket. The
// connection slot acquired here is held for the socket's lifetime; the
// hub releases it when the client unregisters.
func (h *SignalHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("Signaling connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		<-h.semaphore
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		<-h.semaphore
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := signalUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &SignalClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}
