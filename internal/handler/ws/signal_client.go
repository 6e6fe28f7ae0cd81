package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medconnect-backend/internal/domain"
	"medconnect-backend/pkg/constants"
	"medconnect-backend/pkg/logger"
)

// SignalClient is one user's signaling socket.
type SignalClient struct {
	hub    *SignalHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

// readPump reads envelopes from the socket and hands them to the hub.
// The sender identity is always overwritten with the authenticated user
// id; a client cannot spoof From.
func (c *SignalClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("Signaling socket closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Invalid signal message from client",
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			continue
		}
		if !msg.Type.Valid() {
			logger.Warn("Unknown signal type from client",
				zap.String("user_id", c.userID.String()),
				zap.String("type", string(msg.Type)))
			continue
		}
		if msg.To == uuid.Nil {
			continue
		}

		msg.From = c.userID
		msg.SentAt = time.Now()

		c.hub.forward <- &msg
	}
}

// writePump writes queued envelopes and keepalive pings to the socket.
func (c *SignalClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// The presence key carries a TTL; each keepalive extends it
			// so the user stays visible as online.
			if c.hub.presence != nil {
				if err := c.hub.presence.RefreshPresence(c.ctx, c.userID); err != nil {
					logger.Debug("Failed to refresh presence",
						zap.String("user_id", c.userID.String()),
						zap.Error(err))
				}
			}
		}
	}
}
