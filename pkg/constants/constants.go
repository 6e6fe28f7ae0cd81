// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Signaling transport constants
const (
	// SignalRetryBaseDelay is multiplied by the attempt number between
	// reconnection attempts
	SignalRetryBaseDelay = 2 * time.Second

	// SignalMaxRetryAttempts bounds automatic reconnection before the
	// transport drops to fallback mode
	SignalMaxRetryAttempts = 5
)

// Call session constants
const (
	// DefaultRingTimeout bounds how long a call may stay unanswered
	DefaultRingTimeout = 60 * time.Second

	// InCallControlsHideDelay is the pointer-idle time after which the
	// in-call controls auto-hide
	InCallControlsHideDelay = 3 * time.Second
)

// Appointment notification constants
const (
	// NotificationDisplayWindow is how long an appointment notification
	// stays visible before auto-expiring
	NotificationDisplayWindow = 10 * time.Second

	// MaxVisibleNotifications bounds the in-memory notification list
	MaxVisibleNotifications = 50
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is how long an unrefreshed device token stays valid
	PushTokenExpiry = 30 * 24 * time.Hour
)

// Call event archive constants
const (
	// CallEventTTL is the Cassandra retention for archived call events
	CallEventTTL = 90 * 24 * time.Hour
)
