package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus represents the lifecycle state of a local call session
type CallStatus string

const (
	CallStatusIdle      CallStatus = "idle"
	CallStatusCalling   CallStatus = "calling"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusFailed    CallStatus = "failed"
)

// Active reports whether the status is a non-terminal, non-idle state.
func (s CallStatus) Active() bool {
	return s == CallStatusCalling || s == CallStatusRinging || s == CallStatusConnected
}

// CallDirection distinguishes locally initiated calls from incoming ones.
// Fixed at session creation.
type CallDirection string

const (
	CallDirectionOutgoing CallDirection = "outgoing"
	CallDirectionIncoming CallDirection = "incoming"
)

// ConnectionQuality is a coarse, advisory classification of the media path
type ConnectionQuality string

const (
	QualityUnknown   ConnectionQuality = "unknown"
	QualityPoor      ConnectionQuality = "poor"
	QualityFair      ConnectionQuality = "fair"
	QualityGood      ConnectionQuality = "good"
	QualityExcellent ConnectionQuality = "excellent"
)

// CallSession is the aggregate root for one call attempt. It is ephemeral
// session state owned by a single call machine and is never persisted;
// terminal outcomes are recorded separately as CallAttempt rows.
type CallSession struct {
	Status            CallStatus        `json:"status"`
	Direction         CallDirection     `json:"direction"`
	RemoteParticipant *Participant      `json:"remote_participant,omitempty"`
	AppointmentID     *uuid.UUID        `json:"appointment_id,omitempty"`
	VideoEnabled      bool              `json:"video_enabled"`
	AudioEnabled      bool              `json:"audio_enabled"`
	Muted             bool              `json:"muted"`
	Quality           ConnectionQuality `json:"quality"`
	ErrorReason       string            `json:"error_reason,omitempty"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
}

// NewIdleSession returns a fresh idle session with default media toggles.
func NewIdleSession() *CallSession {
	return &CallSession{
		Status:       CallStatusIdle,
		Direction:    CallDirectionOutgoing,
		VideoEnabled: true,
		AudioEnabled: true,
		Quality:      QualityUnknown,
	}
}

// IsIncoming reports whether the session was created by a remote initiation.
func (s *CallSession) IsIncoming() bool {
	return s.Direction == CallDirectionIncoming
}

// CallAttempt is the persisted record of a terminal call outcome.
// Maps to the call_attempts table in CockroachDB.
type CallAttempt struct {
	CallID        uuid.UUID  `json:"call_id"`
	CallerID      uuid.UUID  `json:"caller_id"`
	CalleeID      uuid.UUID  `json:"callee_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Outcome       string     `json:"outcome"` // connected, rejected, failed, missed
	FailureReason string     `json:"failure_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Duration      int        `json:"duration,omitempty"` // in seconds
}

// CallEvent is one signaling-level event archived for audit, keyed by the
// sending user. Stored in Cassandra with a retention TTL; advisory data
// only, never read back into live session state.
type CallEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	PeerID    uuid.UUID `json:"peer_id"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
