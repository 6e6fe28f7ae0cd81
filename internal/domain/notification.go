package domain

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentNotificationType classifies a scheduling event
type AppointmentNotificationType string

const (
	AppointmentScheduled   AppointmentNotificationType = "scheduled"
	AppointmentReminder    AppointmentNotificationType = "reminder"
	AppointmentCancelled   AppointmentNotificationType = "cancelled"
	AppointmentRescheduled AppointmentNotificationType = "rescheduled"
)

// AppointmentNotification is a transient, consumer-facing scheduling alert.
// Held in a bounded in-memory list, deduplicated by ID and auto-expired
// after a fixed display window. Never persisted.
type AppointmentNotification struct {
	ID             uuid.UUID                   `json:"id"`
	Type           AppointmentNotificationType `json:"type"`
	Title          string                      `json:"title"`
	Message        string                      `json:"message"`
	ScheduledAt    time.Time                   `json:"scheduled_at"`
	ParticipantIDs []uuid.UUID                 `json:"participant_ids"`
}

// Involves reports whether userID is named on the notification's
// participant list. Notifications that do not involve the viewer are
// never displayed.
func (n *AppointmentNotification) Involves(userID uuid.UUID) bool {
	for _, id := range n.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}
