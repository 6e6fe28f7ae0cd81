package callview

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"medconnect-backend/internal/domain"
	"medconnect-backend/pkg/constants"
)

type notificationEntry struct {
	notification domain.AppointmentNotification
	addedAt      time.Time
}

// NotificationCenter holds the transient appointment notifications shown
// to one viewer. Entries are deduplicated by id, capped, and auto-expired
// after the fixed display window or on explicit dismissal. Notifications
// that do not name the viewer among their participants are never added.
type NotificationCenter struct {
	viewerID uuid.UUID
	window   time.Duration
	maxSize  int
	now      func() time.Time

	mu      sync.Mutex
	entries []notificationEntry
}

// NewNotificationCenter creates a center for viewerID with the default
// display window and size bound.
func NewNotificationCenter(viewerID uuid.UUID) *NotificationCenter {
	return newNotificationCenter(viewerID, constants.NotificationDisplayWindow,
		constants.MaxVisibleNotifications, time.Now)
}

func newNotificationCenter(viewerID uuid.UUID, window time.Duration, maxSize int, now func() time.Time) *NotificationCenter {
	return &NotificationCenter{
		viewerID: viewerID,
		window:   window,
		maxSize:  maxSize,
		now:      now,
	}
}

// Add ingests a notification. Duplicates sharing an id coalesce to the
// existing visible entry; notifications not involving the viewer are
// dropped. The oldest entry is evicted when the list is full.
func (c *NotificationCenter) Add(n domain.AppointmentNotification) {
	if !n.Involves(c.viewerID) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()

	for _, e := range c.entries {
		if e.notification.ID == n.ID {
			return
		}
	}

	if len(c.entries) >= c.maxSize {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, notificationEntry{notification: n, addedAt: c.now()})
}

// Dismiss removes the entry with the given id, if present.
func (c *NotificationCenter) Dismiss(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.notification.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// Visible returns the currently displayable notifications, oldest first,
// pruning anything past the display window.
func (c *NotificationCenter) Visible() []domain.AppointmentNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()

	out := make([]domain.AppointmentNotification, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.notification
	}
	return out
}

func (c *NotificationCenter) pruneLocked() {
	cutoff := c.now().Add(-c.window)
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.addedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	c.entries = kept
}
