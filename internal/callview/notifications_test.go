package callview

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"medconnect-backend/internal/domain"
)

func notificationFor(participants ...uuid.UUID) domain.AppointmentNotification {
	return domain.AppointmentNotification{
		ID:             uuid.New(),
		Type:           domain.AppointmentReminder,
		Title:          "Upcoming appointment",
		Message:        "Consultation starts in 15 minutes",
		ScheduledAt:    time.Now().Add(15 * time.Minute),
		ParticipantIDs: participants,
	}
}

func TestNotificationsDeduplicateByID(t *testing.T) {
	viewer := uuid.New()
	c := NewNotificationCenter(viewer)

	n := notificationFor(viewer)
	c.Add(n)
	c.Add(n)
	c.Add(n)

	assert.Len(t, c.Visible(), 1)
}

func TestNotificationsFilterByViewer(t *testing.T) {
	viewer := uuid.New()
	c := NewNotificationCenter(viewer)

	c.Add(notificationFor(uuid.New(), uuid.New()))
	assert.Empty(t, c.Visible())

	c.Add(notificationFor(uuid.New(), viewer))
	assert.Len(t, c.Visible(), 1)
}

func TestNotificationsExpireAfterDisplayWindow(t *testing.T) {
	viewer := uuid.New()
	clock := &fakeClock{now: time.Now()}
	c := newNotificationCenter(viewer, 10*time.Second, 50, clock.Now)

	c.Add(notificationFor(viewer))
	assert.Len(t, c.Visible(), 1)

	clock.Advance(9 * time.Second)
	assert.Len(t, c.Visible(), 1)

	clock.Advance(2 * time.Second)
	assert.Empty(t, c.Visible())
}

func TestNotificationDismiss(t *testing.T) {
	viewer := uuid.New()
	c := NewNotificationCenter(viewer)

	first := notificationFor(viewer)
	second := notificationFor(viewer)
	c.Add(first)
	c.Add(second)

	c.Dismiss(first.ID)

	visible := c.Visible()
	assert.Len(t, visible, 1)
	assert.Equal(t, second.ID, visible[0].ID)

	// Dismissing an unknown id is a no-op.
	c.Dismiss(uuid.New())
	assert.Len(t, c.Visible(), 1)
}

func TestNotificationsEvictOldestWhenFull(t *testing.T) {
	viewer := uuid.New()
	clock := &fakeClock{now: time.Now()}
	c := newNotificationCenter(viewer, time.Hour, 3, clock.Now)

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		n := notificationFor(viewer)
		n.Message = fmt.Sprintf("notification %d", i)
		ids = append(ids, n.ID)
		c.Add(n)
	}

	visible := c.Visible()
	assert.Len(t, visible, 3)
	for _, n := range visible {
		assert.NotEqual(t, ids[0], n.ID)
	}
}

func TestExpiredEntryMayBeReAdded(t *testing.T) {
	viewer := uuid.New()
	clock := &fakeClock{now: time.Now()}
	c := newNotificationCenter(viewer, 10*time.Second, 50, clock.Now)

	n := notificationFor(viewer)
	c.Add(n)
	clock.Advance(11 * time.Second)
	assert.Empty(t, c.Visible())

	// A repeat of the same scheduling event after expiry displays again.
	c.Add(n)
	assert.Len(t, c.Visible(), 1)
}
