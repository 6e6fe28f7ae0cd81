package callview

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"medconnect-backend/internal/domain"
	"medconnect-backend/internal/signaling"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func connectedSession() domain.CallSession {
	remote := domain.Participant{ID: uuid.New(), DisplayName: "J. Alvarez", Role: domain.RolePatient}
	return domain.CallSession{
		Status:            domain.CallStatusConnected,
		Direction:         domain.CallDirectionOutgoing,
		RemoteParticipant: &remote,
	}
}

func TestIncomingPromptVisibleOnlyWhileRingingIncoming(t *testing.T) {
	s := NewSurface()
	assert.False(t, s.IncomingPromptVisible())

	remote := domain.Participant{ID: uuid.New(), DisplayName: "Dr. Okafor", Role: domain.RoleClinician}
	s.ObserveSession(domain.CallSession{
		Status:            domain.CallStatusRinging,
		Direction:         domain.CallDirectionIncoming,
		RemoteParticipant: &remote,
	})
	assert.True(t, s.IncomingPromptVisible())

	// An outgoing call in calling state shows no prompt.
	s.ObserveSession(domain.CallSession{
		Status:    domain.CallStatusCalling,
		Direction: domain.CallDirectionOutgoing,
	})
	assert.False(t, s.IncomingPromptVisible())
}

func TestControlsAutoHideAfterPointerIdle(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newSurface(clock.Now)

	s.ObserveSession(connectedSession())
	s.PointerMoved()
	assert.True(t, s.ControlsVisible())

	clock.Advance(2 * time.Second)
	assert.True(t, s.ControlsVisible())

	clock.Advance(1500 * time.Millisecond)
	assert.False(t, s.ControlsVisible())

	// Pointer activity re-reveals the controls.
	s.PointerMoved()
	assert.True(t, s.ControlsVisible())
}

func TestControlsHiddenOutsideConnected(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newSurface(clock.Now)

	s.PointerMoved()
	assert.False(t, s.ControlsVisible())

	s.ObserveSession(domain.CallSession{Status: domain.CallStatusCalling})
	s.PointerMoved()
	assert.False(t, s.ControlsVisible())
}

func TestBannerTracksFallbackAndDismissal(t *testing.T) {
	s := NewSurface()

	s.ObserveConnState(signaling.StateConnecting)
	assert.False(t, s.BannerVisible())

	s.ObserveConnState(signaling.StateFallback)
	assert.True(t, s.BannerVisible())

	s.DismissBanner()
	assert.False(t, s.BannerVisible())

	// Dismissal is sticky across repeated fallback reports...
	s.ObserveConnState(signaling.StateFallback)
	assert.False(t, s.BannerVisible())

	// ...but a successful reconnect clears it, so the next outage shows
	// the banner again.
	s.ObserveConnState(signaling.StateConnected)
	assert.False(t, s.BannerVisible())
	s.ObserveConnState(signaling.StateFallback)
	assert.True(t, s.BannerVisible())
}

func TestDurationCountsOnlyWhileConnected(t *testing.T) {
	s := NewSurface()

	s.Tick()
	s.Tick()
	assert.Equal(t, 0, s.DurationSeconds())

	s.ObserveSession(connectedSession())
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	assert.Equal(t, 5, s.DurationSeconds())
}

func TestShowFormFreezesDuration(t *testing.T) {
	s := NewSurface()
	s.ObserveSession(connectedSession())

	for i := 0; i < 42; i++ {
		s.Tick()
	}

	frozen := s.ShowForm()
	assert.Equal(t, 42, frozen)
	assert.True(t, s.FormShowing())

	// The counter no longer advances while the form is up.
	s.Tick()
	s.Tick()
	assert.Equal(t, 42, s.DurationSeconds())
}

func TestLeavingConnectedResetsCounterAndForm(t *testing.T) {
	s := NewSurface()
	s.ObserveSession(connectedSession())
	s.Tick()
	s.Tick()
	s.ShowForm()

	s.ObserveSession(*domain.NewIdleSession())
	assert.Equal(t, 0, s.DurationSeconds())
	assert.False(t, s.FormShowing())
}
