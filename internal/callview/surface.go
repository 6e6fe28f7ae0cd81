// Package callview models the state-driven behavior of the call UI
// surface: incoming-call prompt, in-call controls, connection-status
// banner and the call-duration counter. It owns no pixels; the hosting
// dashboard renders from the booleans computed here.
package callview

import (
	"sync"
	"time"

	"medconnect-backend/internal/domain"
	"medconnect-backend/internal/signaling"
	"medconnect-backend/pkg/constants"
)

// Surface derives UI visibility state from call-session snapshots and
// signaling connection state. Feed it via ObserveSession and
// ObserveConnState (registered as machine/transport observers) and with
// one Tick per second.
type Surface struct {
	mu sync.Mutex

	session   domain.CallSession
	connState signaling.ConnState

	bannerDismissed bool
	lastPointer     time.Time
	formShowing     bool
	durationSecs    int

	now func() time.Time
}

// NewSurface creates a surface with the wall clock.
func NewSurface() *Surface {
	return newSurface(time.Now)
}

func newSurface(now func() time.Time) *Surface {
	return &Surface{
		session:   *domain.NewIdleSession(),
		connState: signaling.StateClosed,
		now:       now,
	}
}

// ObserveSession ingests a session snapshot. Leaving connected resets the
// duration counter and the form state.
func (s *Surface) ObserveSession(session domain.CallSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status == domain.CallStatusConnected && session.Status != domain.CallStatusConnected {
		s.durationSecs = 0
		s.formShowing = false
	}
	s.session = session
}

// ObserveConnState ingests a transport state. A successful retry clears a
// manual banner dismissal.
func (s *Surface) ObserveConnState(state signaling.ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == signaling.StateConnected {
		s.bannerDismissed = false
	}
	s.connState = state
}

// IncomingPromptVisible reports whether the incoming-call prompt
// (answer/reject) should show: exactly when the session is ringing and
// incoming.
func (s *Surface) IncomingPromptVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Status == domain.CallStatusRinging && s.session.IsIncoming()
}

// PointerMoved records pointer activity, which re-reveals the in-call
// controls.
func (s *Surface) PointerMoved() {
	s.mu.Lock()
	s.lastPointer = s.now()
	s.mu.Unlock()
}

// ControlsVisible reports whether the in-call controls (mute, video
// toggle, end-call, fullscreen) should render: only while connected, and
// auto-hidden after pointer inactivity. A display affordance only.
func (s *Surface) ControlsVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Status != domain.CallStatusConnected {
		return false
	}
	return s.now().Sub(s.lastPointer) < constants.InCallControlsHideDelay
}

// BannerVisible reports whether the connection-status banner should show:
// signaling not connected, not mid-initialization, classified as
// fallback, and not manually dismissed.
func (s *Surface) BannerVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState != signaling.StateConnected &&
		s.connState != signaling.StateConnecting &&
		s.connState == signaling.StateFallback &&
		!s.bannerDismissed
}

// DismissBanner suppresses the banner until the next successful retry.
func (s *Surface) DismissBanner() {
	s.mu.Lock()
	s.bannerDismissed = true
	s.mu.Unlock()
}

// Tick advances the call-duration counter by one second. It counts only
// while connected and not showing the post-consultation form; once the
// form appears the counter freezes.
func (s *Surface) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Status == domain.CallStatusConnected && !s.formShowing {
		s.durationSecs++
	}
}

// DurationSeconds returns the current counter value.
func (s *Surface) DurationSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationSecs
}

// ShowForm freezes the duration counter for the post-consultation form
// and returns the frozen value, which is recorded as the consultation
// duration.
func (s *Surface) ShowForm() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formShowing = true
	return s.durationSecs
}

// FormShowing reports whether the post-consultation form is up.
func (s *Surface) FormShowing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formShowing
}
