// Package consult implements the clinician-only post-consultation gate:
// the calling clinician cannot tear a connected call down until the
// required consultation form resolves, so the encounter's duration and
// context are documented before they are lost.
package consult

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"medconnect-backend/internal/domain"
)

// CallEnder is the slice of the call machine the gate drives.
type CallEnder interface {
	Session() domain.CallSession
	EndCall() error
}

// DurationFreezer freezes the call-duration counter when the form appears
// and returns the frozen value.
type DurationFreezer interface {
	ShowForm() int
}

// Sink receives the completed consultation record. The gate only
// guarantees the gating behavior, not the payload's downstream handling.
type Sink interface {
	SaveConsultation(ctx context.Context, record *domain.ConsultationRecord) error
}

// PendingConsultation carries the call context captured when teardown was
// deferred.
type PendingConsultation struct {
	AppointmentID   *uuid.UUID
	ClinicianID     uuid.UUID
	PatientID       uuid.UUID
	DurationSeconds int
}

// Gate wraps end-call for one local participant. For a clinician ending a
// connected call, EndCall on the machine is deferred until Submit or
// Cancel; every other role and state ends immediately.
type Gate struct {
	localUser domain.Participant
	machine   CallEnder
	freezer   DurationFreezer
	sink      Sink

	mu      sync.Mutex
	pending *PendingConsultation
}

// NewGate creates a gate for localUser. freezer and sink may only be nil
// for non-clinician users.
func NewGate(localUser domain.Participant, machine CallEnder, freezer DurationFreezer, sink Sink) *Gate {
	return &Gate{
		localUser: localUser,
		machine:   machine,
		freezer:   freezer,
		sink:      sink,
	}
}

// RequestEnd is the UI's end-call action. Returns true when teardown was
// deferred behind the consultation form.
func (g *Gate) RequestEnd() (deferred bool, err error) {
	session := g.machine.Session()

	if g.localUser.Role == domain.RoleClinician &&
		session.Status == domain.CallStatusConnected &&
		session.RemoteParticipant != nil {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.pending != nil {
			return true, nil
		}
		g.pending = &PendingConsultation{
			AppointmentID:   session.AppointmentID,
			ClinicianID:     g.localUser.ID,
			PatientID:       session.RemoteParticipant.ID,
			DurationSeconds: g.freezer.ShowForm(),
		}
		return true, nil
	}

	return false, g.machine.EndCall()
}

// Pending returns the deferred consultation context, or nil.
func (g *Gate) Pending() *PendingConsultation {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	p := *g.pending
	return &p
}

// Submit persists the consultation record and then performs the real
// teardown. When the sink fails the gate stays pending so nothing is
// lost; the form can be re-submitted.
func (g *Gate) Submit(ctx context.Context, form domain.ConsultationForm) error {
	g.mu.Lock()
	pending := g.pending
	g.mu.Unlock()
	if pending == nil {
		return fmt.Errorf("no consultation is pending")
	}

	record := &domain.ConsultationRecord{
		RecordID:         uuid.New(),
		AppointmentID:    pending.AppointmentID,
		ClinicianID:      pending.ClinicianID,
		PatientID:        pending.PatientID,
		Diagnosis:        form.Diagnosis,
		Notes:            form.Notes,
		Urgency:          form.Urgency,
		FollowUpRequired: form.FollowUpRequired,
		FollowUpDate:     form.FollowUpDate,
		DurationSeconds:  pending.DurationSeconds,
		CreatedAt:        time.Now(),
	}

	if err := g.sink.SaveConsultation(ctx, record); err != nil {
		return fmt.Errorf("failed to save consultation: %w", err)
	}

	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
	return g.machine.EndCall()
}

// Cancel abandons the form and performs the teardown without a record.
func (g *Gate) Cancel() error {
	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return fmt.Errorf("no consultation is pending")
	}
	g.pending = nil
	g.mu.Unlock()
	return g.machine.EndCall()
}
