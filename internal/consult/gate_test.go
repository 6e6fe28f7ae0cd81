package consult

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medconnect-backend/internal/domain"
)

type fakeEnder struct {
	session domain.CallSession
	ended   int
}

func (f *fakeEnder) Session() domain.CallSession { return f.session }

func (f *fakeEnder) EndCall() error {
	f.ended++
	return nil
}

type fakeFreezer struct {
	frozen int
	calls  int
}

func (f *fakeFreezer) ShowForm() int {
	f.calls++
	return f.frozen
}

type fakeSink struct {
	err     error
	records []*domain.ConsultationRecord
}

func (f *fakeSink) SaveConsultation(_ context.Context, record *domain.ConsultationRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func connectedTo(patientID uuid.UUID, appointmentID *uuid.UUID) domain.CallSession {
	remote := domain.Participant{ID: patientID, DisplayName: "J. Alvarez", Role: domain.RolePatient}
	return domain.CallSession{
		Status:            domain.CallStatusConnected,
		Direction:         domain.CallDirectionOutgoing,
		RemoteParticipant: &remote,
		AppointmentID:     appointmentID,
	}
}

func TestClinicianEndIsDeferredUntilSubmit(t *testing.T) {
	clinician := domain.Participant{ID: uuid.New(), Role: domain.RoleClinician}
	patientID := uuid.New()
	appointmentID := uuid.New()

	ender := &fakeEnder{session: connectedTo(patientID, &appointmentID)}
	freezer := &fakeFreezer{frozen: 385}
	sink := &fakeSink{}
	gate := NewGate(clinician, ender, freezer, sink)

	deferred, err := gate.RequestEnd()
	require.NoError(t, err)
	assert.True(t, deferred)
	assert.Equal(t, 0, ender.ended, "call must stay up until the form resolves")

	pending := gate.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, clinician.ID, pending.ClinicianID)
	assert.Equal(t, patientID, pending.PatientID)
	assert.Equal(t, &appointmentID, pending.AppointmentID)
	assert.Equal(t, 385, pending.DurationSeconds)

	err = gate.Submit(context.Background(), domain.ConsultationForm{
		Diagnosis: "Hypertension follow-up",
		Urgency:   domain.UrgencyRoutine,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, ender.ended)
	assert.Nil(t, gate.Pending())
	require.Len(t, sink.records, 1)
	record := sink.records[0]
	assert.Equal(t, "Hypertension follow-up", record.Diagnosis)
	assert.Equal(t, 385, record.DurationSeconds)
	assert.Equal(t, clinician.ID, record.ClinicianID)
	assert.Equal(t, patientID, record.PatientID)
}

func TestRepeatedRequestEndStaysDeferred(t *testing.T) {
	clinician := domain.Participant{ID: uuid.New(), Role: domain.RoleClinician}
	ender := &fakeEnder{session: connectedTo(uuid.New(), nil)}
	freezer := &fakeFreezer{frozen: 10}
	gate := NewGate(clinician, ender, freezer, &fakeSink{})

	for i := 0; i < 3; i++ {
		deferred, err := gate.RequestEnd()
		require.NoError(t, err)
		assert.True(t, deferred)
	}

	// The duration freezes once, on the first request.
	assert.Equal(t, 1, freezer.calls)
	assert.Equal(t, 0, ender.ended)
}

func TestPatientEndIsImmediate(t *testing.T) {
	patient := domain.Participant{ID: uuid.New(), Role: domain.RolePatient}
	ender := &fakeEnder{session: connectedTo(uuid.New(), nil)}
	gate := NewGate(patient, ender, nil, nil)

	deferred, err := gate.RequestEnd()
	require.NoError(t, err)
	assert.False(t, deferred)
	assert.Equal(t, 1, ender.ended)
	assert.Nil(t, gate.Pending())
}

func TestClinicianEndOutsideConnectedIsImmediate(t *testing.T) {
	clinician := domain.Participant{ID: uuid.New(), Role: domain.RoleClinician}
	remote := domain.Participant{ID: uuid.New(), Role: domain.RolePatient}
	ender := &fakeEnder{session: domain.CallSession{
		Status:            domain.CallStatusCalling,
		Direction:         domain.CallDirectionOutgoing,
		RemoteParticipant: &remote,
	}}
	gate := NewGate(clinician, ender, &fakeFreezer{}, &fakeSink{})

	deferred, err := gate.RequestEnd()
	require.NoError(t, err)
	assert.False(t, deferred)
	assert.Equal(t, 1, ender.ended)
}

func TestSubmitFailureKeepsGatePending(t *testing.T) {
	clinician := domain.Participant{ID: uuid.New(), Role: domain.RoleClinician}
	ender := &fakeEnder{session: connectedTo(uuid.New(), nil)}
	sink := &fakeSink{err: fmt.Errorf("records store unavailable")}
	gate := NewGate(clinician, ender, &fakeFreezer{frozen: 99}, sink)

	deferred, err := gate.RequestEnd()
	require.NoError(t, err)
	require.True(t, deferred)

	err = gate.Submit(context.Background(), domain.ConsultationForm{Diagnosis: "x"})
	require.Error(t, err)

	// Nothing was lost: the call is still up and the form can be
	// re-submitted.
	assert.Equal(t, 0, ender.ended)
	assert.NotNil(t, gate.Pending())

	sink.err = nil
	require.NoError(t, gate.Submit(context.Background(), domain.ConsultationForm{Diagnosis: "x"}))
	assert.Equal(t, 1, ender.ended)
	assert.Nil(t, gate.Pending())
}

func TestCancelEndsWithoutRecord(t *testing.T) {
	clinician := domain.Participant{ID: uuid.New(), Role: domain.RoleClinician}
	ender := &fakeEnder{session: connectedTo(uuid.New(), nil)}
	sink := &fakeSink{}
	gate := NewGate(clinician, ender, &fakeFreezer{}, sink)

	deferred, err := gate.RequestEnd()
	require.NoError(t, err)
	require.True(t, deferred)

	require.NoError(t, gate.Cancel())
	assert.Equal(t, 1, ender.ended)
	assert.Empty(t, sink.records)
	assert.Nil(t, gate.Pending())

	assert.Error(t, gate.Cancel())
	assert.Error(t, gate.Submit(context.Background(), domain.ConsultationForm{}))
}
