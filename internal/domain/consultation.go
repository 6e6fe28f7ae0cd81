package domain

import (
	"time"

	"github.com/google/uuid"
)

// Urgency grades the follow-up priority of a consultation
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// ConsultationForm is the clinician's post-consultation data entry. The
// form gates call teardown for the calling clinician; submitting or
// cancelling it is what releases the call session.
type ConsultationForm struct {
	Diagnosis        string     `json:"diagnosis"`
	Notes            string     `json:"notes"`
	Urgency          Urgency    `json:"urgency"`
	FollowUpRequired bool       `json:"follow_up_required"`
	FollowUpDate     *time.Time `json:"follow_up_date,omitempty"`
}

// ConsultationRecord is the persisted consultation outcome. Maps to the
// consultation_records table in CockroachDB. DurationSeconds carries the
// frozen call-duration counter value captured when the form appeared.
type ConsultationRecord struct {
	RecordID         uuid.UUID  `json:"record_id"`
	AppointmentID    *uuid.UUID `json:"appointment_id,omitempty"`
	ClinicianID      uuid.UUID  `json:"clinician_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	Diagnosis        string     `json:"diagnosis"`
	Notes            string     `json:"notes"`
	Urgency          Urgency    `json:"urgency"`
	FollowUpRequired bool       `json:"follow_up_required"`
	FollowUpDate     *time.Time `json:"follow_up_date,omitempty"`
	DurationSeconds  int        `json:"duration_seconds"`
	AttachmentKeys   []string   `json:"attachment_keys,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
