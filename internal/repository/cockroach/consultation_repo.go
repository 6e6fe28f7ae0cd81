package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medconnect-backend/internal/domain"
)

// ConsultationRepository handles post-consultation records
type ConsultationRepository struct {
	pool *pgxpool.Pool
}

// NewConsultationRepository creates a new consultation repository
func NewConsultationRepository(pool *pgxpool.Pool) *ConsultationRepository {
	return &ConsultationRepository{pool: pool}
}

// Create persists a consultation record
func (r *ConsultationRepository) Create(ctx context.Context, record *domain.ConsultationRecord) error {
	query := `
		INSERT INTO consultation_records (
			record_id, appointment_id, clinician_id, patient_id, diagnosis,
			notes, urgency, follow_up_required, follow_up_date,
			duration_seconds, attachment_keys, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		record.RecordID,
		record.AppointmentID,
		record.ClinicianID,
		record.PatientID,
		record.Diagnosis,
		record.Notes,
		record.Urgency,
		record.FollowUpRequired,
		record.FollowUpDate,
		record.DurationSeconds,
		record.AttachmentKeys,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create consultation record: %w", err)
	}

	return nil
}

// GetByID retrieves a consultation record by ID
func (r *ConsultationRepository) GetByID(ctx context.Context, recordID uuid.UUID) (*domain.ConsultationRecord, error) {
	query := `
		SELECT record_id, appointment_id, clinician_id, patient_id, diagnosis,
		       notes, urgency, follow_up_required, follow_up_date,
		       duration_seconds, attachment_keys, created_at
		FROM consultation_records
		WHERE record_id = $1
	`

	record := &domain.ConsultationRecord{}
	err := r.pool.QueryRow(ctx, query, recordID).Scan(
		&record.RecordID,
		&record.AppointmentID,
		&record.ClinicianID,
		&record.PatientID,
		&record.Diagnosis,
		&record.Notes,
		&record.Urgency,
		&record.FollowUpRequired,
		&record.FollowUpDate,
		&record.DurationSeconds,
		&record.AttachmentKeys,
		&record.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("consultation record not found: %w", pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get consultation record: %w", err)
	}

	return record, nil
}

// GetByPatient retrieves a patient's consultation history, newest first
func (r *ConsultationRepository) GetByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*domain.ConsultationRecord, error) {
	query := `
		SELECT record_id, appointment_id, clinician_id, patient_id, diagnosis,
		       notes, urgency, follow_up_required, follow_up_date,
		       duration_seconds, attachment_keys, created_at
		FROM consultation_records
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient consultations: %w", err)
	}
	defer rows.Close()

	var records []*domain.ConsultationRecord
	for rows.Next() {
		record := &domain.ConsultationRecord{}
		err := rows.Scan(
			&record.RecordID,
			&record.AppointmentID,
			&record.ClinicianID,
			&record.PatientID,
			&record.Diagnosis,
			&record.Notes,
			&record.Urgency,
			&record.FollowUpRequired,
			&record.FollowUpDate,
			&record.DurationSeconds,
			&record.AttachmentKeys,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultation record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// CountByPatient returns the total number of consultation records for a patient
func (r *ConsultationRepository) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM consultation_records WHERE patient_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, patientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count patient consultations: %w", err)
	}

	return count, nil
}

// CountByClinician returns the total number of consultation records for a clinician
func (r *ConsultationRepository) CountByClinician(ctx context.Context, clinicianID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM consultation_records WHERE clinician_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, clinicianID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clinician consultations: %w", err)
	}

	return count, nil
}

// GetByClinician retrieves a clinician's completed consultations, newest first
func (r *ConsultationRepository) GetByClinician(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*domain.ConsultationRecord, error) {
	query := `
		SELECT record_id, appointment_id, clinician_id, patient_id, diagnosis,
		       notes, urgency, follow_up_required, follow_up_date,
		       duration_seconds, attachment_keys, created_at
		FROM consultation_records
		WHERE clinician_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, clinicianID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get clinician consultations: %w", err)
	}
	defer rows.Close()

	var records []*domain.ConsultationRecord
	for rows.Next() {
		record := &domain.ConsultationRecord{}
		err := rows.Scan(
			&record.RecordID,
			&record.AppointmentID,
			&record.ClinicianID,
			&record.PatientID,
			&record.Diagnosis,
			&record.Notes,
			&record.Urgency,
			&record.FollowUpRequired,
			&record.FollowUpDate,
			&record.DurationSeconds,
			&record.AttachmentKeys,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultation record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}
