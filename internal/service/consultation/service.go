package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"medconnect-backend/internal/domain"
	apperrors "medconnect-backend/pkg/errors"
	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/metrics"
)

// RecordRepository interface
type RecordRepository interface {
	Create(ctx context.Context, record *domain.ConsultationRecord) error
	GetByID(ctx context.Context, recordID uuid.UUID) (*domain.ConsultationRecord, error)
	GetByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*domain.ConsultationRecord, error)
	GetByClinician(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*domain.ConsultationRecord, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
	CountByClinician(ctx context.Context, clinicianID uuid.UUID) (int64, error)
}

// Service handles consultation record business logic
type Service struct {
	repo RecordRepository
}

// NewService creates a new consultation service
func NewService(repo RecordRepository) *Service {
	return &Service{repo: repo}
}

// SaveConsultation persists a completed consultation record
func (s *Service) SaveConsultation(ctx context.Context, record *domain.ConsultationRecord) error {
	if record.RecordID == uuid.Nil {
		record.RecordID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.Urgency == "" {
		record.Urgency = domain.UrgencyRoutine
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to save consultation: %w", err)
	}

	metrics.ConsultationsRecorded.Inc()

	logger.Info("Consultation record saved",
		zap.String("record_id", record.RecordID.String()),
		zap.String("clinician_id", record.ClinicianID.String()),
		zap.String("patient_id", record.PatientID.String()),
		zap.Int("duration_seconds", record.DurationSeconds))

	return nil
}

// GetRecord retrieves a consultation record, restricted to its clinician
// and patient
func (s *Service) GetRecord(ctx context.Context, requesterID, recordID uuid.UUID) (*domain.ConsultationRecord, error) {
	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ConsultationNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if requesterID != record.ClinicianID && requesterID != record.PatientID {
		return nil, apperrors.AccessDeniedError("You are not a participant in this consultation")
	}

	return record, nil
}

// ListForUser retrieves a page of the consultation history visible to a
// user, matched against their role, plus the total record count
func (s *Service) ListForUser(ctx context.Context, user domain.Participant, limit, offset int) ([]*domain.ConsultationRecord, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var (
		records []*domain.ConsultationRecord
		total   int64
		err     error
	)

	switch user.Role {
	case domain.RoleClinician:
		records, err = s.repo.GetByClinician(ctx, user.ID, limit, offset)
		if err == nil {
			total, err = s.repo.CountByClinician(ctx, user.ID)
		}
	case domain.RolePatient:
		records, err = s.repo.GetByPatient(ctx, user.ID, limit, offset)
		if err == nil {
			total, err = s.repo.CountByPatient(ctx, user.ID)
		}
	default:
		return nil, 0, apperrors.ForbiddenError(fmt.Sprintf("Role %q has no consultation history", user.Role))
	}

	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}

	return records, total, nil
}
