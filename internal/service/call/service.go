package call

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"medconnect-backend/internal/domain"
	apperrors "medconnect-backend/pkg/errors"
	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/metrics"
)

// AttemptRepository interface
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.CallAttempt) error
	RecordOutcome(ctx context.Context, callID uuid.UUID, outcome, failureReason string) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.CallAttempt, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallAttempt, error)
	CountUserCalls(ctx context.Context, userID uuid.UUID) (int64, error)
	GetAppointmentCalls(ctx context.Context, appointmentID uuid.UUID) ([]*domain.CallAttempt, error)
}

// EventRepository interface
type EventRepository interface {
	Save(event *domain.CallEvent) error
}

// Service handles call history and signaling audit
type Service struct {
	attempts AttemptRepository
	events   EventRepository
}

// NewService creates a new call service. events may be nil when the
// archive store is unavailable; archiving then degrades to a no-op.
func NewService(attempts AttemptRepository, events EventRepository) *Service {
	return &Service{
		attempts: attempts,
		events:   events,
	}
}

// RecordAttempt persists the start of a call attempt
func (s *Service) RecordAttempt(ctx context.Context, attempt *domain.CallAttempt) error {
	if attempt.CallID == uuid.Nil {
		attempt.CallID = uuid.New()
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		return err
	}

	metrics.CallsInitiated.Inc()
	return nil
}

// RecordOutcome persists the terminal outcome of a call attempt
func (s *Service) RecordOutcome(ctx context.Context, callID uuid.UUID, outcome, failureReason string) error {
	if err := s.attempts.RecordOutcome(ctx, callID, outcome, failureReason); err != nil {
		return err
	}

	metrics.CallOutcomes.WithLabelValues(outcome).Inc()

	logger.Info("Call outcome recorded",
		zap.String("call_id", callID.String()),
		zap.String("outcome", outcome))

	return nil
}

// GetCall retrieves one call attempt, restricted to its participants
func (s *Service) GetCall(ctx context.Context, requesterID, callID uuid.UUID) (*domain.CallAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if requesterID != attempt.CallerID && requesterID != attempt.CalleeID {
		return nil, apperrors.AccessDeniedError("You are not a participant in this call")
	}

	return attempt, nil
}

// History retrieves a page of a user's call history, newest first, along
// with the total number of attempts on record
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallAttempt, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	attempts, err := s.attempts.GetUserCalls(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}

	total, err := s.attempts.CountUserCalls(ctx, userID)
	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}

	return attempts, total, nil
}

// Archive records a signaling event for audit. Failures are logged, not
// surfaced; the archive never blocks signaling.
func (s *Service) Archive(ctx context.Context, event *domain.CallEvent) error {
	if s.events == nil {
		return nil
	}

	if err := s.events.Save(event); err != nil {
		logger.Warn("Failed to archive call event",
			zap.String("user_id", event.UserID.String()),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return err
	}

	return nil
}
