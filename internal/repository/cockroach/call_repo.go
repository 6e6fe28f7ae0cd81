package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medconnect-backend/internal/domain"
)

// CallRepository handles call attempt records
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create persists a new call attempt
func (r *CallRepository) Create(ctx context.Context, attempt *domain.CallAttempt) error {
	query := `
		INSERT INTO call_attempts (
			call_id, caller_id, callee_id, appointment_id, outcome,
			failure_reason, started_at, ended_at, duration
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		attempt.CallID,
		attempt.CallerID,
		attempt.CalleeID,
		attempt.AppointmentID,
		attempt.Outcome,
		attempt.FailureReason,
		attempt.StartedAt,
		attempt.EndedAt,
		attempt.Duration,
	)

	if err != nil {
		return fmt.Errorf("failed to create call attempt: %w", err)
	}

	return nil
}

// RecordOutcome updates the terminal outcome of a call attempt
func (r *CallRepository) RecordOutcome(ctx context.Context, callID uuid.UUID, outcome, failureReason string) error {
	query := `
		UPDATE call_attempts
		SET outcome = $2,
		    failure_reason = $3,
		    ended_at = NOW(),
		    duration = EXTRACT(EPOCH FROM (NOW() - started_at))::INT
		WHERE call_id = $1
	`

	_, err := r.pool.Exec(ctx, query, callID, outcome, failureReason)
	if err != nil {
		return fmt.Errorf("failed to record call outcome: %w", err)
	}

	return nil
}

// GetByID retrieves a call attempt by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.CallAttempt, error) {
	query := `
		SELECT call_id, caller_id, callee_id, appointment_id, outcome,
		       failure_reason, started_at, ended_at, duration
		FROM call_attempts
		WHERE call_id = $1
	`

	attempt := &domain.CallAttempt{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&attempt.CallID,
		&attempt.CallerID,
		&attempt.CalleeID,
		&attempt.AppointmentID,
		&attempt.Outcome,
		&attempt.FailureReason,
		&attempt.StartedAt,
		&attempt.EndedAt,
		&attempt.Duration,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("call attempt not found: %w", pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get call attempt: %w", err)
	}

	return attempt, nil
}

// GetUserCalls retrieves the call history for a user, newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallAttempt, error) {
	query := `
		SELECT call_id, caller_id, callee_id, appointment_id, outcome,
		       failure_reason, started_at, ended_at, duration
		FROM call_attempts
		WHERE caller_id = $1 OR callee_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.CallAttempt
	for rows.Next() {
		attempt := &domain.CallAttempt{}
		err := rows.Scan(
			&attempt.CallID,
			&attempt.CallerID,
			&attempt.CalleeID,
			&attempt.AppointmentID,
			&attempt.Outcome,
			&attempt.FailureReason,
			&attempt.StartedAt,
			&attempt.EndedAt,
			&attempt.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	return attempts, nil
}

// CountUserCalls returns the total number of call attempts a user took part in
func (r *CallRepository) CountUserCalls(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM call_attempts WHERE caller_id = $1 OR callee_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user calls: %w", err)
	}

	return count, nil
}

// GetAppointmentCalls retrieves all call attempts linked to an appointment
func (r *CallRepository) GetAppointmentCalls(ctx context.Context, appointmentID uuid.UUID) ([]*domain.CallAttempt, error) {
	query := `
		SELECT call_id, caller_id, callee_id, appointment_id, outcome,
		       failure_reason, started_at, ended_at, duration
		FROM call_attempts
		WHERE appointment_id = $1
		ORDER BY started_at ASC
	`

	rows, err := r.pool.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment calls: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.CallAttempt
	for rows.Next() {
		attempt := &domain.CallAttempt{}
		err := rows.Scan(
			&attempt.CallID,
			&attempt.CallerID,
			&attempt.CalleeID,
			&attempt.AppointmentID,
			&attempt.Outcome,
			&attempt.FailureReason,
			&attempt.StartedAt,
			&attempt.EndedAt,
			&attempt.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	return attempts, nil
}
