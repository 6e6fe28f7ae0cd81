package call

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medconnect-backend/internal/domain"
	apperrors "medconnect-backend/pkg/errors"
)

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, attempt *domain.CallAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) RecordOutcome(ctx context.Context, callID uuid.UUID, outcome, failureReason string) error {
	args := m.Called(ctx, callID, outcome, failureReason)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.CallAttempt, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallAttempt), args.Error(1)
}

func (m *MockAttemptRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallAttempt, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallAttempt), args.Error(1)
}

func (m *MockAttemptRepository) CountUserCalls(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAttemptRepository) GetAppointmentCalls(ctx context.Context, appointmentID uuid.UUID) ([]*domain.CallAttempt, error) {
	args := m.Called(ctx, appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallAttempt), args.Error(1)
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Save(event *domain.CallEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func TestRecordAttemptAssignsCallID(t *testing.T) {
	repo := new(MockAttemptRepository)
	svc := NewService(repo, nil)

	attempt := &domain.CallAttempt{
		CallerID:  uuid.New(),
		CalleeID:  uuid.New(),
		StartedAt: time.Now(),
	}
	repo.On("Create", mock.Anything, attempt).Return(nil)

	err := svc.RecordAttempt(context.Background(), attempt)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, attempt.CallID)
	repo.AssertExpectations(t)
}

func TestRecordAttemptKeepsExistingCallID(t *testing.T) {
	repo := new(MockAttemptRepository)
	svc := NewService(repo, nil)

	callID := uuid.New()
	attempt := &domain.CallAttempt{CallID: callID, CallerID: uuid.New(), CalleeID: uuid.New()}
	repo.On("Create", mock.Anything, attempt).Return(nil)

	require.NoError(t, svc.RecordAttempt(context.Background(), attempt))
	assert.Equal(t, callID, attempt.CallID)
}

func TestGetCallNotFound(t *testing.T) {
	repo := new(MockAttemptRepository)
	svc := NewService(repo, nil)

	callID := uuid.New()
	repo.On("GetByID", mock.Anything, callID).
		Return(nil, fmt.Errorf("call attempt not found: %w", pgx.ErrNoRows))

	attempt, err := svc.GetCall(context.Background(), uuid.New(), callID)
	assert.Nil(t, attempt)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCallNotFound, apperrors.GetAppError(err).Code)
}

func TestGetCallDatabaseError(t *testing.T) {
	repo := new(MockAttemptRepository)
	svc := NewService(repo, nil)

	callID := uuid.New()
	repo.On("GetByID", mock.Anything, callID).Return(nil, fmt.Errorf("connection reset"))

	_, err := svc.GetCall(context.Background(), uuid.New(), callID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetAppError(err).Code)
}

func TestGetCallRestrictedToParticipants(t *testing.T) {
	repo := new(MockAttemptRepository)
	svc := NewService(repo, nil)

	caller := uuid.New()
	callee := uuid.New()
	stored := &domain.CallAttempt{
		CallID:   uuid.New(),
		CallerID: caller,
		CalleeID: callee,
		Outcome:  "connected",
	}
	repo.On("GetByID", mock.Anything, stored.CallID).Return(stored, nil)

	got, err := svc.GetCall(context.Background(), callee, stored.CallID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)

	_, err = svc.GetCall(context.Background(), uuid.New(), stored.CallID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAccessDenied, apperrors.GetAppError(err).Code)
}

func TestHistoryClampsPageParams(t *testing.T) {
	repo := new(MockAttemptRepository)
	svc := NewService(repo, nil)

	userID := uuid.New()
	attempts := []*domain.CallAttempt{{CallID: uuid.New(), CallerID: userID}}
	repo.On("GetUserCalls", mock.Anything, userID, 20, 0).Return(attempts, nil)
	repo.On("CountUserCalls", mock.Anything, userID).Return(int64(37), nil)

	got, total, err := svc.History(context.Background(), userID, 500, -4)
	require.NoError(t, err)
	assert.Equal(t, attempts, got)
	assert.Equal(t, int64(37), total)
	repo.AssertExpectations(t)
}

func TestHistoryCountFailure(t *testing.T) {
	repo := new(MockAttemptRepository)
	svc := NewService(repo, nil)

	userID := uuid.New()
	repo.On("GetUserCalls", mock.Anything, userID, 20, 0).Return([]*domain.CallAttempt{}, nil)
	repo.On("CountUserCalls", mock.Anything, userID).Return(int64(0), fmt.Errorf("timeout"))

	_, _, err := svc.History(context.Background(), userID, 20, 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetAppError(err).Code)
}

func TestArchiveWithoutEventStoreIsNoOp(t *testing.T) {
	svc := NewService(new(MockAttemptRepository), nil)

	err := svc.Archive(context.Background(), &domain.CallEvent{
		UserID:    uuid.New(),
		PeerID:    uuid.New(),
		EventType: "call-initiate",
		CreatedAt: time.Now(),
	})
	assert.NoError(t, err)
}

func TestArchiveSurfacesSaveFailure(t *testing.T) {
	events := new(MockEventRepository)
	svc := NewService(new(MockAttemptRepository), events)

	event := &domain.CallEvent{
		UserID:    uuid.New(),
		PeerID:    uuid.New(),
		EventType: "ice-candidate",
		CreatedAt: time.Now(),
	}
	events.On("Save", event).Return(fmt.Errorf("cassandra down"))

	assert.Error(t, svc.Archive(context.Background(), event))
	events.AssertExpectations(t)
}
