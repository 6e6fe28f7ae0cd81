package consultation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"medconnect-backend/internal/domain"
	apperrors "medconnect-backend/pkg/errors"
)

// MockRecordRepository is a mock consultation record repository
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) Create(ctx context.Context, record *domain.ConsultationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordRepository) GetByID(ctx context.Context, recordID uuid.UUID) (*domain.ConsultationRecord, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConsultationRecord), args.Error(1)
}

func (m *MockRecordRepository) GetByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*domain.ConsultationRecord, error) {
	args := m.Called(ctx, patientID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ConsultationRecord), args.Error(1)
}

func (m *MockRecordRepository) GetByClinician(ctx context.Context, clinicianID uuid.UUID, limit, offset int) ([]*domain.ConsultationRecord, error) {
	args := m.Called(ctx, clinicianID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ConsultationRecord), args.Error(1)
}

func (m *MockRecordRepository) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	args := m.Called(ctx, patientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecordRepository) CountByClinician(ctx context.Context, clinicianID uuid.UUID) (int64, error) {
	args := m.Called(ctx, clinicianID)
	return args.Get(0).(int64), args.Error(1)
}

func TestSaveConsultation(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service := NewService(mockRepo)

	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.ConsultationRecord")).Return(nil)

	record := &domain.ConsultationRecord{
		ClinicianID:     uuid.New(),
		PatientID:       uuid.New(),
		Diagnosis:       "Acute sinusitis",
		DurationSeconds: 412,
	}

	err := service.SaveConsultation(context.Background(), record)

	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, record.RecordID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.Equal(t, domain.UrgencyRoutine, record.Urgency)
	mockRepo.AssertExpectations(t)
}

func TestGetRecord_Unauthorized(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service := NewService(mockRepo)

	recordID := uuid.New()
	record := &domain.ConsultationRecord{
		RecordID:    recordID,
		ClinicianID: uuid.New(),
		PatientID:   uuid.New(),
	}

	mockRepo.On("GetByID", mock.Anything, recordID).Return(record, nil)

	// A third party may not read the record
	_, err := service.GetRecord(context.Background(), uuid.New(), recordID)
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAccessDenied, apperrors.GetAppError(err).Code)

	// The patient may
	got, err := service.GetRecord(context.Background(), record.PatientID, recordID)
	assert.NoError(t, err)
	assert.Equal(t, recordID, got.RecordID)
}

func TestListForUser_ByRole(t *testing.T) {
	mockRepo := new(MockRecordRepository)
	service := NewService(mockRepo)

	clinician := domain.Participant{ID: uuid.New(), Role: domain.RoleClinician}
	patient := domain.Participant{ID: uuid.New(), Role: domain.RolePatient}

	mockRepo.On("GetByClinician", mock.Anything, clinician.ID, 20, 0).Return([]*domain.ConsultationRecord{}, nil)
	mockRepo.On("CountByClinician", mock.Anything, clinician.ID).Return(int64(0), nil)
	mockRepo.On("GetByPatient", mock.Anything, patient.ID, 20, 0).Return([]*domain.ConsultationRecord{}, nil)
	mockRepo.On("CountByPatient", mock.Anything, patient.ID).Return(int64(0), nil)

	_, _, err := service.ListForUser(context.Background(), clinician, 0, 0)
	assert.NoError(t, err)

	_, _, err = service.ListForUser(context.Background(), patient, 0, 0)
	assert.NoError(t, err)

	admin := domain.Participant{ID: uuid.New(), Role: domain.RoleAdministrator}
	_, _, err = service.ListForUser(context.Background(), admin, 0, 0)
	assert.Error(t, err)

	mockRepo.AssertExpectations(t)
}
