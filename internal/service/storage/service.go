package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"medconnect-backend/internal/domain"
)

const (
	uploadURLExpiry   = 15 * time.Minute
	downloadURLExpiry = time.Hour
)

// Service handles consultation attachment storage. Attachments are
// uploaded by clinicians directly to object storage via presigned URLs
// and referenced from consultation records by object key.
type Service struct {
	client *MinioClient
	bucket string
}

// NewService creates a new attachment storage service
func NewService(endpoint, accessKey, secretKey, bucket string, secure bool) (*Service, error) {
	client, err := NewMinioClient(endpoint, accessKey, secretKey, secure)
	if err != nil {
		return nil, err
	}

	if err := client.EnsureBucket(context.Background(), bucket); err != nil {
		return nil, err
	}

	return &Service{
		client: client,
		bucket: bucket,
	}, nil
}

// UploadURLOutput contains a presigned attachment upload URL
type UploadURLOutput struct {
	ObjectKey string
	UploadURL string
	ExpiresAt time.Time
}

// AttachmentKey builds the object key for a clinician's attachment
func AttachmentKey(clinicianID, attachmentID uuid.UUID) string {
	return fmt.Sprintf("consultations/%s/%s", clinicianID, attachmentID)
}

// OwnsAttachment reports whether the object key belongs to the clinician
func OwnsAttachment(clinicianID uuid.UUID, objectKey string) bool {
	return strings.HasPrefix(objectKey, fmt.Sprintf("consultations/%s/", clinicianID))
}

// GenerateUploadURL creates a presigned URL for a clinician to upload a
// consultation attachment
func (s *Service) GenerateUploadURL(ctx context.Context, clinicianID uuid.UUID) (*UploadURLOutput, error) {
	objectKey := AttachmentKey(clinicianID, uuid.New())

	presignedURL, err := s.client.PresignedPut(ctx, s.bucket, objectKey, uploadURLExpiry)
	if err != nil {
		return nil, err
	}

	return &UploadURLOutput{
		ObjectKey: objectKey,
		UploadURL: presignedURL.String(),
		ExpiresAt: time.Now().Add(uploadURLExpiry),
	}, nil
}

// GenerateDownloadURL creates a presigned URL for a consultation
// participant to download an attachment. The key must be referenced by
// the record and the requester must be the record's clinician or patient.
func (s *Service) GenerateDownloadURL(ctx context.Context, requesterID uuid.UUID, record *domain.ConsultationRecord, objectKey string) (string, error) {
	if requesterID != record.ClinicianID && requesterID != record.PatientID {
		return "", fmt.Errorf("unauthorized access to attachment")
	}

	referenced := false
	for _, key := range record.AttachmentKeys {
		if key == objectKey {
			referenced = true
			break
		}
	}
	if !referenced {
		return "", fmt.Errorf("attachment not part of consultation record")
	}

	presignedURL, err := s.client.PresignedGet(ctx, s.bucket, objectKey, downloadURLExpiry)
	if err != nil {
		return "", err
	}

	return presignedURL.String(), nil
}

// DeleteAttachment removes an attachment a clinician uploaded but never
// referenced from a submitted record
func (s *Service) DeleteAttachment(ctx context.Context, clinicianID uuid.UUID, objectKey string) error {
	if !OwnsAttachment(clinicianID, objectKey) {
		return fmt.Errorf("unauthorized")
	}

	return s.client.DeleteObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
}
