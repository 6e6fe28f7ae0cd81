package storage

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAttachmentKey(t *testing.T) {
	clinicianID := uuid.New()
	attachmentID := uuid.New()

	key := AttachmentKey(clinicianID, attachmentID)

	assert.Equal(t, fmt.Sprintf("consultations/%s/%s", clinicianID, attachmentID), key)
	assert.True(t, OwnsAttachment(clinicianID, key))
}

func TestOwnsAttachment(t *testing.T) {
	clinicianID := uuid.New()
	other := uuid.New()
	key := AttachmentKey(clinicianID, uuid.New())

	assert.True(t, OwnsAttachment(clinicianID, key))
	assert.False(t, OwnsAttachment(other, key))
	assert.False(t, OwnsAttachment(clinicianID, "consultations/"))
	assert.False(t, OwnsAttachment(clinicianID, fmt.Sprintf("uploads/%s/file", clinicianID)))
}
