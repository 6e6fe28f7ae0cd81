package consultation

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medconnect-backend/internal/domain"
	"medconnect-backend/internal/service/consultation"
	"medconnect-backend/internal/service/storage"
	"medconnect-backend/pkg/pagination"
	"medconnect-backend/pkg/response"
)

// Handler handles consultation record HTTP requests
type Handler struct {
	consultService *consultation.Service
	attachments    *storage.Service
}

// NewHandler creates a new consultation handler. attachments may be nil
// when object storage is not configured; attachment routes then 503.
func NewHandler(consultService *consultation.Service, attachments *storage.Service) *Handler {
	return &Handler{
		consultService: consultService,
		attachments:    attachments,
	}
}

func currentUser(c *gin.Context) (domain.Participant, bool) {
	idVal, exists := c.Get("user_id")
	if !exists {
		return domain.Participant{}, false
	}
	userID, ok := idVal.(uuid.UUID)
	if !ok {
		return domain.Participant{}, false
	}

	name, _ := c.Get("display_name")
	role, _ := c.Get("role")
	displayName, _ := name.(string)
	roleStr, _ := role.(string)

	return domain.Participant{
		ID:          userID,
		DisplayName: displayName,
		Role:        domain.Role(roleStr),
	}, true
}

// CreateRecordRequest represents a consultation record submission
type CreateRecordRequest struct {
	AppointmentID    *uuid.UUID     `json:"appointment_id"`
	PatientID        uuid.UUID      `json:"patient_id" binding:"required"`
	Diagnosis        string         `json:"diagnosis" binding:"required"`
	Notes            string         `json:"notes"`
	Urgency          domain.Urgency `json:"urgency" binding:"omitempty,oneof=routine urgent critical"`
	FollowUpRequired bool           `json:"follow_up_required"`
	FollowUpDate     *time.Time     `json:"follow_up_date"`
	DurationSeconds  int            `json:"duration_seconds" binding:"min=0"`
	AttachmentKeys   []string       `json:"attachment_keys"`
}

// CreateRecord persists a post-consultation record for the authenticated
// clinician
// POST /v1/consultations
func (h *Handler) CreateRecord(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	// Attachment keys must come from the clinician's own upload prefix
	for _, key := range req.AttachmentKeys {
		if !storage.OwnsAttachment(user.ID, key) {
			response.Forbidden(c, "Attachment does not belong to clinician")
			return
		}
	}

	record := &domain.ConsultationRecord{
		AppointmentID:    req.AppointmentID,
		ClinicianID:      user.ID,
		PatientID:        req.PatientID,
		Diagnosis:        req.Diagnosis,
		Notes:            req.Notes,
		Urgency:          req.Urgency,
		FollowUpRequired: req.FollowUpRequired,
		FollowUpDate:     req.FollowUpDate,
		DurationSeconds:  req.DurationSeconds,
		AttachmentKeys:   req.AttachmentKeys,
	}

	if err := h.consultService.SaveConsultation(c.Request.Context(), record); err != nil {
		response.InternalError(c, "Failed to save consultation")
		return
	}

	response.Success(c, http.StatusCreated, record)
}

// GetRecord retrieves one consultation record
// GET /v1/consultations/:id
func (h *Handler) GetRecord(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid record ID")
		return
	}

	record, err := h.consultService.GetRecord(c.Request.Context(), user.ID, recordID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, record)
}

// ListRecords lists the authenticated user's consultation history
// GET /v1/consultations
func (h *Handler) ListRecords(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.ParseParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	records, total, err := h.consultService.ListForUser(c.Request.Context(), user, params.Limit, params.Offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, pagination.BuildResponse(params, total, records))
}

// CreateAttachmentUploadURL issues a presigned upload URL for a
// consultation attachment
// POST /v1/consultations/attachments
func (h *Handler) CreateAttachmentUploadURL(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if h.attachments == nil {
		response.Error(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Attachment storage is not configured")
		return
	}

	out, err := h.attachments.GenerateUploadURL(c.Request.Context(), user.ID)
	if err != nil {
		response.InternalError(c, "Failed to generate upload URL")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"object_key": out.ObjectKey,
		"upload_url": out.UploadURL,
		"expires_at": out.ExpiresAt,
	})
}

// GetAttachmentDownloadURL issues a presigned download URL for an
// attachment referenced by a record the user participates in
// GET /v1/consultations/:id/attachments?key=...
func (h *Handler) GetAttachmentDownloadURL(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if h.attachments == nil {
		response.Error(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Attachment storage is not configured")
		return
	}

	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid record ID")
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		response.ValidationError(c, "Missing attachment key")
		return
	}

	record, err := h.consultService.GetRecord(c.Request.Context(), user.ID, recordID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	url, err := h.attachments.GenerateDownloadURL(c.Request.Context(), user.ID, record, objectKey)
	if err != nil {
		response.Forbidden(c, err.Error())
		return
	}

	response.Success(c, http.StatusOK, gin.H{"download_url": url})
}
