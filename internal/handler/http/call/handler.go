package call

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	callsvc "medconnect-backend/internal/service/call"
	"medconnect-backend/pkg/pagination"
	"medconnect-backend/pkg/response"
)

// Handler handles call history HTTP requests
type Handler struct {
	callService *callsvc.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *callsvc.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok
}

// History lists the authenticated user's call attempts, newest first
// GET /v1/calls
func (h *Handler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.ParseParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	attempts, total, err := h.callService.History(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, pagination.BuildResponse(params, total, attempts))
}

// GetCall retrieves one call attempt the user participated in
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	attempt, err := h.callService.GetCall(c.Request.Context(), userID, callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}
