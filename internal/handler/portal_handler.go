package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ujicara/cbt-backend/internal/middleware"
	"github.com/ujicara/cbt-backend/internal/response"
	"github.com/ujicara/cbt-backend/internal/service"
)

// PortalHandler handles the participant-facing exam lifecycle endpoints.
type PortalHandler struct {
	portalService  *service.PortalService
	settingService *service.SettingService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(portalService *service.PortalService, settingService *service.SettingService) *PortalHandler {
	return &PortalHandler{
		portalService:  portalService,
		settingService: settingService,
	}
}

// GetStatus godoc
// GET /api/v1/exam/status
// Returns the participant's attempt status and exam metadata for the
// pre-exam screen.
func (h *PortalHandler) GetStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	status, sess, err := h.portalService.Status(c.Request.Context(), claims.ParticipantID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	settings, _ := h.settingService.LoadExamSettings(c.Request.Context())

	data := gin.H{
		"status": status,
		"exam": gin.H{
			"name":             settings.ExamName,
			"duration_seconds": settings.DurationSeconds,
		},
	}
	if sess != nil {
		data["session"] = sess
	}

	response.Success(c, http.StatusOK, data)
}

// StartExam godoc
// POST /api/v1/exam/start
// Marks the attempt as started (idempotent) and returns the initial snapshot.
func (h *PortalHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctrl, err := h.portalService.Start(c.Request.Context(), claims.ParticipantID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptFinished) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": ctrl.Snapshot(time.Now())})
}

// GetPaper godoc
// GET /api/v1/exam/paper
// Returns the question payload from Redis in the participant's session order.
// Correct answers are never included.
func (h *PortalHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	paper, err := h.portalService.Paper(c.Request.Context(), claims.ParticipantID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotStarted):
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotStarted)
		case errors.Is(err, service.ErrAttemptFinished):
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusNotFound, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// GetState godoc
// GET /api/v1/exam/state
// Returns the live session snapshot. Used by the client on reload before it
// reopens the WebSocket stream.
func (h *PortalHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	snap, err := h.portalService.State(c.Request.Context(), claims.ParticipantID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotStarted):
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotStarted)
		case errors.Is(err, service.ErrAttemptFinished):
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": snap})
}
