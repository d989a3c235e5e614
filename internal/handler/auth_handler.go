package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ujicara/cbt-backend/internal/middleware"
	"github.com/ujicara/cbt-backend/internal/model"
	"github.com/ujicara/cbt-backend/internal/repository"
	"github.com/ujicara/cbt-backend/internal/response"
	"github.com/ujicara/cbt-backend/internal/service"
	"github.com/ujicara/cbt-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService     *service.AuthService
	participantRepo *repository.ParticipantRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, participantRepo *repository.ParticipantRepository) *AuthHandler {
	return &AuthHandler{
		authService:     authService,
		participantRepo: participantRepo,
	}
}

// Login godoc
// POST /api/v1/auth/login
// Validates identifier + password, checks for existing session (rejects if active), returns JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	participant, err := h.participantRepo.GetByIdentifier(c.Request.Context(), req.Identifier)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(participant.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateToken(c.Request.Context(), participant.ID)
	if err != nil {
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"participant": gin.H{
			"id":         participant.ID,
			"identifier": participant.Identifier,
			"name":       participant.Name,
		},
	})
}

// Logout godoc
// POST /api/v1/auth/logout
// Logs out the currently authenticated participant.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.ResetSession(c.Request.Context(), claims.ParticipantID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Profile godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated participant.
func (h *AuthHandler) Profile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	participant, err := h.participantRepo.GetByID(c.Request.Context(), claims.ParticipantID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"participant": gin.H{
			"id":         participant.ID,
			"identifier": participant.Identifier,
			"name":       participant.Name,
		},
	})
}
