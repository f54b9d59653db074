package http

import (
	"net/http"
	"strings"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
	"desklink/pkg/errors"
	"desklink/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TokenHandler mints join tokens for participants, typically deployed
// on the signaling relay.
type TokenHandler struct {
	tokens ports.TokenService
}

func NewTokenHandler(tokens ports.TokenService) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
	}
}

func (h *TokenHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/tokens", h.IssueToken)
	}
}

type IssueTokenRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role" binding:"required"`
}

func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if err := validation.ValidateRole(req.Role); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	if req.SessionID == "" {
		req.SessionID = "sess_" + uuid.New().String()
	} else if err := validation.ValidateSessionID(req.SessionID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	if req.ParticipantID == "" {
		req.ParticipantID = "part_" + uuid.New().String()
	} else if err := validation.ValidateParticipantID(req.ParticipantID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	token, err := h.tokens.IssueJoinToken(
		c.Request.Context(),
		domain.SessionID(req.SessionID),
		domain.ParticipantID(req.ParticipantID),
		domain.Role(req.Role),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":     req.SessionID,
		"participant_id": req.ParticipantID,
		"role":           req.Role,
		"token":          token,
	})
}
