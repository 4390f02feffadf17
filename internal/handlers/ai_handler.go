package handlers

import (
	"net/http"

	"go-autoparts-pos/internal/apperr"

	"github.com/gin-gonic/gin"
)

type AskRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) AskAI(c *gin.Context) {
	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}

	// No API key configured.
	if h.Assistant == nil {
		respondError(c, apperr.Unavailable("Assistant is not configured"))
		return
	}

	reply, err := h.Assistant.Ask(c.Request.Context(), req.Message)
	if err != nil {
		respondError(c, apperr.Internal("assistant failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
