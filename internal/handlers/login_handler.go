package handlers

import (
	"net/http"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/auth"
	"go-autoparts-pos/internal/logger"
	"go-autoparts-pos/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,min=8"`
}

func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	if !bindJSON(c, &input) {
		return
	}

	// Unknown user and wrong password look the same to the caller.
	user, err := h.Store.Users.FindByUsername(c.Request.Context(), input.Username)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, input.Password) {
		logger.FromGin(c).Info("Failed login", zap.String("username", input.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		respondError(c, apperr.Internal("failed to generate token", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"role":     user.Role,
		"username": user.Username,
	})
}

// Register creates a cashier account. Elevated roles are granted by an
// administrator, never by the caller.
func (h *Handler) Register(c *gin.Context) {
	var input RegisterRequest
	if !bindJSON(c, &input) {
		return
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		respondError(c, apperr.Internal("failed to hash password", err))
		return
	}

	user := models.User{
		Username:     input.Username,
		PasswordHash: hashed,
		Role:         models.RoleCashier,
	}
	if err := h.Store.Users.Create(c.Request.Context(), &user); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "id": user.ID, "role": user.Role})
}
