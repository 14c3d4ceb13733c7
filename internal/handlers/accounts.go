package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ayosleepy/polls/internal/services"
	"github.com/ayosleepy/polls/internal/services/auth"
)

type AuthHandler struct {
	log         *slog.Logger
	authService *auth.Auth
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type AdminStatusRequest struct {
	Admin bool `json:"admin"`
}

func NewAuthHandler(log *slog.Logger, authService *auth.Auth) *AuthHandler {
	return &AuthHandler{log: log, authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "username, email and password are required"})
		return
	}

	userID, err := h.authService.RegisterNewUser(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user_id": userID})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "email and password are required"})
		return
	}

	tokens, userID, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       userID,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "refresh_token is required"})
		return
	}

	tokens, err := h.authService.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "refresh_token is required"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SetAdminStatus grants or revokes the admin role. Only admins may call it.
func (h *AuthHandler) SetAdminStatus(c *gin.Context) {
	callerID, ok := currentUser(c)
	if !ok {
		return
	}

	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req AdminStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid input"})
		return
	}

	ctx := c.Request.Context()

	isAdmin, err := h.authService.IsAdmin(ctx, callerID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if !isAdmin {
		writeError(c, h.log, services.ErrForbidden)
		return
	}

	if err := h.authService.SetUserAdminStatus(ctx, userID, req.Admin); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: "user not found"})
			return
		}
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "status updated"})
}
