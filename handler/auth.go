package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/middleware"
	"github.com/AnTengye/solarflow/model"
	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Authenticator checks credentials and returns the caller's session
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*model.Session, error)
}

type AuthHandler struct {
	users Authenticator
	auth  *config.AuthConfig
}

func NewAuthHandler(users Authenticator, cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{users: users, auth: cfg}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// Login checks the credentials against the Login sheet and issues a token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	session, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.Info(c.Request.Context(), "login rejected", "username", req.Username)
		respondError(c, err)
		return
	}

	token, expiresAt, err := middleware.GenerateToken(session, h.auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Info(c.Request.Context(), "login succeeded", "username", session.Username, "role", session.Role)
	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Username:  session.Username,
		Role:      session.Role,
	})
}

// GetCurrentUser returns the session of the bearer token
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": session.Username,
		"role":     session.Role,
		"is_admin": session.IsAdmin(),
	})
}
