package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/internal/core/services"
	"bintunet/internal/infrastructure/middleware"
	"bintunet/pkg/errors"
)

// SessionService is the part of the session manager the HTTP layer drives.
type SessionService interface {
	Login(ctx context.Context, identifier, secret, accessCode string) (*services.Session, string, error)
	Resolve(ctx context.Context, token string) (*services.Session, error)
	Logout(ctx context.Context, token string) error
}

type AuthHandler struct {
	sessions SessionService
}

func NewAuthHandler(sessions SessionService) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
	}
}

func (h *AuthHandler) SetupRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	group := api.Group("/auth")
	{
		group.POST("/login", h.Login)
		group.POST("/logout", auth, h.Logout)
		group.GET("/me", auth, h.Me)
	}
}

type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required,max=254"`
	Password   string `json:"password" binding:"required,max=128"`
	AccessCode string `json:"access_code" binding:"required,max=64"`
}

type LoginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      domain.UserProfile `json:"user"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("identifier, password and access_code are required"))
		return
	}

	session, token, err := h.sessions.Login(c.Request.Context(), strings.TrimSpace(req.Identifier), req.Password, req.AccessCode)
	if err != nil {
		_ = c.Error(mapDomainError(err, 0))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      session.User,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), middleware.TokenFrom(c)); err != nil {
		_ = c.Error(mapDomainError(err, 0))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		_ = c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":       session.User,
		"session_id": session.ID,
		"expires_at": session.ExpiresAt,
	})
}

var _ ports.AuthHTTPHandler = (*AuthHandler)(nil)
