package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

// AuthHandlers contains HTTP handlers for session endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// response is the envelope every endpoint answers with
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// expires_at fields are unix seconds

type loginData struct {
	PublicAddress string `json:"public_address"`
	SessionToken  string `json:"session_token"`
	ExpiresAt     int64  `json:"expires_at"`
	AccessToken   string `json:"access_token,omitempty"`
}

type meData struct {
	PublicAddress string `json:"public_address"`
	SessionID     string `json:"session_id,omitempty"`
	ExpiresAt     int64  `json:"expires_at"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, response{Success: false, Error: message})
}

// failWith maps a service error to its status code and client message
func failWith(c *gin.Context, err error) {
	status, message := errorResponse(core.KindOf(err))
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	fail(c, status, message)
}

func errorResponse(kind core.ErrorKind) (int, string) {
	switch kind {
	case core.KindInvalidAddress:
		return http.StatusBadRequest, "Invalid public address"
	case core.KindNoActiveChallenge:
		return http.StatusUnauthorized, "No active challenge found"
	case core.KindInvalidChallenge:
		return http.StatusUnauthorized, "Invalid challenge"
	case core.KindInvalidSignature:
		return http.StatusUnauthorized, "Invalid signature"
	case core.KindInvalidToken:
		return http.StatusUnauthorized, "Invalid token"
	case core.KindSessionExpired:
		return http.StatusUnauthorized, "Session expired"
	case core.KindDatabase:
		return http.StatusInternalServerError, "Database error"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// Ping answers liveness probes
func (h *AuthHandlers) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// GenerateChallenge handles the challenge request
func (h *AuthHandlers) GenerateChallenge(c *gin.Context) {
	var req struct {
		PublicAddress string `json:"public_address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid public address")
		return
	}

	challenge, err := h.authService.IssueChallenge(c.Request.Context(), req.PublicAddress)
	if err != nil {
		failWith(c, err)
		return
	}

	ok(c, challenge)
}

// ValidateAuth handles the login request
func (h *AuthHandlers) ValidateAuth(c *gin.Context) {
	var req struct {
		PublicAddress string `json:"public_address" binding:"required"`
		Challenge     string `json:"challenge" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	res, err := h.authService.ValidateAndLogin(c.Request.Context(), req.PublicAddress, req.Challenge, req.Signature)
	if err != nil {
		failWith(c, err)
		return
	}

	ok(c, loginData{
		PublicAddress: res.Address,
		SessionToken:  res.SessionToken,
		ExpiresAt:     res.ExpiresAt.Unix(),
		AccessToken:   res.AccessToken,
	})
}

// Me returns the session behind the bearer credential
func (h *AuthHandlers) Me(c *gin.Context) {
	// Session is set by the auth middleware
	session, exists := sessionFrom(c)
	if !exists {
		fail(c, http.StatusInternalServerError, "Internal error")
		return
	}

	ok(c, meData{
		PublicAddress: session.Address.Display(),
		SessionID:     session.ID,
		ExpiresAt:     session.ExpiresAt.Unix(),
	})
}
