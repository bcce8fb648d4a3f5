package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/service"
	"go.uber.org/zap"
)

// AuthHandler handles account requests
type AuthHandler struct {
	authService service.AuthService
	sessions    *SessionCookie
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, sessions *SessionCookie, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
		logger:      logger,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register an account and move the guest Strava connection to it
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	session := CurrentSession(c)
	result, err := h.authService.Register(c.Request.Context(), &req, session.GuestID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserExists):
			c.JSON(http.StatusConflict, dto.ErrorResponse{
				Error:   "Conflict",
				Message: err.Error(),
			})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Bad request",
				Message: err.Error(),
			})
		default:
			h.internalError(c, "Registration failed", err)
		}
		return
	}

	h.signedIn(c, http.StatusCreated, result)
}

// Login handles user login
// @Summary Login user
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	session := CurrentSession(c)
	result, err := h.authService.Login(c.Request.Context(), &req, session.GuestID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: err.Error(),
			})
			return
		}
		h.internalError(c, "Login failed", err)
		return
	}

	h.signedIn(c, http.StatusOK, result)
}

// signedIn binds the session to the account. The guest id stays in the
// session so a later connect can reuse its slot.
func (h *AuthHandler) signedIn(c *gin.Context, status int, result *service.AuthResult) {
	session := CurrentSession(c)
	session.UserID = result.User.ID
	session.SkipIncrement = result.Migration.SkipNextIncrement

	if err := h.sessions.Save(c, session); err != nil {
		h.internalError(c, "Failed to update session", err)
		return
	}

	c.JSON(status, dto.AuthResponse{
		User:           dto.NewUserResponse(result.User, time.Now()),
		StravaMigrated: result.Migration.Migrated,
	})
}

// Logout handles user logout
// @Summary Logout user
// @Description Detach the browser session from the account
// @Tags auth
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	session := CurrentSession(c)
	session.UserID = ""
	session.SkipIncrement = false

	if err := h.sessions.Save(c, session); err != nil {
		h.internalError(c, "Failed to update session", err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Logged out successfully",
	})
}

// GetMe handles getting current user profile
// @Summary Get current user profile
// @Description Get information about the logged in user
// @Tags auth
// @Produce json
// @Success 200 {object} dto.UserResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, err := h.authService.GetUser(c.Request.Context(), CurrentSession(c).UserID)
	if err != nil {
		h.internalError(c, "Failed to load user", err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "Internal server error",
		Message: msg,
	})
}
