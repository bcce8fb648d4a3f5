package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/utils"
	"go.uber.org/zap"
)

const sessionContextKey = "session"

// SessionCookie loads, creates and writes the signed browser session.
type SessionCookie struct {
	codec  *utils.SessionCodec
	name   string
	secure bool
	logger *zap.Logger
}

// NewSessionCookie creates a session cookie manager
func NewSessionCookie(codec *utils.SessionCodec, name string, secure bool, logger *zap.Logger) *SessionCookie {
	return &SessionCookie{
		codec:  codec,
		name:   name,
		secure: secure,
		logger: logger,
	}
}

// Middleware puts the session claims into the context. Requests without a
// valid cookie get a fresh anonymous session. Sessions past half of their
// lifetime are re-issued.
func (s *SessionCookie) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var claims *domain.SessionClaims

		if raw, err := c.Cookie(s.name); err == nil && raw != "" {
			decoded, err := s.codec.Decode(raw)
			if err != nil {
				s.logger.Debug("Discarding session cookie", zap.Error(err))
			} else {
				claims = decoded
			}
		}

		renew := claims == nil || time.Until(claims.ExpiresAt) < s.codec.TTL()/2
		if claims == nil {
			claims = &domain.SessionClaims{SessionID: uuid.NewString()}
		}

		c.Set(sessionContextKey, claims)

		if renew {
			if err := s.Save(c, claims); err != nil {
				s.logger.Error("Failed to issue session cookie", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Error:   "Internal server error",
					Message: "Could not start a session",
				})
				return
			}
		}

		c.Next()
	}
}

// Save signs the claims into the cookie. Call it before writing the body.
func (s *SessionCookie) Save(c *gin.Context, claims *domain.SessionClaims) error {
	token, err := s.codec.Encode(*claims)
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.name, token, int(s.codec.TTL().Seconds()), "/", "", s.secure, true)
	return nil
}

// CurrentSession returns the claims set by the session middleware.
func CurrentSession(c *gin.Context) *domain.SessionClaims {
	if v, ok := c.Get(sessionContextKey); ok {
		if claims, ok := v.(*domain.SessionClaims); ok {
			return claims
		}
	}
	return &domain.SessionClaims{}
}

// RequireAccount rejects sessions that are not logged in to an account
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c).UserID == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Login required",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
