package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
)

// ErrInvalidSession is returned for cookies that fail signature or expiry checks
var ErrInvalidSession = errors.New("invalid session token")

type sessionClaims struct {
	SessionID     string `json:"sid"`
	UserID        string `json:"uid,omitempty"`
	GuestID       string `json:"gid,omitempty"`
	SkipIncrement bool   `json:"skip,omitempty"`
	jwt.RegisteredClaims
}

// SessionCodec signs and verifies the browser session cookie
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionCodec creates a codec issuing HS256 tokens valid for ttl
func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	return &SessionCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns how long an issued session stays valid
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Encode signs the claims with a fresh expiry, sliding the session forward
func (c *SessionCodec) Encode(claims domain.SessionClaims) (string, error) {
	if claims.SessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		SessionID:     claims.SessionID,
		UserID:        claims.UserID,
		GuestID:       claims.GuestID,
		SkipIncrement: claims.SkipIncrement,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})

	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}

	return tokenString, nil
}

// Decode verifies a session token and returns its claims
func (c *SessionCodec) Decode(tokenString string) (*domain.SessionClaims, error) {
	var claims sessionClaims

	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidSession)
	}

	return &domain.SessionClaims{
		SessionID:     claims.SessionID,
		UserID:        claims.UserID,
		GuestID:       claims.GuestID,
		SkipIncrement: claims.SkipIncrement,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}
