package domain

import (
	"errors"
	"time"
)

// ErrInvalidGrant is wrapped by provider clients when a refresh token or
// authorization code has been permanently rejected.
var ErrInvalidGrant = errors.New("grant permanently rejected by provider")

// ErrClientRejected means the provider refused our own client credentials.
// The user's grant may still be valid, so it is never treated as permanent.
var ErrClientRejected = errors.New("client credentials rejected by provider")

// TokenRecord is the Strava access/refresh token pair held by a principal.
// A principal without a connection has no record at all (nil).
type TokenRecord struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Live reports whether the access token can be used right now.
func (t *TokenRecord) Live(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// Empty reports whether the record carries neither token.
func (t *TokenRecord) Empty() bool {
	return t == nil || (t.AccessToken == "" && t.RefreshToken == "")
}

func (t *TokenRecord) CanRefresh() bool {
	return t != nil && t.RefreshToken != ""
}
