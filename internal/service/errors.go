package service

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderExchange is returned when Strava refuses or fails the
	// authorization code exchange. No token is written in that case.
	ErrProviderExchange = errors.New("could not connect to Strava, try again")

	// ErrQuotaExceeded is returned when the connection ceiling is reached.
	ErrQuotaExceeded = errors.New("Strava connection capacity reached")

	// ErrNotConnected is returned by Refresh when the principal holds no refresh token.
	ErrNotConnected = errors.New("principal is not connected to Strava")

	ErrRefreshTransient    = errors.New("strava refresh failed temporarily")
	ErrRefreshInvalidGrant = errors.New("strava refresh token was rejected")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user with this email already exists")
	ErrInvalidInput       = errors.New("invalid input")
)

// RefreshKind tells a caller whether retrying a failed refresh makes sense.
type RefreshKind int

const (
	RefreshTransient RefreshKind = iota + 1
	RefreshInvalidGrant
)

func (k RefreshKind) String() string {
	switch k {
	case RefreshTransient:
		return "transient"
	case RefreshInvalidGrant:
		return "invalid_grant"
	default:
		return "unknown"
	}
}

// RefreshError wraps a failed provider refresh.
type RefreshError struct {
	Kind RefreshKind
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("strava refresh failed (%s): %v", e.Kind, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Is matches ErrRefreshTransient or ErrRefreshInvalidGrant by kind.
func (e *RefreshError) Is(target error) bool {
	switch target {
	case ErrRefreshTransient:
		return e.Kind == RefreshTransient
	case ErrRefreshInvalidGrant:
		return e.Kind == RefreshInvalidGrant
	default:
		return false
	}
}
