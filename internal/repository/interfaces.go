package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/domain"
)

// UserRepository defines methods for user operations, including the
// Strava token columns carried on the account row.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, userID string) error

	GetStravaToken(ctx context.Context, userID string) (*domain.TokenRecord, error)
	SaveStravaToken(ctx context.Context, userID string, token *domain.TokenRecord) error
	ClearStravaToken(ctx context.Context, userID string, keepRefresh bool) error
	CountLiveStravaTokens(ctx context.Context, now time.Time) (int, error)
	ClearExpiredStravaTokens(ctx context.Context, now time.Time, keepRefresh bool) (int, error)
}

// GuestTokenRepository persists Strava connections of anonymous visitors.
type GuestTokenRepository interface {
	Get(ctx context.Context, guestID string) (*domain.GuestTokenSession, error)
	Upsert(ctx context.Context, guestID string, token *domain.TokenRecord) error
	Delete(ctx context.Context, guestID string) (bool, error)
	CountLive(ctx context.Context, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// StatsRepository holds the process-wide connection counter.
type StatsRepository interface {
	ConnectedCount(ctx context.Context) (int, error)
	AdjustConnectedCount(ctx context.Context, delta int) (int, error)
	SetConnectedCount(ctx context.Context, count int) error
}

// TokenStore reads and writes the TokenRecord of any principal, hiding
// whether it lives on the account row or in the guest table.
type TokenStore interface {
	Load(ctx context.Context, p domain.Principal) (*domain.TokenRecord, error)
	Save(ctx context.Context, p domain.Principal, token *domain.TokenRecord) error
	// Clear removes the connection. Guest records are always deleted;
	// account rows keep their refresh token when keepRefresh is set.
	Clear(ctx context.Context, p domain.Principal, keepRefresh bool) error
}
