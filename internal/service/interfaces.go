package service

import (
	"context"

	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/provider/strava"
)

// AuthService defines methods for account operations
type AuthService interface {
	// Register and Login migrate the Strava connection of guestID, if any.
	Register(ctx context.Context, req *dto.RegisterRequest, guestID string) (*AuthResult, error)
	Login(ctx context.Context, req *dto.LoginRequest, guestID string) (*AuthResult, error)
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
}

// ConnectionManager is the Strava token lifecycle as seen by handlers.
type ConnectionManager interface {
	GetActiveToken(ctx context.Context, p domain.Principal, allowRefresh bool) (string, error)
	Refresh(ctx context.Context, p domain.Principal) (string, error)
	Connect(ctx context.Context, req ConnectRequest) (*ConnectResult, error)
	Disconnect(ctx context.Context, p domain.Principal, sessionID string) (bool, error)
	MigrateGuestToAccount(ctx context.Context, guestID, accountID string) (MigrationResult, error)
	RecalculateQuota(ctx context.Context) (int, error)
	SweepExpired(ctx context.Context) (*SweepResult, error)
	Admit(ctx context.Context) (int, error)
	AllowImplicitRefresh(ctx context.Context, sessionID string) bool
	Quota(ctx context.Context) (*QuotaStatus, error)
}

// TokenProvider is the OAuth side of Strava used by the session manager.
type TokenProvider interface {
	Exchange(ctx context.Context, code string) (*domain.TokenRecord, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenRecord, error)
	Deauthorize(ctx context.Context, accessToken string) error
}

// ActivityProvider reads athlete activities.
type ActivityProvider interface {
	AuthCodeURL(state string) string
	ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]strava.Activity, error)
	GetActivity(ctx context.Context, accessToken string, id int64) (*strava.Activity, error)
}

// DisconnectFlagStore remembers that a browser session just disconnected.
type DisconnectFlagStore interface {
	Set(ctx context.Context, sessionID string) error
	Consume(ctx context.Context, sessionID string) (bool, error)
}

var (
	_ ConnectionManager = (*SessionManager)(nil)
	_ TokenProvider     = (*strava.Client)(nil)
	_ ActivityProvider  = (*strava.Client)(nil)
)
