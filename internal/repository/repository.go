package repository

import (
	"github.com/prperemyshlev/runcup-connect/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User       UserRepository
	GuestToken GuestTokenRepository
	Stats      StatsRepository
	Tokens     TokenStore
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	users := NewUserRepository(db)
	guests := NewGuestTokenRepository(db)

	return &Repositories{
		User:       users,
		GuestToken: guests,
		Stats:      NewStatsRepository(db),
		Tokens:     NewTokenStore(users, guests),
	}
}
