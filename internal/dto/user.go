package dto

import (
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/domain"
)

// NewUserResponse maps an account to its public representation
func NewUserResponse(user *domain.User, now time.Time) UserResponse {
	response := UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       user.UpdatedAt.Format(time.RFC3339),
		StravaConnected: user.Strava.Live(now),
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	return response
}
