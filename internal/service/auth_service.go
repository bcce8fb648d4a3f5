package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/repository"
	"github.com/prperemyshlev/runcup-connect/internal/utils"
	"go.uber.org/zap"
)

// AuthResult is a signed-in account plus what happened to the guest's
// Strava connection on the way in.
type AuthResult struct {
	User      *domain.User
	Migration MigrationResult
}

// authService implements AuthService interface
type authService struct {
	userRepo   repository.UserRepository
	sessions   ConnectionManager
	bcryptCost int
	logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	sessions ConnectionManager,
	bcryptCost int,
	logger *zap.Logger,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		sessions:   sessions,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates an account, or activates one created by a guest order
// that never set a password. A guest Strava connection moves to the account.
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest, guestID string) (*AuthResult, error) {
	email := utils.SanitizeEmail(req.Email)

	// Validate email format
	if !utils.ValidateEmail(email) {
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}

	// Validate password
	if !utils.ValidatePassword(req.Password) {
		return nil, fmt.Errorf("%w: password must be at least 8 characters long and contain uppercase, lowercase, and number", ErrInvalidInput)
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if existing != nil && existing.HasPassword() {
		return nil, ErrUserExists
	}

	passwordHash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := existing
	if user == nil {
		user = &domain.User{
			Email:        email,
			FirstName:    utils.SanitizeName(req.FirstName),
			LastName:     utils.SanitizeName(req.LastName),
			PasswordHash: &passwordHash,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return nil, ErrUserExists
			}
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	} else {
		user.PasswordHash = &passwordHash
		if name := utils.SanitizeName(req.FirstName); name != "" {
			user.FirstName = name
		}
		if name := utils.SanitizeName(req.LastName); name != "" {
			user.LastName = name
		}
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to activate user: %w", err)
		}
		s.logger.Info("Activated account created by guest order", zap.String("user_id", user.ID))
	}

	return s.signIn(ctx, user, guestID, false)
}

// Login authenticates a user
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, guestID string) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() || !utils.CheckPasswordHash(req.Password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("Failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.signIn(ctx, user, guestID, true)
}

// signIn migrates the guest connection and, on login, syncs the stored
// Strava token so an expired one is refreshed right away.
func (s *authService) signIn(ctx context.Context, user *domain.User, guestID string, syncToken bool) (*AuthResult, error) {
	result := &AuthResult{User: user}

	if guestID != "" {
		migration, err := s.sessions.MigrateGuestToAccount(ctx, guestID, user.ID)
		if err != nil {
			s.logger.Error("Failed to migrate guest Strava connection",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
		result.Migration = migration
	}

	if syncToken && !result.Migration.Migrated {
		if _, err := s.sessions.GetActiveToken(ctx, domain.Account(user.ID), true); err != nil {
			s.logger.Warn("Strava token sync failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return result, nil
}

// GetUser gets user information
func (s *authService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	response := dto.NewUserResponse(user, time.Now())
	return &response, nil
}
