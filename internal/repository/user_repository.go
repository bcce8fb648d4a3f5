package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/pkg/database"
)

const userColumns = `id, email, first_name, last_name, password_hash, created_at, updated_at, last_login_at,
	strava_access_token, strava_refresh_token, strava_token_expires_at`

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, first_name, last_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user with email %s already exists: %w", user.Email, ErrDuplicateEmail)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with email %s not found: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}

// Update updates profile fields and the password hash. Token columns are
// only written through the Strava token methods.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, password_hash = $5, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user with email %s already exists: %w", user.Email, ErrDuplicateEmail)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectOneRow(result, "user", user.ID)
}

// UpdateLastLogin updates the last login timestamp for a user
func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`

	result, err := r.db.DB.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return expectOneRow(result, "user", userID)
}

// GetStravaToken returns the account's token record, or nil when the
// account holds neither token.
func (r *userRepository) GetStravaToken(ctx context.Context, userID string) (*domain.TokenRecord, error) {
	query := `
		SELECT strava_access_token, strava_refresh_token, strava_token_expires_at
		FROM users
		WHERE id = $1
	`

	var access, refresh sql.NullString
	var expiresAt sql.NullTime

	err := r.db.DB.QueryRowContext(ctx, query, userID).Scan(&access, &refresh, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with id %s not found: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get strava token: %w", err)
	}

	return tokenFromColumns(access, refresh, expiresAt), nil
}

// SaveStravaToken overwrites all three token columns in one statement.
func (r *userRepository) SaveStravaToken(ctx context.Context, userID string, token *domain.TokenRecord) error {
	query := `
		UPDATE users
		SET strava_access_token = $2, strava_refresh_token = $3, strava_token_expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`

	access, refresh, expiresAt := tokenToColumns(token)

	result, err := r.db.DB.ExecContext(ctx, query, userID, access, refresh, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save strava token: %w", err)
	}

	return expectOneRow(result, "user", userID)
}

// ClearStravaToken nulls the access token and its expiry, and the refresh
// token unless keepRefresh is set.
func (r *userRepository) ClearStravaToken(ctx context.Context, userID string, keepRefresh bool) error {
	query := `
		UPDATE users
		SET strava_access_token = NULL,
		    strava_token_expires_at = NULL,
		    strava_refresh_token = CASE WHEN $2 THEN strava_refresh_token ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, keepRefresh)
	if err != nil {
		return fmt.Errorf("failed to clear strava token: %w", err)
	}

	return expectOneRow(result, "user", userID)
}

// CountLiveStravaTokens counts accounts whose access token is set and not expired.
func (r *userRepository) CountLiveStravaTokens(ctx context.Context, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM users
		WHERE strava_access_token IS NOT NULL AND strava_token_expires_at > $1
	`

	var count int
	if err := r.db.DB.QueryRowContext(ctx, query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count live strava tokens: %w", err)
	}

	return count, nil
}

// ClearExpiredStravaTokens clears access tokens that reached their expiry
// and returns the number of accounts touched.
func (r *userRepository) ClearExpiredStravaTokens(ctx context.Context, now time.Time, keepRefresh bool) (int, error) {
	query := `
		UPDATE users
		SET strava_access_token = NULL,
		    strava_token_expires_at = NULL,
		    strava_refresh_token = CASE WHEN $2 THEN strava_refresh_token ELSE NULL END,
		    updated_at = NOW()
		WHERE strava_access_token IS NOT NULL AND strava_token_expires_at <= $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, now, keepRefresh)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired strava tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var passwordHash, access, refresh sql.NullString
	var lastLoginAt, expiresAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&passwordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLoginAt,
		&access,
		&refresh,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	user.Strava = tokenFromColumns(access, refresh, expiresAt)

	return user, nil
}

func tokenFromColumns(access, refresh sql.NullString, expiresAt sql.NullTime) *domain.TokenRecord {
	if !access.Valid && !refresh.Valid {
		return nil
	}

	token := &domain.TokenRecord{
		AccessToken:  access.String,
		RefreshToken: refresh.String,
	}
	if expiresAt.Valid {
		token.ExpiresAt = expiresAt.Time
	}

	return token
}

func tokenToColumns(token *domain.TokenRecord) (access, refresh sql.NullString, expiresAt sql.NullTime) {
	if token == nil {
		return
	}

	access = sql.NullString{String: token.AccessToken, Valid: token.AccessToken != ""}
	refresh = sql.NullString{String: token.RefreshToken, Valid: token.RefreshToken != ""}
	expiresAt = sql.NullTime{Time: token.ExpiresAt, Valid: !token.ExpiresAt.IsZero()}
	return
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func expectOneRow(result sql.Result, entity, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s with id %s not found: %w", entity, id, ErrNotFound)
	}

	return nil
}
