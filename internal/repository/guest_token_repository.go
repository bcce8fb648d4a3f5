package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/pkg/database"
)

// guestTokenRepository implements GuestTokenRepository interface
type guestTokenRepository struct {
	db *database.Postgres
}

// NewGuestTokenRepository creates a new guest token repository
func NewGuestTokenRepository(db *database.Postgres) GuestTokenRepository {
	return &guestTokenRepository{db: db}
}

// Get retrieves the Strava session stored for a guest
func (r *guestTokenRepository) Get(ctx context.Context, guestID string) (*domain.GuestTokenSession, error) {
	query := `
		SELECT id, guest_id, access_token, refresh_token, expires_at, created_at
		FROM guest_strava_sessions
		WHERE guest_id = $1
	`

	session := &domain.GuestTokenSession{}
	var refresh sql.NullString

	err := r.db.DB.QueryRowContext(ctx, query, guestID).Scan(
		&session.ID,
		&session.GuestID,
		&session.Token.AccessToken,
		&refresh,
		&session.Token.ExpiresAt,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("guest session %s not found: %w", guestID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get guest session: %w", err)
	}

	session.Token.RefreshToken = refresh.String
	return session, nil
}

// Upsert stores the token for a guest, replacing any previous one
func (r *guestTokenRepository) Upsert(ctx context.Context, guestID string, token *domain.TokenRecord) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("guest session %s requires an access token", guestID)
	}

	query := `
		INSERT INTO guest_strava_sessions (guest_id, access_token, refresh_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (guest_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at
	`

	_, refresh, _ := tokenToColumns(token)

	_, err := r.db.DB.ExecContext(ctx, query, guestID, token.AccessToken, refresh, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert guest session: %w", err)
	}

	return nil
}

// Delete removes a guest session and reports whether a row existed
func (r *guestTokenRepository) Delete(ctx context.Context, guestID string) (bool, error) {
	query := `DELETE FROM guest_strava_sessions WHERE guest_id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, guestID)
	if err != nil {
		return false, fmt.Errorf("failed to delete guest session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountLive counts guest sessions whose access token has not expired
func (r *guestTokenRepository) CountLive(ctx context.Context, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM guest_strava_sessions WHERE expires_at > $1`

	var count int
	if err := r.db.DB.QueryRowContext(ctx, query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count live guest sessions: %w", err)
	}

	return count, nil
}

// DeleteExpired removes all expired guest sessions
func (r *guestTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM guest_strava_sessions WHERE expires_at <= $1`

	result, err := r.db.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired guest sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}
