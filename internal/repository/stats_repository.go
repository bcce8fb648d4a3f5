package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prperemyshlev/runcup-connect/pkg/database"
)

const statsRowID = 1

type statsRepository struct {
	db *database.Postgres
}

// NewStatsRepository creates a repository over the single app_stats row
func NewStatsRepository(db *database.Postgres) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) ConnectedCount(ctx context.Context) (int, error) {
	query := `SELECT strava_connected_count FROM app_stats WHERE id = $1`

	var count int
	err := r.db.DB.QueryRowContext(ctx, query, statsRowID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get connected count: %w", err)
	}

	return count, nil
}

// AdjustConnectedCount adds delta to the counter, flooring at zero, and
// returns the new value.
func (r *statsRepository) AdjustConnectedCount(ctx context.Context, delta int) (int, error) {
	query := `
		INSERT INTO app_stats (id, strava_connected_count)
		VALUES ($1, GREATEST($2, 0))
		ON CONFLICT (id) DO UPDATE
		SET strava_connected_count = GREATEST(app_stats.strava_connected_count + $2, 0)
		RETURNING strava_connected_count
	`

	var count int
	if err := r.db.DB.QueryRowContext(ctx, query, statsRowID, delta).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to adjust connected count: %w", err)
	}

	return count, nil
}

func (r *statsRepository) SetConnectedCount(ctx context.Context, count int) error {
	if count < 0 {
		count = 0
	}

	query := `
		INSERT INTO app_stats (id, strava_connected_count)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET strava_connected_count = EXCLUDED.strava_connected_count
	`

	if _, err := r.db.DB.ExecContext(ctx, query, statsRowID, count); err != nil {
		return fmt.Errorf("failed to set connected count: %w", err)
	}

	return nil
}
