package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/provider/strava"
	"github.com/prperemyshlev/runcup-connect/pkg/database"
	"github.com/redis/go-redis/v9"
)

// ActivitySelections remembers the activity a browser session imported
// for its cup.
type ActivitySelections struct {
	redis *database.Redis
	ttl   time.Duration
}

func NewActivitySelections(redis *database.Redis, ttl time.Duration) *ActivitySelections {
	return &ActivitySelections{redis: redis, ttl: ttl}
}

func selectionKey(sessionID string) string {
	return fmt.Sprintf("strava:selected_activity:%s", sessionID)
}

func (s *ActivitySelections) Save(ctx context.Context, sessionID string, summary strava.ActivitySummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode activity selection: %w", err)
	}

	if err := s.redis.Client.Set(ctx, selectionKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save activity selection: %w", err)
	}
	return nil
}

// Get returns nil when the session has not imported anything.
func (s *ActivitySelections) Get(ctx context.Context, sessionID string) (*strava.ActivitySummary, error) {
	data, err := s.redis.Client.Get(ctx, selectionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity selection: %w", err)
	}

	var summary strava.ActivitySummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode activity selection: %w", err)
	}
	return &summary, nil
}

func (s *ActivitySelections) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Client.Del(ctx, selectionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete activity selection: %w", err)
	}
	return nil
}
