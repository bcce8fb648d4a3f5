package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/runcup-connect/pkg/database"
	"github.com/redis/go-redis/v9"
)

// DisconnectFlags marks browser sessions that just disconnected from
// Strava so the next page load does not silently reconnect them.
type DisconnectFlags struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewDisconnectFlags creates a flag store whose flags expire after ttl
func NewDisconnectFlags(redis *database.Redis, ttl time.Duration) *DisconnectFlags {
	return &DisconnectFlags{redis: redis, ttl: ttl}
}

func disconnectFlagKey(sessionID string) string {
	return fmt.Sprintf("strava:just_disconnected:%s", sessionID)
}

// Set raises the flag for a session
func (s *DisconnectFlags) Set(ctx context.Context, sessionID string) error {
	err := s.redis.Client.Set(ctx, disconnectFlagKey(sessionID), "1", s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set disconnect flag: %w", err)
	}
	return nil
}

// Consume reports whether the flag was raised and clears it
func (s *DisconnectFlags) Consume(ctx context.Context, sessionID string) (bool, error) {
	err := s.redis.Client.GetDel(ctx, disconnectFlagKey(sessionID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume disconnect flag: %w", err)
	}
	return true, nil
}
