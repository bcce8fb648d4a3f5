package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/utils"
	"github.com/prperemyshlev/runcup-connect/pkg/database"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidOAuthState is returned for unknown, expired or reused state values.
var ErrInvalidOAuthState = errors.New("invalid or expired oauth state")

// OAuthState is what the authorization callback needs to finish a connect.
type OAuthState struct {
	SessionID     string `json:"session_id"`
	AccountID     string `json:"account_id,omitempty"`
	GuestID       string `json:"guest_id,omitempty"`
	SkipIncrement bool   `json:"skip_increment,omitempty"`
}

// OAuthStateStore keeps one-time CSRF state values for the Strava redirect.
type OAuthStateStore struct {
	redis *database.Redis
	ttl   time.Duration
}

func NewOAuthStateStore(redis *database.Redis, ttl time.Duration) *OAuthStateStore {
	return &OAuthStateStore{redis: redis, ttl: ttl}
}

func oauthStateKey(state string) string {
	return fmt.Sprintf("strava:oauth_state:%s", state)
}

// Issue stores the payload under a new random state value and returns it.
func (s *OAuthStateStore) Issue(ctx context.Context, payload OAuthState) (string, error) {
	state, err := utils.RandomToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth state: %w", err)
	}

	if err := s.redis.Client.Set(ctx, oauthStateKey(state), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	return state, nil
}

// Consume returns the payload of a state value and deletes it.
func (s *OAuthStateStore) Consume(ctx context.Context, state string) (*OAuthState, error) {
	if state == "" {
		return nil, ErrInvalidOAuthState
	}

	data, err := s.redis.Client.GetDel(ctx, oauthStateKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidOAuthState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	var payload OAuthState
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode oauth state: %w", err)
	}

	return &payload, nil
}
