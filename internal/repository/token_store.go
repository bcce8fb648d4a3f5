package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/prperemyshlev/runcup-connect/internal/domain"
)

type tokenStore struct {
	users  UserRepository
	guests GuestTokenRepository
}

// NewTokenStore routes token reads and writes to the users table or the
// guest table depending on the principal kind.
func NewTokenStore(users UserRepository, guests GuestTokenRepository) TokenStore {
	return &tokenStore{users: users, guests: guests}
}

// Load returns nil, nil when the principal holds no record.
func (s *tokenStore) Load(ctx context.Context, p domain.Principal) (*domain.TokenRecord, error) {
	switch {
	case p.IsZero():
		return nil, fmt.Errorf("load token for %s: %w", p, ErrUnsupportedPrincipal)
	case p.IsGuest():
		session, err := s.guests.Get(ctx, p.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		token := session.Token
		return &token, nil
	default:
		token, err := s.users.GetStravaToken(ctx, p.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return token, nil
	}
}

func (s *tokenStore) Save(ctx context.Context, p domain.Principal, token *domain.TokenRecord) error {
	switch {
	case p.IsZero():
		return fmt.Errorf("save token for %s: %w", p, ErrUnsupportedPrincipal)
	case p.IsGuest():
		return s.guests.Upsert(ctx, p.ID, token)
	default:
		return s.users.SaveStravaToken(ctx, p.ID, token)
	}
}

func (s *tokenStore) Clear(ctx context.Context, p domain.Principal, keepRefresh bool) error {
	switch {
	case p.IsZero():
		return fmt.Errorf("clear token for %s: %w", p, ErrUnsupportedPrincipal)
	case p.IsGuest():
		_, err := s.guests.Delete(ctx, p.ID)
		return err
	default:
		err := s.users.ClearStravaToken(ctx, p.ID, keepRefresh)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
}
