package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/internal/repository"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*domain.User)}
}

func copyToken(t *domain.TokenRecord) *domain.TokenRecord {
	if t.Empty() {
		return nil
	}
	c := *t
	return &c
}

func (f *fakeUsers) add(id string, token *domain.TokenRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &domain.User{ID: id, Email: id + "@example.com", Strava: copyToken(token)}
}

func (f *fakeUsers) token(id string) *domain.TokenRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyToken(f.users[id].Strava)
}

func (f *fakeUsers) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, repository.ErrNotFound)
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) Update(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Email, u.FirstName, u.LastName, u.PasswordHash = user.Email, user.FirstName, user.LastName, user.PasswordHash
	return nil
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (f *fakeUsers) GetStravaToken(_ context.Context, userID string) (*domain.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyToken(u.Strava), nil
}

func (f *fakeUsers) SaveStravaToken(_ context.Context, userID string, token *domain.TokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Strava = copyToken(token)
	return nil
}

func (f *fakeUsers) ClearStravaToken(_ context.Context, userID string, keepRefresh bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Strava = clearAccess(u.Strava, keepRefresh)
	return nil
}

func (f *fakeUsers) CountLiveStravaTokens(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.users {
		if u.Strava.Live(now) {
			n++
		}
	}
	return n, nil
}

func (f *fakeUsers) ClearExpiredStravaTokens(_ context.Context, now time.Time, keepRefresh bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.users {
		if u.Strava != nil && u.Strava.AccessToken != "" && !u.Strava.ExpiresAt.After(now) {
			u.Strava = clearAccess(u.Strava, keepRefresh)
			n++
		}
	}
	return n, nil
}

func clearAccess(t *domain.TokenRecord, keepRefresh bool) *domain.TokenRecord {
	if t == nil || !keepRefresh {
		return nil
	}
	return copyToken(&domain.TokenRecord{RefreshToken: t.RefreshToken})
}

type fakeGuests struct {
	mu       sync.Mutex
	sessions map[string]domain.TokenRecord
}

func newFakeGuests() *fakeGuests {
	return &fakeGuests{sessions: make(map[string]domain.TokenRecord)}
}

func (f *fakeGuests) has(guestID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[guestID]
	return ok
}

func (f *fakeGuests) Get(_ context.Context, guestID string) (*domain.GuestTokenSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.sessions[guestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.GuestTokenSession{GuestID: guestID, Token: t}, nil
}

func (f *fakeGuests) Upsert(_ context.Context, guestID string, token *domain.TokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[guestID] = *token
	return nil
}

func (f *fakeGuests) Delete(_ context.Context, guestID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[guestID]
	delete(f.sessions, guestID)
	return ok, nil
}

func (f *fakeGuests) CountLive(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.sessions {
		if t.Live(now) {
			n++
		}
	}
	return n, nil
}

func (f *fakeGuests) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, t := range f.sessions {
		if !t.ExpiresAt.After(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeStats struct {
	mu    sync.Mutex
	count int
}

func (f *fakeStats) get() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeStats) ConnectedCount(context.Context) (int, error) {
	return f.get(), nil
}

func (f *fakeStats) AdjustConnectedCount(_ context.Context, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = max(f.count+delta, 0)
	return f.count, nil
}

func (f *fakeStats) SetConnectedCount(_ context.Context, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = count
	return nil
}

type fakeProvider struct {
	exchangeCalls    atomic.Int32
	refreshCalls     atomic.Int32
	deauthorizeCalls atomic.Int32

	exchange    func(code string) (*domain.TokenRecord, error)
	refresh     func(refreshToken string) (*domain.TokenRecord, error)
	deauthorize func(accessToken string) error
}

func (f *fakeProvider) calls() int {
	return int(f.exchangeCalls.Load() + f.refreshCalls.Load() + f.deauthorizeCalls.Load())
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*domain.TokenRecord, error) {
	f.exchangeCalls.Add(1)
	return f.exchange(code)
}

func (f *fakeProvider) Refresh(_ context.Context, refreshToken string) (*domain.TokenRecord, error) {
	f.refreshCalls.Add(1)
	return f.refresh(refreshToken)
}

func (f *fakeProvider) Deauthorize(_ context.Context, accessToken string) error {
	f.deauthorizeCalls.Add(1)
	if f.deauthorize == nil {
		return nil
	}
	return f.deauthorize(accessToken)
}

type fakeFlags struct {
	mu    sync.Mutex
	flags map[string]bool
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{flags: make(map[string]bool)}
}

func (f *fakeFlags) Set(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[sessionID] = true
	return nil
}

func (f *fakeFlags) Consume(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.flags[sessionID]
	delete(f.flags, sessionID)
	return set, nil
}
