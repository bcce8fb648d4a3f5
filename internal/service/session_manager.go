package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/internal/repository"
	"github.com/prperemyshlev/runcup-connect/pkg/observability"
	"go.uber.org/zap"
)

// SessionManagerConfig is the connection lifecycle policy.
type SessionManagerConfig struct {
	ConnectionCeiling       int
	DisconnectClearsRefresh bool
	SweepKeepsRefresh       bool
	DeauthorizeTimeout      time.Duration
}

// ConnectRequest carries everything the authorization callback knows.
type ConnectRequest struct {
	Principal domain.Principal
	Code      string
	// PriorGuestID is the guest identity the browser session held before it
	// acted as Principal. Its live record is the slot being reused.
	PriorGuestID string
	// SkipIncrement is set when a migration already accounted for this connection.
	SkipIncrement bool
}

type ConnectResult struct {
	ExpiresAt  time.Time
	QuotaDelta int
}

// MigrationResult tells the caller whether the next connect must skip the increment.
type MigrationResult struct {
	Migrated          bool
	SkipNextIncrement bool
}

type SweepResult struct {
	AccountsCleared int
	GuestsDeleted   int
	Connected       int
}

type QuotaStatus struct {
	Connected int `json:"connected"`
	Ceiling   int `json:"ceiling"`
	Available int `json:"available"`
}

// SessionManager owns Strava tokens of accounts and guests and the global
// connection counter. Writes for one principal are serialized in-process.
type SessionManager struct {
	tokens   repository.TokenStore
	users    repository.UserRepository
	guests   repository.GuestTokenRepository
	stats    repository.StatsRepository
	provider TokenProvider
	flags    DisconnectFlagStore
	metrics  *observability.SessionMetrics
	cfg      SessionManagerConfig
	logger   *zap.Logger
	locks    *principalLocks
	now      func() time.Time
}

func NewSessionManager(
	repos *repository.Repositories,
	provider TokenProvider,
	flags DisconnectFlagStore,
	metrics *observability.SessionMetrics,
	cfg SessionManagerConfig,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		tokens:   repos.Tokens,
		users:    repos.User,
		guests:   repos.GuestToken,
		stats:    repos.Stats,
		provider: provider,
		flags:    flags,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		locks:    newPrincipalLocks(),
		now:      time.Now,
	}
}

// GetActiveToken returns a usable access token or "" when the principal
// has none. The provider is only contacted when allowRefresh is set and
// the stored access token is not live. A rejected refresh token clears the
// record and yields "" without error; a transient failure yields a
// *RefreshError. Reviving a swept connection goes through admission and
// yields "" when the ceiling is reached.
func (m *SessionManager) GetActiveToken(ctx context.Context, p domain.Principal, allowRefresh bool) (string, error) {
	record, err := m.tokens.Load(ctx, p)
	if err != nil {
		return "", fmt.Errorf("failed to load strava token for %s: %w", p, err)
	}

	if record.Live(m.now()) {
		return record.AccessToken, nil
	}
	if !allowRefresh || !record.CanRefresh() {
		return "", nil
	}

	unlock := m.locks.lock(p.String())
	defer unlock()

	token, err := m.refreshLocked(ctx, p, true)
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, ErrRefreshInvalidGrant), errors.Is(err, ErrNotConnected), errors.Is(err, ErrQuotaExceeded):
		return "", nil
	default:
		return "", err
	}
}

// Refresh mints a new access token from the stored refresh token.
func (m *SessionManager) Refresh(ctx context.Context, p domain.Principal) (string, error) {
	unlock := m.locks.lock(p.String())
	defer unlock()

	return m.refreshLocked(ctx, p, false)
}

// refreshLocked re-reads the record under the principal lock. With
// reuseLive, a token refreshed by a concurrent caller is returned as is.
func (m *SessionManager) refreshLocked(ctx context.Context, p domain.Principal, reuseLive bool) (string, error) {
	record, err := m.tokens.Load(ctx, p)
	if err != nil {
		return "", fmt.Errorf("failed to load strava token for %s: %w", p, err)
	}

	if reuseLive && record.Live(m.now()) {
		return record.AccessToken, nil
	}
	if !record.CanRefresh() {
		return "", ErrNotConnected
	}

	// A cleared access token is no longer counted, so reviving it takes a new slot.
	revives := record.AccessToken == ""
	if revives {
		if _, err := m.Admit(ctx); err != nil {
			return "", err
		}
	}

	fresh, err := m.provider.Refresh(ctx, record.RefreshToken)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidGrant) {
			m.metrics.RecordRefresh(ctx, observability.OutcomeTransient)
			log := m.logger.Warn
			if errors.Is(err, domain.ErrClientRejected) {
				log = m.logger.Error
			}
			log("Strava refresh failed, keeping token",
				zap.String("principal", p.String()),
				zap.Error(err),
			)
			return "", &RefreshError{Kind: RefreshTransient, Err: err}
		}

		m.metrics.RecordRefresh(ctx, observability.OutcomeInvalidGrant)
		m.logger.Info("Strava refresh token rejected, clearing connection",
			zap.String("principal", p.String()),
		)

		if clearErr := m.tokens.Clear(ctx, p, false); clearErr != nil {
			return "", fmt.Errorf("failed to clear rejected strava token for %s: %w", p, clearErr)
		}
		if record.AccessToken != "" {
			m.adjustQuota(ctx, -1)
		}
		return "", &RefreshError{Kind: RefreshInvalidGrant, Err: err}
	}

	if err := m.tokens.Save(ctx, p, fresh); err != nil {
		return "", fmt.Errorf("failed to save refreshed strava token for %s: %w", p, err)
	}

	if revives {
		m.adjustQuota(ctx, +1)
	}

	m.metrics.RecordRefresh(ctx, observability.OutcomeSuccess)
	return fresh.AccessToken, nil
}

// Connect exchanges an authorization code and stores the token. When the
// connection needs a new slot, admission runs before Strava is contacted.
func (m *SessionManager) Connect(ctx context.Context, req ConnectRequest) (*ConnectResult, error) {
	p := req.Principal
	if p.IsZero() {
		return nil, fmt.Errorf("connect: %w", repository.ErrUnsupportedPrincipal)
	}
	if req.Code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrProviderExchange)
	}

	var prior domain.Principal
	keys := []string{p.String()}
	if req.PriorGuestID != "" {
		prior = domain.Guest(req.PriorGuestID)
		if prior == p {
			prior = domain.Principal{}
		} else {
			keys = append(keys, prior.String())
		}
	}

	unlock := m.locks.lock(keys...)
	defer unlock()

	now := m.now()

	existing, err := m.tokens.Load(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to load strava token for %s: %w", p, err)
	}

	var priorRecord *domain.TokenRecord
	if !prior.IsZero() {
		priorRecord, err = m.tokens.Load(ctx, prior)
		if err != nil {
			return nil, fmt.Errorf("failed to load strava token for %s: %w", prior, err)
		}
	}

	// A migration's skip only holds while the migrated connection still
	// occupies its slot. Once it expired and was swept the slot is gone.
	skip := req.SkipIncrement && existing.Live(now)
	needsSlot := !existing.Live(now) && !priorRecord.Live(now)
	if needsSlot {
		if _, err := m.Admit(ctx); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				m.metrics.RecordConnect(ctx, observability.OutcomeRejected)
			}
			return nil, err
		}
	}

	fresh, err := m.provider.Exchange(ctx, req.Code)
	if err != nil {
		m.metrics.RecordConnect(ctx, observability.OutcomeFailed)
		return nil, fmt.Errorf("%w: %v", ErrProviderExchange, err)
	}

	if err := m.tokens.Save(ctx, p, fresh); err != nil {
		return nil, fmt.Errorf("failed to save strava token for %s: %w", p, err)
	}

	result := &ConnectResult{ExpiresAt: fresh.ExpiresAt}

	if priorRecord != nil {
		if err := m.tokens.Clear(ctx, prior, false); err != nil {
			m.logger.Error("Failed to delete prior guest connection",
				zap.String("principal", prior.String()),
				zap.Error(err),
			)
		} else if !needsSlot && !priorRecord.Live(now) && priorRecord.AccessToken != "" {
			// Without admission nothing recalculated the counter since it expired.
			result.QuotaDelta--
		} else if existing.Live(now) && priorRecord.Live(now) {
			// Two counted connections collapse into one.
			result.QuotaDelta--
		}
	}

	if needsSlot {
		result.QuotaDelta++
	}
	if result.QuotaDelta != 0 {
		m.adjustQuota(ctx, result.QuotaDelta)
	}

	m.metrics.RecordConnect(ctx, observability.OutcomeSuccess)
	m.logger.Info("Strava connected",
		zap.String("principal", p.String()),
		zap.Int("quota_delta", result.QuotaDelta),
		zap.Bool("skip_increment", skip),
	)

	return result, nil
}

// Disconnect revokes and clears the principal's connection. It reports
// false when there was nothing to disconnect.
func (m *SessionManager) Disconnect(ctx context.Context, p domain.Principal, sessionID string) (bool, error) {
	unlock := m.locks.lock(p.String())
	defer unlock()

	record, err := m.tokens.Load(ctx, p)
	if err != nil {
		return false, fmt.Errorf("failed to load strava token for %s: %w", p, err)
	}

	keepRefresh := !m.cfg.DisconnectClearsRefresh
	hasAccess := record != nil && record.AccessToken != ""
	clearsRefresh := record.CanRefresh() && (p.IsGuest() || !keepRefresh)
	if !hasAccess && !clearsRefresh {
		return false, nil
	}

	if hasAccess {
		m.deauthorize(ctx, p, record.AccessToken)
	}

	if err := m.tokens.Clear(ctx, p, keepRefresh); err != nil {
		return false, fmt.Errorf("failed to clear strava token for %s: %w", p, err)
	}

	if hasAccess {
		m.adjustQuota(ctx, -1)
	}

	if sessionID != "" {
		if err := m.flags.Set(ctx, sessionID); err != nil {
			m.logger.Warn("Failed to set disconnect flag", zap.Error(err))
		}
	}

	m.metrics.RecordDisconnect(ctx, p.Kind.String())
	m.logger.Info("Strava disconnected", zap.String("principal", p.String()))

	return true, nil
}

func (m *SessionManager) deauthorize(ctx context.Context, p domain.Principal, accessToken string) {
	if m.cfg.DeauthorizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.DeauthorizeTimeout)
		defer cancel()
	}

	if err := m.provider.Deauthorize(ctx, accessToken); err != nil {
		m.logger.Warn("Strava deauthorization failed, clearing locally",
			zap.String("principal", p.String()),
			zap.Error(err),
		)
	}
}

// MigrateGuestToAccount hands a guest's live connection over to the
// account that guest just logged into or registered.
func (m *SessionManager) MigrateGuestToAccount(ctx context.Context, guestID, accountID string) (MigrationResult, error) {
	guest := domain.Guest(guestID)
	account := domain.Account(accountID)
	if guest.IsZero() || account.IsZero() {
		return MigrationResult{}, nil
	}

	unlock := m.locks.lock(guest.String(), account.String())
	defer unlock()

	record, err := m.tokens.Load(ctx, guest)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to load strava token for %s: %w", guest, err)
	}
	if record == nil {
		return MigrationResult{}, nil
	}

	now := m.now()
	if !record.Live(now) {
		if err := m.tokens.Clear(ctx, guest, false); err != nil {
			return MigrationResult{}, fmt.Errorf("failed to delete expired guest connection: %w", err)
		}
		m.adjustQuota(ctx, -1)
		return MigrationResult{}, nil
	}

	previous, err := m.tokens.Load(ctx, account)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to load strava token for %s: %w", account, err)
	}

	transferred := *record
	if err := m.tokens.Save(ctx, account, &transferred); err != nil {
		return MigrationResult{}, fmt.Errorf("failed to move guest connection to %s: %w", account, err)
	}
	if err := m.tokens.Clear(ctx, guest, false); err != nil {
		return MigrationResult{}, fmt.Errorf("failed to delete migrated guest connection: %w", err)
	}

	// Two counted connections collapse into one.
	if previous.Live(now) {
		m.adjustQuota(ctx, -1)
	}

	m.logger.Info("Guest Strava connection migrated",
		zap.String("from", guest.String()),
		zap.String("to", account.String()),
	)

	return MigrationResult{Migrated: true, SkipNextIncrement: true}, nil
}

// RecalculateQuota rebuilds the counter from live account tokens and live
// guest records.
func (m *SessionManager) RecalculateQuota(ctx context.Context) (int, error) {
	now := m.now()

	accounts, err := m.users.CountLiveStravaTokens(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate quota: %w", err)
	}

	guests, err := m.guests.CountLive(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate quota: %w", err)
	}

	count := accounts + guests
	if err := m.stats.SetConnectedCount(ctx, count); err != nil {
		return 0, fmt.Errorf("failed to store recalculated quota: %w", err)
	}

	m.metrics.RecordConnected(ctx, count)
	return count, nil
}

// SweepExpired clears expired account access tokens, deletes expired
// guest records and recalculates the counter.
func (m *SessionManager) SweepExpired(ctx context.Context) (*SweepResult, error) {
	now := m.now()

	cleared, err := m.users.ClearExpiredStravaTokens(ctx, now, m.cfg.SweepKeepsRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep account tokens: %w", err)
	}

	deleted, err := m.guests.DeleteExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep guest sessions: %w", err)
	}

	count, err := m.RecalculateQuota(ctx)
	if err != nil {
		return nil, err
	}

	if cleared > 0 || deleted > 0 {
		m.logger.Info("Expired Strava connections swept",
			zap.Int("accounts_cleared", cleared),
			zap.Int("guests_deleted", deleted),
			zap.Int("connected", count),
		)
	}

	return &SweepResult{AccountsCleared: cleared, GuestsDeleted: deleted, Connected: count}, nil
}

// Admit sweeps, recalculates and compares against the ceiling. It returns
// the current count, with ErrQuotaExceeded when no slot is free.
func (m *SessionManager) Admit(ctx context.Context) (int, error) {
	result, err := m.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}

	if result.Connected >= m.cfg.ConnectionCeiling {
		m.logger.Warn("Strava connection refused, ceiling reached",
			zap.Int("connected", result.Connected),
			zap.Int("ceiling", m.cfg.ConnectionCeiling),
		)
		return result.Connected, ErrQuotaExceeded
	}

	return result.Connected, nil
}

// AllowImplicitRefresh consumes the session's disconnect flag. It returns
// false exactly once after a disconnect, and when the flag store fails.
func (m *SessionManager) AllowImplicitRefresh(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return true
	}

	consumed, err := m.flags.Consume(ctx, sessionID)
	if err != nil {
		m.logger.Warn("Failed to read disconnect flag", zap.Error(err))
		return false
	}

	return !consumed
}

func (m *SessionManager) Quota(ctx context.Context) (*QuotaStatus, error) {
	count, err := m.stats.ConnectedCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota: %w", err)
	}

	return &QuotaStatus{
		Connected: count,
		Ceiling:   m.cfg.ConnectionCeiling,
		Available: max(m.cfg.ConnectionCeiling-count, 0),
	}, nil
}

// adjustQuota is best effort; RecalculateQuota repairs any drift.
func (m *SessionManager) adjustQuota(ctx context.Context, delta int) {
	if _, err := m.stats.AdjustConnectedCount(ctx, delta); err != nil {
		m.logger.Error("Failed to adjust Strava connection count",
			zap.Int("delta", delta),
			zap.Error(err),
		)
	}
}
