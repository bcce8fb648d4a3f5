package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/provider/strava"
	"github.com/prperemyshlev/runcup-connect/internal/service"
	"github.com/prperemyshlev/runcup-connect/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCookie = "runcup_session"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeManager struct {
	tokens     map[domain.Principal]string
	admitErr   error
	admitCalls int
	connectErr error
	connects   []service.ConnectRequest
	disconnect []domain.Principal
	cleared    bool
	allow      bool
	allowed    []bool
	quota      service.QuotaStatus
	sweep      service.SweepResult
	recalcs    int
}

func newFakeManager() *fakeManager {
	return &fakeManager{tokens: map[domain.Principal]string{}, allow: true, cleared: true}
}

func (m *fakeManager) GetActiveToken(_ context.Context, p domain.Principal, allowRefresh bool) (string, error) {
	m.allowed = append(m.allowed, allowRefresh)
	return m.tokens[p], nil
}

func (m *fakeManager) Refresh(_ context.Context, p domain.Principal) (string, error) {
	return m.tokens[p], nil
}

func (m *fakeManager) Connect(_ context.Context, req service.ConnectRequest) (*service.ConnectResult, error) {
	m.connects = append(m.connects, req)
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	m.tokens[req.Principal] = "connected"
	return &service.ConnectResult{}, nil
}

func (m *fakeManager) Disconnect(_ context.Context, p domain.Principal, _ string) (bool, error) {
	m.disconnect = append(m.disconnect, p)
	delete(m.tokens, p)
	return m.cleared, nil
}

func (m *fakeManager) MigrateGuestToAccount(context.Context, string, string) (service.MigrationResult, error) {
	return service.MigrationResult{}, nil
}

func (m *fakeManager) RecalculateQuota(context.Context) (int, error) {
	m.recalcs++
	return m.quota.Connected, nil
}

func (m *fakeManager) SweepExpired(context.Context) (*service.SweepResult, error) {
	result := m.sweep
	return &result, nil
}

func (m *fakeManager) Admit(context.Context) (int, error) {
	m.admitCalls++
	return m.quota.Connected, m.admitErr
}

func (m *fakeManager) AllowImplicitRefresh(context.Context, string) bool {
	return m.allow
}

func (m *fakeManager) Quota(context.Context) (*service.QuotaStatus, error) {
	status := m.quota
	return &status, nil
}

type fakeAPI struct {
	activities []strava.Activity
	listErr    error
	activity   map[int64]strava.Activity
	tokens     []string
}

func (a *fakeAPI) AuthCodeURL(state string) string {
	return "https://strava.test/oauth/authorize?state=" + state
}

func (a *fakeAPI) ListActivities(_ context.Context, token string, _, _ int) ([]strava.Activity, error) {
	a.tokens = append(a.tokens, token)
	return a.activities, a.listErr
}

func (a *fakeAPI) GetActivity(_ context.Context, token string, id int64) (*strava.Activity, error) {
	a.tokens = append(a.tokens, token)
	activity, ok := a.activity[id]
	if !ok {
		return nil, strava.ErrActivityNotFound
	}
	return &activity, nil
}

type fakeStates struct {
	issued map[string]service.OAuthState
	seq    int
}

func newFakeStates() *fakeStates {
	return &fakeStates{issued: map[string]service.OAuthState{}}
}

func (s *fakeStates) Issue(_ context.Context, payload service.OAuthState) (string, error) {
	s.seq++
	state := fmt.Sprintf("state-%d", s.seq)
	s.issued[state] = payload
	return state, nil
}

func (s *fakeStates) Consume(_ context.Context, state string) (*service.OAuthState, error) {
	payload, ok := s.issued[state]
	if !ok {
		return nil, service.ErrInvalidOAuthState
	}
	delete(s.issued, state)
	return &payload, nil
}

type fakeSelections struct {
	bySession map[string]strava.ActivitySummary
}

func newFakeSelections() *fakeSelections {
	return &fakeSelections{bySession: map[string]strava.ActivitySummary{}}
}

func (s *fakeSelections) Save(_ context.Context, sessionID string, summary strava.ActivitySummary) error {
	s.bySession[sessionID] = summary
	return nil
}

func (s *fakeSelections) Get(_ context.Context, sessionID string) (*strava.ActivitySummary, error) {
	summary, ok := s.bySession[sessionID]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

func (s *fakeSelections) Delete(_ context.Context, sessionID string) error {
	delete(s.bySession, sessionID)
	return nil
}

type fakeAuth struct {
	result  *service.AuthResult
	err     error
	guestID string
}

func (a *fakeAuth) Register(_ context.Context, _ *dto.RegisterRequest, guestID string) (*service.AuthResult, error) {
	a.guestID = guestID
	return a.result, a.err
}

func (a *fakeAuth) Login(_ context.Context, _ *dto.LoginRequest, guestID string) (*service.AuthResult, error) {
	a.guestID = guestID
	return a.result, a.err
}

func (a *fakeAuth) GetUser(_ context.Context, userID string) (*dto.UserResponse, error) {
	return &dto.UserResponse{ID: userID}, nil
}

type fakeLimiter struct {
	result *service.RateLimitResult
	err    error
	keys   []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (*service.RateLimitResult, error) {
	l.keys = append(l.keys, key)
	return l.result, l.err
}

// testServer wires handlers the way the app does, minus infrastructure.
type testServer struct {
	t          *testing.T
	codec      *utils.SessionCodec
	manager    *fakeManager
	api        *fakeAPI
	states     *fakeStates
	selections *fakeSelections
	auth       *fakeAuth
	router     *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		t:          t,
		codec:      utils.NewSessionCodec(strings.Repeat("k", 32), time.Hour),
		manager:    newFakeManager(),
		api:        &fakeAPI{activity: map[int64]strava.Activity{}},
		states:     newFakeStates(),
		selections: newFakeSelections(),
		auth:       &fakeAuth{},
	}

	logger := zap.NewNop()
	sessions := NewSessionCookie(s.codec, testCookie, false, logger)
	authHandler := NewAuthHandler(s.auth, sessions, logger)
	stravaHandler := NewStravaHandler(s.manager, s.api, s.states, s.selections, sessions, logger)
	adminHandler := NewAdminHandler(s.manager, logger)

	router := gin.New()
	router.Use(sessions.Middleware())

	auth := router.Group("/api/v1/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", RequireAccount(), authHandler.GetMe)

	stravaRoutes := router.Group("/strava")
	stravaRoutes.GET("/connect", stravaHandler.Connect)
	stravaRoutes.GET("/authorized", stravaHandler.Authorized)
	stravaRoutes.POST("/disconnect", stravaHandler.Disconnect)
	stravaRoutes.GET("/status", stravaHandler.Status)
	stravaRoutes.GET("/activities", stravaHandler.Activities)
	stravaRoutes.POST("/import/:id", stravaHandler.Import)
	stravaRoutes.GET("/selected", stravaHandler.Selected)

	admin := router.Group("/admin/strava")
	admin.GET("/quota", adminHandler.Quota)
	admin.POST("/recalculate", adminHandler.Recalculate)
	admin.POST("/sweep", adminHandler.Sweep)

	s.router = router
	return s
}

// cookieFor signs claims into a session cookie.
func (s *testServer) cookieFor(claims domain.SessionClaims) *http.Cookie {
	s.t.Helper()
	token, err := s.codec.Encode(claims)
	require.NoError(s.t, err)
	return &http.Cookie{Name: testCookie, Value: token}
}

func (s *testServer) do(method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// session decodes the last session cookie written by the response.
func (s *testServer) session(rec *httptest.ResponseRecorder) *domain.SessionClaims {
	s.t.Helper()

	var last *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookie {
			last = c
		}
	}
	require.NotNil(s.t, last, "response did not set a session cookie")

	claims, err := s.codec.Decode(last.Value)
	require.NoError(s.t, err)
	return claims
}
