package strava

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/config"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrava struct {
	tokenStatus int
	tokenBody   map[string]any
	deauthHits  atomic.Int32
	lastForm    url.Values
}

func newFakeStrava(t *testing.T) (*fakeStrava, *httptest.Server) {
	t.Helper()
	f := &fakeStrava{tokenStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		f.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_ = json.NewEncoder(w).Encode(f.tokenBody)
	})
	mux.HandleFunc("/oauth/deauthorize", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "live-token", r.PostForm.Get("access_token"))
		f.deauthHits.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer live-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "30", r.URL.Query().Get("per_page"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Morning Run", "type": "Run", "distance": 10000.0, "moving_time": 3000},
			{"id": 2, "name": "Commute", "type": "Ride", "distance": 12000.0, "moving_time": 1800},
		})
	})
	mux.HandleFunc("/api/v3/activities/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/activities/42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 42, "name": "Long Run", "type": "Run", "distance": 21097.5, "moving_time": 6300,
			"map": map[string]any{"summary_polyline": "abc~def"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(config.StravaConfig{
		ClientID:       "12345",
		ClientSecret:   "secret",
		RedirectURL:    "http://localhost/strava/authorized",
		Scopes:         []string{"read", "activity:read"},
		AuthURL:        srv.URL + "/oauth/authorize",
		TokenURL:       srv.URL + "/oauth/token",
		DeauthorizeURL: srv.URL + "/oauth/deauthorize",
		APIBaseURL:     srv.URL + "/api/v3",
		RequestTimeout: config.Duration{Duration: 2 * time.Second},
	}, srv.Client())
}

func TestAuthCodeURL(t *testing.T) {
	_, srv := newFakeStrava(t)
	client := newTestClient(srv)

	u, err := url.Parse(client.AuthCodeURL("state-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "12345", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "auto", q.Get("approval_prompt"))
	assert.Equal(t, "read,activity:read", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
}

func TestExchangeUsesExpiresAt(t *testing.T) {
	f, srv := newFakeStrava(t)
	expiresAt := time.Now().Add(6 * time.Hour).Unix()
	f.tokenBody = map[string]any{
		"token_type":    "Bearer",
		"access_token":  "a1",
		"refresh_token": "r1",
		"expires_at":    expiresAt,
		"expires_in":    10,
	}

	record, err := newTestClient(srv).Exchange(context.Background(), "code-1")
	require.NoError(t, err)

	assert.Equal(t, "a1", record.AccessToken)
	assert.Equal(t, "r1", record.RefreshToken)
	assert.Equal(t, expiresAt, record.ExpiresAt.Unix())
	assert.Equal(t, "code-1", f.lastForm.Get("code"))
	assert.Equal(t, "authorization_code", f.lastForm.Get("grant_type"))
	assert.Equal(t, "secret", f.lastForm.Get("client_secret"))
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f, srv := newFakeStrava(t)
	f.tokenBody = map[string]any{
		"token_type":   "Bearer",
		"access_token": "a2",
		"expires_in":   3600,
	}

	record, err := newTestClient(srv).Refresh(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, "a2", record.AccessToken)
	assert.Equal(t, "r1", record.RefreshToken)
	assert.True(t, record.ExpiresAt.After(time.Now()))
	assert.Equal(t, "refresh_token", f.lastForm.Get("grant_type"))
	assert.Equal(t, "r1", f.lastForm.Get("refresh_token"))
}

func TestRefreshErrorClassification(t *testing.T) {
	badRefreshToken := map[string]any{
		"message": "Bad Request",
		"errors":  []map[string]string{{"resource": "RefreshToken", "field": "refresh_token", "code": "invalid"}},
	}
	badClient := map[string]any{
		"message": "Bad Request",
		"errors":  []map[string]string{{"resource": "Application", "field": "client_secret", "code": "invalid"}},
	}

	tests := []struct {
		name           string
		status         int
		body           map[string]any
		permanent      bool
		clientRejected bool
	}{
		{"bad request is permanent", http.StatusBadRequest, badRefreshToken, true, false},
		{"unauthorized is permanent", http.StatusUnauthorized, badRefreshToken, true, false},
		{"rejected client secret is transient", http.StatusUnauthorized, badClient, false, true},
		{"oauth invalid_client is transient", http.StatusBadRequest, map[string]any{"error": "invalid_client"}, false, true},
		{"rate limited is transient", http.StatusTooManyRequests, badRefreshToken, false, false},
		{"server error is transient", http.StatusInternalServerError, badRefreshToken, false, false},
		{"bad gateway is transient", http.StatusBadGateway, badRefreshToken, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakeStrava(t)
			f.tokenStatus = tt.status
			f.tokenBody = tt.body

			_, err := newTestClient(srv).Refresh(context.Background(), "r1")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, domain.ErrInvalidGrant))
			assert.Equal(t, tt.clientRejected, errors.Is(err, domain.ErrClientRejected))
		})
	}
}

func TestRefreshNetworkFailureIsTransient(t *testing.T) {
	_, srv := newFakeStrava(t)
	client := newTestClient(srv)
	srv.Close()

	_, err := client.Refresh(context.Background(), "r1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrInvalidGrant))
}

func TestDeauthorize(t *testing.T) {
	f, srv := newFakeStrava(t)

	require.NoError(t, newTestClient(srv).Deauthorize(context.Background(), "live-token"))
	assert.Equal(t, int32(1), f.deauthHits.Load())
}

func TestListActivities(t *testing.T) {
	_, srv := newFakeStrava(t)
	client := newTestClient(srv)

	activities, err := client.ListActivities(context.Background(), "live-token", 2, 30)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	runs := RunsOnly(activities)
	require.Len(t, runs, 1)
	assert.Equal(t, "Morning Run", runs[0].Name)

	_, err = client.ListActivities(context.Background(), "stale", 2, 30)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetActivity(t *testing.T) {
	_, srv := newFakeStrava(t)
	client := newTestClient(srv)

	activity, err := client.GetActivity(context.Background(), "live-token", 42)
	require.NoError(t, err)
	assert.Equal(t, "abc~def", activity.Map.SummaryPolyline)

	_, err = client.GetActivity(context.Background(), "live-token", 7)
	assert.ErrorIs(t, err, ErrActivityNotFound)
}
