package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/config"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"golang.org/x/oauth2"
)

var (
	// ErrUnauthorized is returned by API calls rejected with 401.
	ErrUnauthorized = errors.New("strava rejected the access token")

	// ErrActivityNotFound is returned when an activity does not exist or is not visible.
	ErrActivityNotFound = errors.New("strava activity not found")
)

// Client talks to the Strava OAuth endpoints and the v3 API.
type Client struct {
	oauth          *oauth2.Config
	httpClient     *http.Client
	scopes         []string
	apiBaseURL     string
	deauthorizeURL string
	timeout        time.Duration
}

// NewClient creates a Strava client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg config.StravaConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:     httpClient,
		scopes:         cfg.Scopes,
		apiBaseURL:     strings.TrimSuffix(cfg.APIBaseURL, "/"),
		deauthorizeURL: cfg.DeauthorizeURL,
		timeout:        cfg.RequestTimeout.Duration,
	}
}

// AuthCodeURL builds the authorization redirect. Strava expects a
// comma-separated scope list.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("approval_prompt", "auto"),
		oauth2.SetAuthURLParam("scope", strings.Join(c.scopes, ",")),
	)
}

// Exchange trades an authorization code for a token record.
func (c *Client) Exchange(ctx context.Context, code string) (*domain.TokenRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", classify(err))
	}

	return toRecord(tok), nil
}

// Refresh obtains a new access token. Permanent rejections wrap
// domain.ErrInvalidGrant; every other failure is transient.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.TokenRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", classify(err))
	}

	record := toRecord(tok)
	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}
	return record, nil
}

// Deauthorize revokes the application's access for the athlete.
func (c *Client) Deauthorize(ctx context.Context, accessToken string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	form := url.Values{"access_token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.deauthorizeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute deauthorize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	return nil
}

// ListActivities returns one page of the athlete's activities, newest first.
func (c *Client) ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]Activity, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}

	var activities []Activity
	if err := c.getJSON(ctx, accessToken, "/athlete/activities?"+params.Encode(), &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// GetActivity fetches a single activity with its summary polyline.
func (c *Client) GetActivity(ctx context.Context, accessToken string, id int64) (*Activity, error) {
	var activity Activity
	if err := c.getJSON(ctx, accessToken, fmt.Sprintf("/activities/%d", id), &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrActivityNotFound
	default:
		return apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("strava returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// toRecord prefers Strava's absolute expires_at over the computed expiry.
func toRecord(tok *oauth2.Token) *domain.TokenRecord {
	record := &domain.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}

	switch v := tok.Extra("expires_at").(type) {
	case float64:
		record.ExpiresAt = time.Unix(int64(v), 0)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			record.ExpiresAt = time.Unix(n, 0)
		}
	}

	return record
}

var permanentMarkers = []string{
	"invalid_grant",
	"revoked",
}

// clientMarkers identify rejections of our own client_id or client_secret.
// Strava reports them against the "Application" resource.
var clientMarkers = []string{
	"invalid_client",
	"unauthorized_client",
	`"resource":"application"`,
	`"field":"client_id"`,
	`"field":"client_secret"`,
}

// classify marks permanent rejections with domain.ErrInvalidGrant and
// rejected client credentials with domain.ErrClientRejected. 429 and 5xx
// responses, timeouts and network failures stay transient.
func classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		detail := strings.ToLower(retrieveErr.ErrorCode + " " + string(retrieveErr.Body))
		if containsAny(detail, clientMarkers) {
			return fmt.Errorf("%w: %v", domain.ErrClientRejected, err)
		}

		code := retrieveErr.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", domain.ErrInvalidGrant, err)
		}
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, clientMarkers):
		return fmt.Errorf("%w: %v", domain.ErrClientRejected, err)
	case containsAny(msg, permanentMarkers):
		return fmt.Errorf("%w: %v", domain.ErrInvalidGrant, err)
	}
	return err
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
