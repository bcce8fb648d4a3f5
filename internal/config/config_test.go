package config

import (
	"context"
	"os"
	"testing"
	"time"
)

const testSecret = "test-secret-key-that-is-at-least-32-characters-long"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("STRAVA_CLIENT_ID", "12345")
	t.Setenv("STRAVA_CLIENT_SECRET", "strava-secret")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected Server.Port to be '8080', got '%s'", cfg.Server.Port)
	}

	if cfg.Server.ReadTimeout.Duration != 15*time.Second {
		t.Errorf("Expected Server.ReadTimeout to be 15s, got %v", cfg.Server.ReadTimeout.Duration)
	}

	if cfg.Postgres.Host != "localhost" {
		t.Errorf("Expected Postgres.Host to be 'localhost', got '%s'", cfg.Postgres.Host)
	}

	if !cfg.Postgres.AutoMigrate {
		t.Error("Expected Postgres.AutoMigrate to default to true")
	}

	if cfg.Session.TTL.Duration != 30*time.Minute {
		t.Errorf("Expected Session.TTL to be 30m, got %v", cfg.Session.TTL.Duration)
	}

	if cfg.Session.CookieName != "runcup_session" {
		t.Errorf("Expected Session.CookieName to be 'runcup_session', got '%s'", cfg.Session.CookieName)
	}

	if cfg.Strava.ConnectionCeiling != 999 {
		t.Errorf("Expected Strava.ConnectionCeiling to be 999, got %d", cfg.Strava.ConnectionCeiling)
	}

	if cfg.Strava.RequestTimeout.Duration != 5*time.Second {
		t.Errorf("Expected Strava.RequestTimeout to be 5s, got %v", cfg.Strava.RequestTimeout.Duration)
	}

	if !cfg.Strava.DisconnectClearsRefresh {
		t.Error("Expected Strava.DisconnectClearsRefresh to default to true")
	}

	if !cfg.Strava.SweepKeepsRefresh {
		t.Error("Expected Strava.SweepKeepsRefresh to default to true")
	}

	if len(cfg.Strava.Scopes) != 1 || cfg.Strava.Scopes[0] != "activity:read" {
		t.Errorf("Expected Strava.Scopes to be [activity:read], got %v", cfg.Strava.Scopes)
	}

	if cfg.Admin.AdminEnabled() {
		t.Error("Expected admin endpoints to be disabled by default")
	}

	if cfg.Env != "development" {
		t.Errorf("Expected Env to be 'development', got '%s'", cfg.Env)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STRAVA_CONNECTION_CEILING", "50")
	t.Setenv("STRAVA_DISCONNECT_CLEARS_REFRESH", "false")
	t.Setenv("STRAVA_SWEEP_INTERVAL", "1d")
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("ENV", "production")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected Server.Port to be '9090', got '%s'", cfg.Server.Port)
	}

	if cfg.Strava.ConnectionCeiling != 50 {
		t.Errorf("Expected Strava.ConnectionCeiling to be 50, got %d", cfg.Strava.ConnectionCeiling)
	}

	if cfg.Strava.DisconnectClearsRefresh {
		t.Error("Expected Strava.DisconnectClearsRefresh to be false")
	}

	if cfg.Strava.SweepInterval.Duration != 24*time.Hour {
		t.Errorf("Expected Strava.SweepInterval to be 24h, got %v", cfg.Strava.SweepInterval.Duration)
	}

	if !cfg.Admin.AdminEnabled() {
		t.Error("Expected admin endpoints to be enabled")
	}

	if cfg.Env != "production" {
		t.Errorf("Expected Env to be 'production', got '%s'", cfg.Env)
	}
}

func TestLoadWithoutStravaCredentials(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("STRAVA_CLIENT_ID", "")
	t.Setenv("STRAVA_CLIENT_SECRET", "")
	os.Unsetenv("STRAVA_CLIENT_ID")
	os.Unsetenv("STRAVA_CLIENT_SECRET")

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Expected error when Strava credentials are not set")
	}
}

func TestLoadWithShortSessionSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_SECRET", "short")

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Expected error when SESSION_SECRET is too short")
	}
}

func TestLoadWithNonPositiveCeiling(t *testing.T) {
	setRequired(t)
	t.Setenv("STRAVA_CONNECTION_CEILING", "0")

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Expected error when STRAVA_CONNECTION_CEILING is zero")
	}
}

func TestLoadWithAdminUserWithoutPassword(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "")

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Expected error when ADMIN_PASSWORD is missing")
	}
}

func TestPostgresDSN(t *testing.T) {
	pg := PostgresConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "test_user",
		Password: "test_password",
		DBName:   "test_db",
		SSLMode:  "disable",
	}

	dsn := pg.DSN()
	expected := "host=localhost port=5432 user=test_user password=test_password dbname=test_db sslmode=disable"
	if dsn != expected {
		t.Errorf("Expected DSN to be '%s', got '%s'", expected, dsn)
	}
}

func TestDurationDecode(t *testing.T) {
	var d Duration
	if err := d.EnvDecode(context.Background(), "7d"); err != nil {
		t.Fatalf("Failed to decode days: %v", err)
	}
	if d.Duration != 7*24*time.Hour {
		t.Errorf("Expected 168h, got %v", d.Duration)
	}

	if err := d.EnvDecode(context.Background(), "nonsense"); err == nil {
		t.Error("Expected error for invalid duration")
	}
}

func TestParseDurationUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "90s", want: 90 * time.Second},
		{in: "2w", want: 14 * 24 * time.Hour},
		{in: "0d", want: 0},
		{in: "d", wantErr: true},
		{in: "-1d", wantErr: true},
		{in: "-5m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
