package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	Session  SessionConfig  `env:",prefix=SESSION_"`
	Strava   StravaConfig   `env:",prefix=STRAVA_"`
	Admin    AdminConfig    `env:",prefix=ADMIN_"`
	Security SecurityConfig `env:",prefix="`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host        string `env:"HOST,default=localhost"`
	Port        string `env:"PORT,default=5432"`
	User        string `env:"USER,default=runcup"`
	Password    string `env:"PASSWORD,default=runcup_password"`
	DBName      string `env:"DB,default=runcup_db"`
	SSLMode     string `env:"SSLMODE,default=disable"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=true"`

	MaxOpenConns    int      `env:"MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int      `env:"MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime Duration `env:"CONN_MAX_LIFETIME,default=30m"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`

	PoolSize    int      `env:"POOL_SIZE,default=10"`
	DialTimeout Duration `env:"DIAL_TIMEOUT,default=5s"`
}

// SessionConfig controls the signed browser session cookie.
type SessionConfig struct {
	Secret     string   `env:"SECRET,required"`
	TTL        Duration `env:"TTL,default=30m"`
	CookieName string   `env:"COOKIE_NAME,default=runcup_session"`
	Secure     bool     `env:"COOKIE_SECURE,default=false"`
}

// StravaConfig holds the OAuth client settings and the connection lifecycle policy.
type StravaConfig struct {
	ClientID       string   `env:"CLIENT_ID,required"`
	ClientSecret   string   `env:"CLIENT_SECRET,required"`
	RedirectURL    string   `env:"REDIRECT_URL,default=http://localhost:8080/strava/authorized"`
	Scopes         []string `env:"SCOPES,default=activity:read"`
	AuthURL        string   `env:"AUTH_URL,default=https://www.strava.com/oauth/authorize"`
	TokenURL       string   `env:"TOKEN_URL,default=https://www.strava.com/oauth/token"`
	DeauthorizeURL string   `env:"DEAUTHORIZE_URL,default=https://www.strava.com/oauth/deauthorize"`
	APIBaseURL     string   `env:"API_BASE_URL,default=https://www.strava.com/api/v3"`
	RequestTimeout Duration `env:"REQUEST_TIMEOUT,default=5s"`

	ConnectionCeiling       int      `env:"CONNECTION_CEILING,default=999"`
	DisconnectClearsRefresh bool     `env:"DISCONNECT_CLEARS_REFRESH,default=true"`
	SweepKeepsRefresh       bool     `env:"SWEEP_KEEPS_REFRESH,default=true"`
	SweepInterval           Duration `env:"SWEEP_INTERVAL,default=15m"`
	StateTTL                Duration `env:"STATE_TTL,default=10m"`
	DisconnectFlagTTL       Duration `env:"DISCONNECT_FLAG_TTL,default=5m"`
}

// AdminConfig guards the quota maintenance endpoints. An empty username disables them.
type AdminConfig struct {
	Username string `env:"USERNAME,default="`
	Password string `env:"PASSWORD,default="`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// AdminEnabled reports whether the admin endpoints should be mounted.
func (a AdminConfig) AdminEnabled() bool {
	return a.Username != "" && a.Password != ""
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values envconfig cannot express as tags.
func (c *Config) Validate() error {
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters long")
	}
	if c.Strava.ClientID == "" || c.Strava.ClientSecret == "" {
		return fmt.Errorf("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are required")
	}
	if c.Strava.ConnectionCeiling <= 0 {
		return fmt.Errorf("STRAVA_CONNECTION_CEILING must be positive, got %d", c.Strava.ConnectionCeiling)
	}
	if c.Strava.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("STRAVA_REQUEST_TIMEOUT must be positive")
	}
	if c.Admin.Username != "" && c.Admin.Password == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_USERNAME is set")
	}
	return nil
}
