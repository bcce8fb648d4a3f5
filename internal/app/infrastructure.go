package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/runcup-connect/internal/config"
	"github.com/prperemyshlev/runcup-connect/pkg/database"
	"github.com/prperemyshlev/runcup-connect/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// Infrastructure is everything the app borrows from the outside world.
type Infrastructure interface {
	Postgres() *database.Postgres
	Redis() *database.Redis
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres       *database.Postgres
	redis          *database.Redis
	logger         *zap.Logger
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

var _ Infrastructure = &infrastructure{}

// NewInfrastructure connects PostgreSQL and Redis, applies migrations when
// enabled and sets up metrics. On failure it closes whatever it opened.
func NewInfrastructure(ctx context.Context, cfg config.Config) (_ *infrastructure, err error) {
	i := &infrastructure{}

	i.logger, err = observability.InitLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		if err != nil {
			i.closeStores()
		}
	}()

	i.postgres, err = database.NewPostgres(ctx, cfg.Postgres.DSN(), database.PoolOptions{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err = i.postgres.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
		}
		i.logger.Info("Database schema is up to date")
	}

	i.redis, err = database.NewRedis(ctx, database.RedisOptions{
		Addr:        cfg.Redis.Address(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	i.meterProvider, i.metricsHandler, err = observability.InitTelemetry(serviceName, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return i, nil
}

func (i *infrastructure) closeStores() {
	if i.postgres != nil {
		_ = i.postgres.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

func (i *infrastructure) Postgres() *database.Postgres {
	return i.postgres
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

// Shutdown flushes metrics before the logger is synced, then closes the stores.
func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 2)

	go func() { errs <- i.postgres.Close() }()
	go func() { errs <- i.redis.Close() }()

	telemetryErr := observability.Shutdown(ctx, i.meterProvider, i.logger)

	return errors.Join(telemetryErr, <-errs, <-errs)
}
