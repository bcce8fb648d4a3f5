package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/runcup-connect/internal/config"
	"github.com/prperemyshlev/runcup-connect/internal/handler"
	"github.com/prperemyshlev/runcup-connect/internal/provider/strava"
	"github.com/prperemyshlev/runcup-connect/internal/repository"
	"github.com/prperemyshlev/runcup-connect/internal/service"
	"github.com/prperemyshlev/runcup-connect/internal/utils"
	"github.com/prperemyshlev/runcup-connect/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 5 * time.Second
	serviceName     = "runcup-connect"
)

type App struct {
	infra   Infrastructure
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	sweeper *Sweeper
}

type handlers struct {
	auth   *handler.AuthHandler
	strava *handler.StravaHandler
	admin  *handler.AdminHandler
	health *HealthChecker
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres())

	metrics, err := observability.NewSessionMetrics(infra.MeterProvider().Meter(serviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}

	stravaClient := strava.NewClient(cfg.Strava, &http.Client{Timeout: cfg.Strava.RequestTimeout.Duration})

	manager := service.NewSessionManager(
		repos,
		stravaClient,
		service.NewDisconnectFlags(infra.Redis(), cfg.Strava.DisconnectFlagTTL.Duration),
		metrics,
		service.SessionManagerConfig{
			ConnectionCeiling:       cfg.Strava.ConnectionCeiling,
			DisconnectClearsRefresh: cfg.Strava.DisconnectClearsRefresh,
			SweepKeepsRefresh:       cfg.Strava.SweepKeepsRefresh,
			DeauthorizeTimeout:      cfg.Strava.RequestTimeout.Duration,
		},
		logger,
	)

	authService := service.NewAuthService(repos.User, manager, cfg.Security.BCryptCost, logger)

	codec := utils.NewSessionCodec(cfg.Session.Secret, cfg.Session.TTL.Duration)
	sessions := handler.NewSessionCookie(codec, cfg.Session.CookieName, cfg.Session.Secure, logger)

	h := handlers{
		auth: handler.NewAuthHandler(authService, sessions, logger),
		strava: handler.NewStravaHandler(
			manager,
			stravaClient,
			service.NewOAuthStateStore(infra.Redis(), cfg.Strava.StateTTL.Duration),
			service.NewActivitySelections(infra.Redis(), cfg.Session.TTL.Duration),
			sessions,
			logger,
		),
		admin:  handler.NewAdminHandler(manager, logger),
		health: NewHealthChecker(infra),
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS))

	setupRoutes(router, cfg, h, sessions, service.NewRateLimiter(infra.Redis()), infra.MetricsHandler(), logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:   infra,
		config:  cfg,
		router:  router,
		server:  srv,
		sweeper: NewSweeper(manager, cfg.Strava.SweepInterval.Duration, logger),
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	h handlers,
	sessions *handler.SessionCookie,
	rateLimiter *service.RateLimiter,
	metricsHandler http.Handler,
	logger *zap.Logger,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", h.health.Handler)

	limited := handler.RateLimitMiddleware(
		rateLimiter,
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow.Duration,
		handler.RouteIPKey,
		logger,
	)

	browser := router.Group("/", sessions.Middleware())

	auth := browser.Group("/api/v1/auth")
	{
		auth.POST("/register", limited, h.auth.Register)
		auth.POST("/login", limited, h.auth.Login)
		auth.POST("/logout", h.auth.Logout)
		auth.GET("/me", handler.RequireAccount(), h.auth.GetMe)
	}

	stravaRoutes := browser.Group("/strava")
	{
		stravaRoutes.GET("/connect", limited, h.strava.Connect)
		stravaRoutes.GET("/authorized", h.strava.Authorized)
		stravaRoutes.POST("/disconnect", h.strava.Disconnect)
		stravaRoutes.GET("/status", h.strava.Status)
		stravaRoutes.GET("/activities", h.strava.Activities)
		stravaRoutes.POST("/import/:id", h.strava.Import)
		stravaRoutes.GET("/selected", h.strava.Selected)
	}

	if cfg.Admin.AdminEnabled() {
		admin := router.Group("/admin/strava", gin.BasicAuth(gin.Accounts{
			cfg.Admin.Username: cfg.Admin.Password,
		}))
		{
			admin.GET("/quota", h.admin.Quota)
			admin.POST("/recalculate", h.admin.Recalculate)
			admin.POST("/sweep", h.admin.Sweep)
		}
	} else {
		logger.Info("Admin endpoints disabled, ADMIN_USERNAME is empty")
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		a.sweeper.Run(sweepCtx)
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	stopSweeper()
	<-sweeperDone

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// The server has to drain before the pools it uses are closed.
	err := a.server.Shutdown(ctx)
	err = errors.Join(err, a.infra.Shutdown(ctx))
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
