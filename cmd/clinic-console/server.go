package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/console/internal/config"
	"github.com/clinicdesk/console/internal/domain/analytics"
	"github.com/clinicdesk/console/internal/domain/appointment"
	"github.com/clinicdesk/console/internal/domain/billing"
	"github.com/clinicdesk/console/internal/domain/identity"
	"github.com/clinicdesk/console/internal/domain/patient"
	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/db"
	"github.com/clinicdesk/console/internal/platform/middleware"
	"github.com/clinicdesk/console/internal/platform/notify"
	"github.com/clinicdesk/console/internal/platform/session"
	"github.com/clinicdesk/console/internal/platform/telemetry"
	"github.com/clinicdesk/console/internal/platform/validation"
)

// server holds the wired console. Services are built once here and passed
// down explicitly.
type server struct {
	echo     *echo.Echo
	sessions *session.Manager
	hub      *notify.Hub
	states   billing.StateStore
	pool     *pgxpool.Pool
	logger   zerolog.Logger
}

func (s *server) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// purgeLoop removes expired sessions until ctx is done.
func (s *server) purgeLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.sessions.PurgeExpired(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("session purge failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int64("purged", n).Msg("expired sessions purged")
			}
		}
	}
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (session.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not set, keeping sessions in memory")
		return session.NewMemoryStore(), nil, nil
	}

	key, err := cfg.TokenKey()
	if err != nil {
		return nil, nil, err
	}
	var cipher *session.TokenCipher
	if key != nil {
		if cipher, err = session.NewTokenCipher(key); err != nil {
			return nil, nil, err
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect session database: %w", err)
	}
	logger.Info().Bool("tokens_encrypted", cipher != nil).Msg("connected to session database")
	return session.NewStoreRepoPG(pool, cipher), pool, nil
}

func backendCheck(client *apiclient.Client) db.Check {
	return db.Check{
		Name: "backend",
		Ping: func(ctx context.Context) error {
			return client.DoAnonymous(ctx, apiclient.Request{Method: http.MethodGet, Path: "/health"}, nil)
		},
	}
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewProvider()

	store, pool, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv := &server{pool: pool, logger: logger}

	sessions := session.NewManager(store, session.Config{
		Key:    cfg.SessionKey(),
		TTL:    cfg.SessionTTL,
		Secure: cfg.SessionCookieSecure,
	}, logger)
	srv.sessions = sessions

	// The client and the token source need each other; the source is
	// attached once the identity repository exists.
	client := apiclient.New(cfg.BackendURL, nil,
		apiclient.WithTimeout(cfg.BackendTimeout),
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(metrics),
	)
	identityRepo := identity.NewRepoHTTP(client)
	client.SetTokenSource(session.NewTokenSource(sessions, identityRepo.Refresh, logger))

	hub := notify.NewHub(session.IDFromContext, notify.DefaultCapacity)
	states := billing.NewMemoryStateStore()
	srv.hub, srv.states = hub, states
	validate := validation.New()

	billingSvc := billing.NewService(
		billing.NewRepoHTTP(client),
		billing.NewResolver(cfg.EntitlementFailClosed),
		states,
		hub,
		billing.CheckoutConfig{Environment: cfg.PaddleEnvironment, ClientToken: cfg.PaddleClientToken},
		billing.WithLogger(logger),
		billing.WithMetrics(metrics),
	)
	sessions.OnEnd(hub.Forget)
	sessions.OnEnd(billingSvc.Forget)
	// A forced logout keeps the notice queue so the browser can still read
	// why it was signed out.
	sessions.OnSignOut(billingSvc.Forget)

	identitySvc := identity.NewService(identityRepo, validate, hub, cfg.GoogleClientID, logger)
	patientSvc := patient.NewService(patient.NewRepoHTTP(client), validate, hub, logger)
	appointmentSvc := appointment.NewService(appointment.NewRepoHTTP(client), validate, hub, loc, logger)
	analyticsSvc := analytics.NewService(analytics.NewRepoHTTP(client))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTS: cfg.TLSEnabled || cfg.SessionCookieSecure}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(metrics.MetricsMiddleware())
	e.Use(sessions.Middleware())
	e.Use(middleware.RateLimit(rl))
	e.Use(middleware.Audit(logger, nil))

	// Operational endpoints
	checks := []db.Check{backendCheck(client)}
	if pool != nil {
		checks = append(checks, db.PoolCheck(pool))
		e.GET("/health/db", db.PoolStatsHandler(pool))
	}
	e.GET("/health", db.HealthHandler(checks...))
	e.GET("/metrics", metrics.Handler())

	// API groups
	api := e.Group("/api/v1")
	identity.NewHandler(identitySvc, sessions, hub).RegisterRoutes(api)
	notify.NewHandler(hub, session.IDFromContext).RegisterRoutes(api)

	protected := api.Group("", sessions.RequireAuth())
	billing.NewHandler(billingSvc).RegisterRoutes(protected)
	patient.NewHandler(patientSvc).RegisterRoutes(protected,
		billingSvc.RequireFeature(billing.FeaturePatientManagement))
	appointment.NewHandler(appointmentSvc).RegisterRoutes(protected,
		billingSvc.RequireFeature(billing.FeatureAppointmentScheduling))
	analytics.NewHandler(analyticsSvc).RegisterRoutes(protected,
		billingSvc.RequireFeature(billing.FeatureAnalyticsDashboard),
		billingSvc.RequireFeature(billing.FeatureRevenueReports))

	srv.echo = e
	return srv, nil
}
