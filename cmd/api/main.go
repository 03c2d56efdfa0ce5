package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/khatapp/backend-khata/internal/audit"
	"github.com/khatapp/backend-khata/internal/auth"
	"github.com/khatapp/backend-khata/internal/cache"
	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/company"
	"github.com/khatapp/backend-khata/internal/config"
	"github.com/khatapp/backend-khata/internal/customer"
	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/events"
	"github.com/khatapp/backend-khata/internal/health"
	"github.com/khatapp/backend-khata/internal/invoice"
	"github.com/khatapp/backend-khata/internal/notify"
	"github.com/khatapp/backend-khata/internal/obs"
	"github.com/khatapp/backend-khata/internal/ratelimit"
	"github.com/khatapp/backend-khata/internal/security"
	"github.com/khatapp/backend-khata/internal/tenant"
	"github.com/khatapp/backend-khata/internal/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "khata")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "khata-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: 1.0,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.MigrateOnStart {
		if err := db.RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "khata-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	store := db.NewStore(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	validate := validator.New()

	authService, err := auth.NewService(auth.Config{
		Store:           store,
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Issuer:          cfg.JWTIssuer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	refreshCookieName := envOrDefault("REFRESH_COOKIE_NAME", "khata_refresh")
	authHandler := &auth.Handler{
		Service:           authService,
		RefreshCookieName: refreshCookieName,
		CookieDomain:      envOrDefault("REFRESH_COOKIE_DOMAIN", ""),
		CookieSecure:      envBool("REFRESH_COOKIE_SECURE", cfg.AppEnv == "production"),
		CookieSameSite:    http.SameSiteLaxMode,
	}
	authMiddleware := auth.Middleware{Service: authService}

	endpointCache := &cache.Cache{R: redisClient, TTL: 30 * time.Second}
	dispatcher := &notify.Dispatcher{
		Store:       store,
		HTTP:        notify.ResilientHTTP(cfg.WebhookRequestTimeout),
		Enqueuer:    notify.AsynqEnqueuer{Client: asynqClient, MaxAttempts: cfg.WebhookMaxAttempts, Timeout: cfg.WebhookRequestTimeout},
		Cache:       endpointCache,
		MaxAttempts: cfg.WebhookMaxAttempts,
		Enabled:     cfg.WebhookDeliveryEnabled,
		Replay:      notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:   cfg.IdempotencyTTL,
	}
	bus := &events.Bus{Store: store, Scheduler: dispatcher}

	auditService := &audit.Service{Store: store, Enabled: envBool("AUDIT_ENABLED", true)}
	auditRecorder := audit.HTTPRecorder{
		Service: auditService,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}

	companyHandler := &company.Handler{Store: store, Validate: validate}
	customerHandler := &customer.Handler{Store: store, Validate: validate}
	warehouseHandler := &warehouse.Handler{Store: store, Validate: validate}
	invoiceHandler := &invoice.Handler{Service: &invoice.Service{
		Store:        store,
		Bus:          bus,
		NumberPrefix: envOrDefault("INVOICE_NUMBER_PREFIX", "INV-"),
	}}
	webhookHandler := &notify.Handler{Store: store, Cache: endpointCache, Validate: validate}
	auditHandler := audit.Handler{Store: store}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: cfg.RateLimitWindow,
			Max:    int(cfg.RateLimitMax),
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	}
	credLimiter, err := ratelimit.NewCredentialLimiter(redisClient, int64(envInt("AUTH_RATE_LIMIT_MAX", 10)), time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise credential limiter")
	}
	resolver := tenant.NewResolver(
		envOrDefault("TENANT_HEADER", "X-Company-ID"),
		envOrDefault("TENANT_ROOT_DOMAIN", ""),
		envOrDefault("TENANT_DEFAULT_COMPANY", ""),
	)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeadersEnabled, EnableHSTS: cfg.EnableHSTS}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Company-ID", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(limiter.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/companies", companyHandler.Create)

		v.Route("/auth", func(a chi.Router) {
			a.Use(resolver.Middleware)
			a.With(tenant.Require, credLimiter).Post("/register", authHandler.Register)
			a.With(tenant.Require, credLimiter).Post("/login", authHandler.Login)
			// Double-submit CSRF guards the cookie-backed session routes;
			// bearer and body-token clients are exempt inside the middleware.
			csrf := security.CSRF{RequireForCookie: refreshCookieName}
			a.With(csrf.Middleware).Post("/refresh", authHandler.Refresh)
			a.With(csrf.Middleware).Post("/logout", authHandler.Logout)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
				protected.Post("/password/change", authHandler.ChangePassword)
			})
		})

		// Company scope comes from the access token; the resolver header is
		// only consulted pre-auth.
		v.Group(func(g chi.Router) {
			g.Use(authMiddleware.RequireAuth)
			g.Use(auditRecorder.Middleware)

			g.Get("/company", companyHandler.Get)
			g.Put("/company", companyHandler.Update)

			g.Group(func(ig chi.Router) {
				ig.Use(idem.Middleware)
				invoiceHandler.Routes(ig)
			})
			customerHandler.Routes(g)
			warehouseHandler.Routes(g)
			webhookHandler.Routes(g)
			g.Get("/audit-logs", auditHandler.List)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Fail readiness first so load balancers drain traffic during the grace
	// period.
	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}
