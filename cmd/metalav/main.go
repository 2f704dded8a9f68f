package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/config"
	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/handler"
	"github.com/metalav/auditorias-bfa-go/internal/infra/cache"
	"github.com/metalav/auditorias-bfa-go/internal/infra/export"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/infra/ratelimit"
	"github.com/metalav/auditorias-bfa-go/internal/infra/resilience"
	"github.com/metalav/auditorias-bfa-go/internal/infra/supabase"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("log_level", cfg.LogLevel),
		zap.String("supabase_url", cfg.SupabaseURL),
		zap.Bool("local_jwt_verification", cfg.SupabaseJWTSecret != ""),
		zap.String("gotenberg_url", cfg.GotenbergURL),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.String("timezone", cfg.Timezone),
		zap.String("cron_schedule", cfg.CronSchedule),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "metalav-auditorias")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase", logger)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		cb,
		resilienceCfg,
		metrics,
		logger,
	)
	storage := supabase.NewStorage(supabaseClient, cfg.StorageBucket)

	// PDF rendering can take longer than a regular backend call.
	gotenberg := export.NewGotenberg(cfg.GotenbergURL, &http.Client{Timeout: 4 * cfg.HTTPTimeout})
	fetcher := export.NewHTTPFetcher(httpClient)
	pdf, err := export.NewPDF(gotenberg, fetcher, resilience.NewBulkhead(cfg.MaxConcurrency), logger)
	if err != nil {
		logger.Fatal("failed to load report templates", zap.Error(err))
	}
	exporter := export.NewExporter(pdf)

	// --- Cache ---
	sessionCache := cache.New[*domain.Session](cfg.SessionCacheTTL)
	defer sessionCache.Close()
	condCache := cache.New[*domain.Condominio](cfg.CatalogCacheTTL)
	defer condCache.Close()
	maquinaCache := cache.New[[]domain.Maquina](cfg.CatalogCacheTTL)
	defer maquinaCache.Close()

	// --- Rate limiting ---
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = ratelimit.Connect(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, diagnostic rate limit is process-local", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	diagLimiter := ratelimit.New(redisClient, "metalav:diag", cfg.DiagRateLimit, cfg.DiagRateWindow, logger)

	// --- Services ---
	sessionSvc := service.NewSessionService(supabaseClient, supabaseClient, sessionCache, cfg.SupabaseJWTSecret, metrics, logger)
	condSvc := service.NewCondominioService(supabaseClient, condCache, maquinaCache, metrics, logger)
	auditSvc := service.NewAuditoriaService(supabaseClient, condSvc, supabaseClient, metrics, logger)
	fotoSvc := service.NewFotoService(auditSvc, storage, logger)
	relSvc := service.NewRelatorioService(supabaseClient, condSvc, exporter, metrics, logger)
	userSvc := service.NewUsuarioService(supabaseClient, supabaseClient, sessionSvc, logger)
	jobSvc := service.NewJobService(supabaseClient, supabaseClient, supabaseClient, cfg.Location(), metrics, logger)
	diagSvc := service.NewDiagnosticoService([]service.NamedChecker{
		{Name: "supabase", Checker: supabaseClient},
		{Name: "gotenberg", Checker: gotenberg, Optional: true},
	}, diagLimiter, metrics, version, logger)

	// --- Scheduler ---
	if cfg.CronSchedule != "" {
		c := cron.New(cron.WithLocation(cfg.Location()))
		_, err := c.AddFunc(cfg.CronSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := jobSvc.GerarAuditorias(ctx, ""); err != nil {
				logger.Error("scheduled audit generation failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("invalid CRON_SCHEDULE", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
		}
		c.Start()
		defer c.Stop()
		logger.Info("scheduled monthly audit generation", zap.String("schedule", cfg.CronSchedule))
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Sessions:     sessionSvc,
		Condominios:  condSvc,
		Auditorias:   auditSvc,
		Fotos:        fotoSvc,
		Relatorios:   relSvc,
		Usuarios:     userSvc,
		Jobs:         jobSvc,
		Diagnosticos: diagSvc,
	}, handler.RouterConfig{
		CORSOrigins:       cfg.CORSOrigins,
		SessionCookieName: cfg.SessionCookieName,
		CronSecret:        cfg.CronSecret,
		ExportRateLimit:   cfg.ExportRateLimit,
		Production:        cfg.IsProduction(),
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
