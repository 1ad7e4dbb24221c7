package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bbuddy/scan-relay-go/internal/config"
	"github.com/bbuddy/scan-relay-go/internal/database"
	"github.com/bbuddy/scan-relay-go/internal/handler"
	"github.com/bbuddy/scan-relay-go/internal/jobs"
	"github.com/bbuddy/scan-relay-go/internal/middleware"
	"github.com/bbuddy/scan-relay-go/internal/redis"
	"github.com/bbuddy/scan-relay-go/internal/repository"
	"github.com/bbuddy/scan-relay-go/internal/service"
	"github.com/bbuddy/scan-relay-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	scanRepo := repository.NewScanEventRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	buddyService := service.NewBuddyService(cfg)
	scanService := service.NewScanService(buddyService, scanRepo, broker)
	modeService := service.NewModeService(buddyService, service.NewRedisModeCache(redisClient.Client), cfg.ModeCacheTTL())
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	scanRateLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, cfg.ScanRateLimitPerMin, config.ScanRateLimitWindow, "scan",
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.EnableHSTS)

	scanHandler := handler.NewScanHandler(scanService)
	modeHandler := handler.NewModeHandler(modeService)
	eventsHandler := handler.NewEventsHandler(broker)
	redisPing := handler.PingerFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": db,
		"redis":    redisPing,
	})

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	// Long-lived stream, kept out of the request timeout
	r.Get("/api/events", eventsHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.With(scanRateLimit.Handler).Post("/api/scan", scanHandler.Scan)
		r.Mount("/api/state", modeHandler.Routes())
		r.Mount("/api/scans", scanHandler.HistoryRoutes())
	})

	if cfg.StaticDir != "" {
		r.NotFound(handler.StaticFileServer(cfg.StaticDir).ServeHTTP)
		log.Info().Str("dir", cfg.StaticDir).Msg("serving static files")
	}

	cleanupJob := jobs.NewCleanupJob(scanRepo, cfg.HistoryRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("upstream", cfg.BuddyURL("")).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	// close SSE streams first so Shutdown does not wait on them
	broker.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
