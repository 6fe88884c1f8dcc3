package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/taskora/taskora/backend/internal/audit"
	"github.com/taskora/taskora/backend/internal/auth"
	"github.com/taskora/taskora/backend/internal/clock"
	"github.com/taskora/taskora/backend/internal/config"
	"github.com/taskora/taskora/backend/internal/health"
	"github.com/taskora/taskora/backend/internal/logger"
	"github.com/taskora/taskora/backend/internal/metrics"
	appmw "github.com/taskora/taskora/backend/internal/middleware"
	"github.com/taskora/taskora/backend/internal/notification"
	"github.com/taskora/taskora/backend/internal/otp"
	"github.com/taskora/taskora/backend/internal/passwordreset"
	"github.com/taskora/taskora/backend/internal/ratelimit"
	"github.com/taskora/taskora/backend/internal/repository"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())

	if cfg.Token.Secret == "" {
		log.Error("TOKEN_SECRET environment variable is required")
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.1,
		}); err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	dbPool, err := setupDatabase(cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	auditDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open audit database connection", "error", err)
		os.Exit(1)
	}
	defer auditDB.Close()

	var redisClient *redis.Client
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The throttle fails open per request, so a down redis only
			// degrades the service.
			log.Warn("redis unreachable at startup, login throttle will fail open", "error", err)
		}
		cancel()
		defer redisClient.Close()
		limiter = ratelimit.NewLimiter(redisClient, "login", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}

	clk := clock.System{}

	credRepo := repository.NewCredentialRepository(dbPool)
	otpRepo := repository.NewOTPRepository(dbPool)
	resetRepo := repository.NewResetTokenRepository(dbPool)

	recorder := audit.NewSQLRecorder(auditDB, clk, log)

	bus := notification.NewInMemoryBus()
	bus.Subscribe(notification.KindOTPCode, func(msg notification.Message) {
		log.Info("otp dispatched to transport",
			"otp_id", msg.OTPID,
			"user_id", msg.UserID,
			"channel", msg.Channel,
		)
	})
	bus.Subscribe(notification.KindPasswordReset, func(msg notification.Message) {
		log.Info("password reset dispatched to transport",
			"user_id", msg.UserID,
			"channel", msg.Channel,
		)
	})

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:   cfg.Token.Secret,
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		TTL:      cfg.Token.TTL,
		Clock:    clk,
	})

	passwordValidator := auth.NewPasswordValidator()

	credentialService := auth.NewCredentialService(credRepo, passwordValidator, recorder, clk, cfg.Lockout, log)

	otpService := otp.NewService(otpRepo, bus, credentialService, recorder, clk, cfg.OTP, log)

	authService := auth.NewService(credentialService, credRepo, tokenService, otpService, passwordValidator, limiter, log)

	resetService := passwordreset.NewService(resetRepo, credRepo, passwordValidator, bus, recorder, clk, cfg.Reset, log)

	authHandler := auth.NewHandler(authService, tokenService)
	otpHandler := otp.NewHandler(otpService)
	resetHandler := passwordreset.NewHandler(resetService)

	healthHandler := health.NewHandler(health.Config{
		DBPool:      dbPool,
		RedisClient: redisClient,
		Version:     getVersion(),
	})

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appmw.StructuredLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	auth.RegisterRoutes(r, authHandler)
	otp.RegisterRoutes(r, otpHandler)
	passwordreset.RegisterRoutes(r, resetHandler)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting auth service", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down auth service")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("auth service exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to database", "name", cfg.Database.DBName, "host", cfg.Database.Host, "port", cfg.Database.Port)
	return pool, nil
}

// getVersion returns the build version from the environment, if set.
func getVersion() string {
	if v := os.Getenv("SERVICE_VERSION"); v != "" {
		return v
	}
	return "dev"
}
