package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/taskora/taskora/backend/internal/config"
	"github.com/taskora/taskora/backend/internal/gateway"
	"github.com/taskora/taskora/backend/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())

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

	validator := gateway.NewValidatorClient(cfg.Gateway.AuthServiceURL, cfg.Gateway.ValidatorTimeout)
	filter := gateway.NewAuthenticationFilter(validator, gateway.DefaultUnsecuredPaths(), log)

	authSvc, err := gateway.NewUpstream("auth", cfg.Gateway.AuthServiceURL, log)
	if err != nil {
		log.Error("invalid auth service url", "error", err)
		os.Exit(1)
	}
	boardSvc, err := gateway.NewUpstream("board", cfg.Gateway.BoardServiceURL, log)
	if err != nil {
		log.Error("invalid board service url", "error", err)
		os.Exit(1)
	}

	handler := gateway.Router(filter, authSvc, boardSvc, log)

	addr := cfg.Gateway.Host + ":" + cfg.Gateway.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting gateway", "addr", addr,
			"auth_service", cfg.Gateway.AuthServiceURL,
			"board_service", cfg.Gateway.BoardServiceURL,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("gateway forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("gateway exited")
}
