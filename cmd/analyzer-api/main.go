package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/marketplace-analyzer/internal/api"
	"github.com/maltedev/marketplace-analyzer/internal/app"
	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/database"
	"github.com/maltedev/marketplace-analyzer/internal/logging"
	"github.com/maltedev/marketplace-analyzer/internal/ratelimit"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stdout)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.Build(ctx, cfg, logger, app.Options{Outbox: true})
	if err != nil {
		logger.Error("failed to initialize analyzer", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	var handlerOpts []api.HandlerOption

	if components.Redis != nil {
		rdb := components.Redis
		handlerOpts = append(handlerOpts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	if components.DB != nil {
		handlerOpts = append(handlerOpts,
			api.WithHealthCheck("postgres", components.DB.Ping),
			api.WithOutbox(components.Outbox),
		)

		if components.Redis != nil {
			relay := database.NewRelay(components.Outbox, components.Redis, logger, database.RelayConfig{
				PollInterval: 5 * time.Second,
				BatchSize:    100,
			})
			go func() {
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		} else {
			logger.Warn("outbox relay disabled: no Redis configured")
		}
	}

	handlers := api.NewHandlers(components.Analyzer, logger, handlerOpts...)
	limiter := ratelimit.NewLimiter(cfg.Server.RateLimitBurst, cfg.Server.RateLimitRefill)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
