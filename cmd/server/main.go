// Package main is the entry point for the attendance service.
package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/school-platform/attendance-service/internal/attendance"
	"github.com/school-platform/attendance-service/internal/auth"
	"github.com/school-platform/attendance-service/internal/broker"
	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/dataset"
	"github.com/school-platform/attendance-service/internal/http"
	"github.com/school-platform/attendance-service/internal/loggingclient"
	"github.com/school-platform/attendance-service/internal/observability"
	"github.com/school-platform/attendance-service/internal/pool"
	"github.com/school-platform/attendance-service/internal/replicated"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "attendance-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	obs, err := observability.New(observability.Config{
		ServiceName:    "attendance-service",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		LoggingConfig: loggingclient.Config{
			Address:                 cfg.Logging.ServiceAddress,
			ServiceID:               "attendance-service",
			BatchSize:               cfg.Logging.BatchSize,
			FlushInterval:           cfg.Logging.FlushInterval,
			BufferSize:              cfg.Logging.BufferSize,
			Enabled:                 cfg.Logging.Enabled,
			CircuitBreakerThreshold: 5,
			CircuitBreakerTimeout:   cfg.Logging.FlushInterval * 6,
		},
		MetricsEnabled:  cfg.Metrics.Enabled,
		TracingEnabled:  cfg.Tracing.Enabled,
		TracingEndpoint: cfg.Tracing.Endpoint,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := obs.Logger
	logger.Info(ctx, "starting attendance service", loggingclient.Any("config", cfg.LogSafe()))

	instances, err := pool.New(cfg.Groups, logger)
	if err != nil {
		return err
	}
	defer instances.Close()

	cache := replicated.New(instances, logger, obs.Metrics)

	policy, err := attendance.NewExpirationPolicy(cfg.Attendance, nil)
	if err != nil {
		return err
	}
	registration := attendance.NewRegistrationService(cache, policy, logger, obs.Metrics)
	flags := attendance.NewFlagService(cache, policy, logger)

	var backup dataset.BackupStore
	if cfg.Backup.Bucket != "" {
		backup, err = dataset.NewS3Backup(ctx, cfg.Backup)
		if err != nil {
			return err
		}
	}
	fetcher := dataset.NewFetcher(cfg.Datasets, dataset.Defaults(cfg.Datasets), cache, backup, logger, obs.Metrics)

	msgBroker, err := broker.NewFromConfig(cfg.Broker)
	if err != nil {
		return err
	}
	invalidation := broker.NewInvalidationService(msgBroker, fetcher, cfg.Broker.Topic, logger)
	if err := invalidation.Start(ctx); err != nil {
		return err
	}
	defer invalidation.Close()

	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	handler := http.NewHandler(registration, flags, fetcher, invalidation, cache)
	router := http.NewRouter(handler, http.RouterConfig{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		AuthMiddleware: auth.NewMiddleware(validator),
		RequestTimeout: cfg.Datasets.FetchTimeout * 2,
		Metrics:        obs.Metrics,
	})

	server := &stdhttp.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server listening", loggingclient.Int("port", cfg.Server.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown failed", loggingclient.Error(err))
	}
	return obs.Shutdown(shutdownCtx)
}
