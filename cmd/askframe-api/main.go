package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askframe/askframe/internal/api"
	"github.com/askframe/askframe/internal/api/uistatic"
	"github.com/askframe/askframe/internal/auth"
	"github.com/askframe/askframe/internal/codegen"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/dataset"
	"github.com/askframe/askframe/internal/observability"
	"github.com/askframe/askframe/internal/pipeline"
	duckdbengine "github.com/askframe/askframe/internal/query/duckdb"
	s3store "github.com/askframe/askframe/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("askframe-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	generator, err := codegen.New(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize generation client", slog.Any("error", err))
		os.Exit(1)
	}

	queryEngine := duckdbengine.NewEngine()
	analyst, err := pipeline.NewAnalyst(cfg, generator, queryEngine, logger)
	if err != nil {
		logger.Error("failed to initialize analyst", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Datasets:          dataset.NewLoader(cfg.Dataset.MaxUploadBytes),
		Analyst:           analyst,
		QueryEngine:       queryEngine,
		UI:                uistatic.Handler(),
		DependencyTimeout: time.Second,
	}
	readiness := []api.ReadinessCheck{api.CheckGenerationConfig(cfg)}
	if cfg.ObjectStore.Enabled {
		objectStore, err := s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.ObjectStore = objectStore
		readiness = append(readiness, api.CheckObjectStore(objectStore))
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("provider", cfg.AI.Provider), slog.String("model", cfg.AI.Model))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
