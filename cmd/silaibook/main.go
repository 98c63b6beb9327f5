package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/app"
	"github.com/silaibook/silaibook/internal/fulfillment"
	"github.com/silaibook/silaibook/internal/notify"
	"github.com/silaibook/silaibook/internal/observability"
	"github.com/silaibook/silaibook/internal/platform/cache"
	"github.com/silaibook/silaibook/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	decimal.MarshalJSONWithoutQuotes = true

	backend, closeBackend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeBackend()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.Redis().AsynqOpt()
	var notifier fulfillment.Notifier
	if cfg.NotifyEnabled {
		client := asynq.NewClient(redisOpts)
		defer client.Close()
		notifier = notify.NewDispatcher(client)
	}

	metrics := observability.NewMetrics()
	services := app.NewServices(app.ServiceDeps{
		Backend:  backend,
		Config:   cfg,
		Logger:   logger,
		Locker:   app.NewLocker(cfg, redisClient),
		Notifier: notifier,
		Metrics:  metrics,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("close inspector", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(services.Handlers(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Metrics:    metrics,
		Health:     backend.Health,
		JobHandler: jobs.NewHandler(inspector, logger),
	}, nil))

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
