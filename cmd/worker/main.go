package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/silaibook/silaibook/internal/app"
	jobmetrics "github.com/silaibook/silaibook/internal/jobs"
	"github.com/silaibook/silaibook/internal/notify"
	"github.com/silaibook/silaibook/internal/platform/cache"
	"github.com/silaibook/silaibook/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

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
	client := asynq.NewClient(redisOpts)
	defer client.Close()
	dispatcher := notify.NewDispatcher(client)

	services := app.NewServices(app.ServiceDeps{
		Backend:  backend,
		Config:   cfg,
		Logger:   logger,
		Locker:   app.NewLocker(cfg, redisClient),
		Notifier: dispatcher,
	})

	renderer, err := notify.NewRenderer(notify.Templates{
		Shop:            cfg.ShopName,
		Currency:        cfg.NotifyCurrency,
		Language:        cfg.NotifyLanguage,
		OrderReady:      cfg.TemplateOrderReady,
		PaymentReminder: cfg.TemplateReminder,
	})
	if err != nil {
		logger.Error("init message renderer", slog.Any("error", err))
		os.Exit(1)
	}
	var channel notify.Channel = notify.NewLogChannel(logger)
	if cfg.NotifyWebhookURL != "" {
		channel = notify.NewWebhookChannel(cfg.NotifyWebhookURL, cfg.NotifyTimeout)
	}
	sender := notify.NewSender(renderer, channel, logger)

	metrics := jobmetrics.NewMetrics(nil)
	reminderJob := jobs.NewReminderScanJob(services.Payments, services.Customers, dispatcher, logger, metrics)
	lowStockJob := jobs.NewLowStockScanJob(services.Inventory, logger, metrics)

	reminderTask, err := jobs.NewReminderScanTask()
	if err != nil {
		logger.Error("build reminder scan task", slog.Any("error", err))
		os.Exit(1)
	}
	lowStockTask, err := jobs.NewLowStockScanTask()
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := []jobs.TaskHandler{
		{Type: notify.TaskOrderReady, Handler: sender.HandleOrderReady},
		{Type: notify.TaskPaymentReminder, Handler: sender.HandlePaymentReminder},
		{Type: jobs.TaskPaymentsReminderScan, Handler: reminderJob.Handle},
		{Type: jobs.TaskInventoryLowStockScan, Handler: lowStockJob.Handle},
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.ReminderScanCron, Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: cfg.LowStockScanCron, Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}
	if backend.KeyPruner != nil {
		cleanupJob := jobs.NewIdempotencyCleanupJob(backend.KeyPruner, cfg.IdempotencyRetention, logger, metrics)
		cleanupTask, err := jobs.NewIdempotencyCleanupTask()
		if err != nil {
			logger.Error("build idempotency cleanup task", slog.Any("error", err))
			os.Exit(1)
		}
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}})
	}

	location, err := time.LoadLocation(cfg.WorkerTimezone)
	if err != nil {
		logger.Error("load worker timezone", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    location,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
