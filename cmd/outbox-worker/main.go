package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notifyhub/database"
	"notifyhub/internal/config"
	"notifyhub/internal/delivery"
	"notifyhub/internal/logger"
	"notifyhub/internal/microservices/http-api/handler"
	"notifyhub/internal/microservices/http-api/repository"
	"notifyhub/internal/microservices/http-api/service"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 10 * time.Minute

func main() {
	once := flag.Bool("once", false, "run a single retry sweep and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat).With("component", "outbox-worker")
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectDB(cfg, appLogger)
	if err != nil {
		appLogger.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	outboxRepo := repository.NewOutboxRepository(db)
	senders, err := delivery.NewConfiguredRegistry(cfg,
		repository.NewProfileRepository(db),
		repository.NewPushSubscriptionRepository(db),
		appLogger,
	)
	if err != nil {
		appLogger.Error("delivery_setup_failed", "error", err)
		os.Exit(1)
	}

	outboxService := service.NewOutboxService(service.OutboxServiceConfig{
		Outbox:    outboxRepo,
		Sender:    senders,
		Policy:    service.NewRetryPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		BatchSize: cfg.RetryBatchSize,
		Workers:   cfg.RetryWorkers,
		Lease:     cfg.RetryLease,
		Logger:    appLogger,
	})

	sweep := func() {
		sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		if _, err := outboxService.Sweep(sctx); err != nil {
			appLogger.Error("retry_sweep_failed", "error", err)
		}
	}

	if *once {
		sweep()
		return
	}

	scheduler := cron.New(
		cron.WithLogger(cronLogger{appLogger}),
		cron.WithChain(cron.Recover(cronLogger{appLogger}), cron.SkipIfStillRunning(cronLogger{appLogger})),
	)
	if _, err := scheduler.AddFunc(cfg.RetrySchedule, sweep); err != nil {
		appLogger.Error("invalid_retry_schedule", "schedule", cfg.RetrySchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	appLogger.Info("outbox_worker_started", "schedule", cfg.RetrySchedule, "workers", cfg.RetryWorkers)

	sqlDB, err := db.DB()
	if err != nil {
		appLogger.Error("database_handle_failed", "error", err)
		os.Exit(1)
	}
	srv := newStatusServer(
		fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.WorkerPort),
		map[string]handler.HealthCheck{"database": sqlDB.PingContext},
		cfg.PrometheusEnabled,
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("status_server_failed", "error", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("received_shutdown_signal")

	// waits for a running sweep to return
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	appLogger.Info("outbox_worker_stopped")
}
