package main

import (
	"context"
	"errors"
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
	"notifyhub/internal/microservices/http-api/middleware"
	"notifyhub/internal/microservices/http-api/repository"
	"notifyhub/internal/microservices/http-api/service"
	"notifyhub/internal/microservices/websocket"
	"notifyhub/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectDB(cfg, appLogger)
	if err != nil {
		appLogger.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	// Redis is optional: without it the API runs as a single instance
	rdb, err := database.ConnectRedis(cfg, appLogger)
	if err != nil {
		appLogger.Warn("redis_unavailable", "error", err)
	} else {
		defer rdb.Close()
	}

	// Repositories
	prefRepo := repository.NewPreferenceRepository(db)
	if rdb != nil {
		prefRepo = repository.NewCachedPreferenceRepository(prefRepo, rdb, time.Duration(cfg.CacheTTL)*time.Second)
	}
	outboxRepo := repository.NewOutboxRepository(db)
	pushRepo := repository.NewPushSubscriptionRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	feedRepo := repository.NewFeedCursorRepository(db)
	convRepo := repository.NewConversationRepository(db)

	var typingRepo repository.TypingRepository
	if rdb != nil {
		typingRepo = repository.NewRedisTypingRepository(rdb)
	} else {
		mem := repository.NewMemoryTypingRepository()
		go mem.StartCleanupRoutine(time.Minute, ctx.Done())
		typingRepo = mem
	}

	// Delivery
	senders, err := delivery.NewConfiguredRegistry(cfg, profileRepo, pushRepo, appLogger)
	if err != nil {
		appLogger.Error("delivery_setup_failed", "error", err)
		os.Exit(1)
	}
	policy := service.NewRetryPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	defaultTZ, err := time.LoadLocation(cfg.QuietHoursDefaultTZ)
	if err != nil {
		appLogger.Error("invalid_default_timezone", "tz", cfg.QuietHoursDefaultTZ, "error", err)
		os.Exit(1)
	}

	// not tied to the signal context so queued notifications still run during shutdown
	asyncPool := worker.NewPool(context.Background(), "dispatch-async", 4)
	asyncPool.Start()

	// Services
	tokenService := service.NewTokenService(cfg.JWTSecret)
	prefService := service.NewPreferenceService(prefRepo, cfg.QuietHoursDefaultTZ)
	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Preferences: prefService,
		Outbox:      outboxRepo,
		Sender:      senders,
		Profiles:    profileRepo,
		Policy:      policy,
		DefaultTZ:   defaultTZ,
		Lease:       cfg.RetryLease,
		Async:       asyncPool,
		Logger:      appLogger,
	})
	outboxService := service.NewOutboxService(service.OutboxServiceConfig{
		Outbox:    outboxRepo,
		Sender:    senders,
		Policy:    policy,
		BatchSize: cfg.RetryBatchSize,
		Workers:   cfg.RetryWorkers,
		Lease:     cfg.RetryLease,
		Logger:    appLogger,
	})
	pushService := service.NewPushSubscriptionService(pushRepo, cfg.VAPIDPublicKey)
	feedService := service.NewFeedService(outboxRepo, feedRepo)

	mux := websocket.NewMultiplexer(appLogger)
	var publisher service.EventPublisher = mux
	if rdb != nil {
		bridge := websocket.NewRedisBridge(rdb, mux, appLogger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				appLogger.Error("conversation_bridge_failed", "error", err)
			}
		}()
		publisher = bridge
	}

	convService := service.NewConversationService(service.ConversationServiceConfig{
		Conversations: convRepo,
		Typing:        typingRepo,
		Profiles:      profileRepo,
		Publisher:     publisher,
		Notifier:      dispatcher,
		TypingTTL:     cfg.TypingTTL,
		Logger:        appLogger,
	})

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(appLogger))

	sqlDB, err := db.DB()
	if err != nil {
		appLogger.Error("database_handle_failed", "error", err)
		os.Exit(1)
	}
	checks := map[string]handler.HealthCheck{"database": sqlDB.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	r.GET("/healthz", handler.NewHealthHandler(checks).Health)
	if cfg.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1", middleware.AuthMiddleware(tokenService))
	{
		handler.NewPreferenceHandler(prefService).RegisterRoutes(api)
		handler.NewDispatchHandler(dispatcher).RegisterRoutes(api)
		handler.NewOutboxHandler(outboxService).RegisterRoutes(api.Group("/admin/outbox", middleware.RequireAdmin()))
		handler.NewPushHandler(pushService).RegisterRoutes(api.Group("/push"))
		handler.NewFeedHandler(feedService).RegisterRoutes(api.Group("/notifications"))
		handler.NewConversationHandler(convService).RegisterRoutes(api.Group("/conversations"))
		api.GET("/ws", websocket.WSHandler(mux, convService, websocket.NewUpgrader(cfg.CORSOrigins), appLogger))
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.HTTPPort),
		Handler:           corsHandler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("api_server_starting", "addr", srv.Addr, "redis", rdb != nil, "metrics", cfg.PrometheusEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("received_shutdown_signal")
	case err := <-errChan:
		appLogger.Error("server_error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server_shutdown_failed", "error", err)
	}
	// let queued message notifications finish before the pool goes away
	asyncPool.Wait()
	appLogger.Info("server_stopped_gracefully")
}
