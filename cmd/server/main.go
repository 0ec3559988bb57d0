package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	syncapp "github.com/channelsync/backend/internal/application/sync"
	webhookapp "github.com/channelsync/backend/internal/application/webhook"
	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/infrastructure/auth"
	"github.com/channelsync/backend/internal/infrastructure/cache"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/connectors"
	"github.com/channelsync/backend/internal/infrastructure/logger"
	"github.com/channelsync/backend/internal/infrastructure/persistence"
	"github.com/channelsync/backend/internal/infrastructure/scheduler"
	"github.com/channelsync/backend/internal/interfaces/http/handler"
	"github.com/channelsync/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting channelsync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	upserter := persistence.NewBatchUpserter(db.DB, persistence.UpserterConfig{
		BatchSize:   cfg.Batch.Size,
		Concurrency: cfg.Batch.Concurrency,
		MaxRetries:  cfg.Batch.MaxRetries,
		RetryDelay:  cfg.Batch.RetryDelay,
	}, log)
	storeRepo := persistence.NewGormStoreRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB, upserter)
	inventoryRepo := persistence.NewGormInventoryRepository(db.DB, upserter)
	orderRepo := persistence.NewGormOrderRepository(db.DB, upserter)
	returnRepo := persistence.NewGormReturnRepository(db.DB, upserter)
	jobRepo := persistence.NewGormJobRepository(db.DB)

	// Idempotency store. A dead Redis degrades dedupe to per-process, which
	// matches the trigger's fail-open policy; it never blocks startup.
	var idempotency job.IdempotencyStore
	var redisProbe scheduler.Probe
	redisStore, err := cache.NewRedisIdempotencyStore(&cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-memory dedupe", zap.Error(err))
		memStore := cache.NewInMemoryIdempotencyStore()
		defer memStore.Close()
		idempotency = memStore
		redisProbe = scheduler.Probe{Name: "redis", Check: memStore.Ping}
	} else {
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		idempotency = redisStore
		redisProbe = scheduler.Probe{Name: "redis", Check: redisStore.Ping}
	}

	probes := []scheduler.Probe{
		{Name: "database", Check: func(ctx context.Context) error { return db.Ping() }},
		redisProbe,
	}

	// Connectors and services
	registry := connectors.NewRegistry(log)
	syncService := syncapp.NewService(registry, storeRepo, productRepo, inventoryRepo, orderRepo, returnRepo, log)
	webhookService := webhookapp.NewService(registry, storeRepo, storeRepo, productRepo, orderRepo, log)

	// Scheduler
	executor := scheduler.NewSyncExecutor(syncService)
	pool := scheduler.NewPool(cfg.Sync, executor, storeRepo, storeRepo, jobRepo, log)
	trigger := scheduler.NewTrigger(cfg.Sync, pool, storeRepo, registry, idempotency, jobRepo, storeRepo, probes, log)

	if cfg.Sync.Enabled {
		if err := pool.Start(context.Background()); err != nil {
			log.Fatal("Failed to start worker pool", zap.Error(err))
		}
		if err := trigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
	} else {
		log.Warn("Sync scheduling disabled by configuration")
	}

	// HTTP surface
	jwtService := auth.NewJWTService(cfg.JWT)
	engine := router.Setup(cfg, log, jwtService,
		handler.NewHealthHandler(probes, storeRepo, pool),
		handler.NewWebhookHandler(webhookService),
		handler.NewAdminHandler(storeRepo, storeRepo),
	)

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	// Stop enqueueing first, then drain in-flight jobs, then close the
	// listener
	trigger.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Error("Worker pool shutdown timed out", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	log.Info("Shutdown complete")
}
