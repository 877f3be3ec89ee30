package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/cleanup"
	"rollcall/internal/config"
	"rollcall/internal/logging"
	"rollcall/internal/metrics"
	"rollcall/internal/objectstore"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker retries object-store deletes queued by the API in redis.
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		logger.Fatal("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process",
			zap.String("queue_backend", cfg.QueueBackend))
	}

	blobs, err := objectstore.New(objectstore.Config{
		Backend:             cfg.ObjectStore,
		SupabaseURL:         cfg.SupabaseURL,
		SupabaseKey:         cfg.SupabaseKey,
		SupabaseBucket:      cfg.SupabaseBucket,
		CloudinaryCloudName: cfg.CloudinaryCloudName,
		CloudinaryAPIKey:    cfg.CloudinaryAPIKey,
		CloudinaryAPISecret: cfg.CloudinaryAPISecret,
		CloudinaryFolder:    cfg.CloudinaryFolder,
		Timeout:             cfg.ObjectStoreTimeout,
	})
	if err != nil {
		logger.Fatal("object store not configured", zap.Error(err))
	}

	redisClient := store.NewRedis(store.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis not reachable yet, will keep retrying", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.WorkerMetricsAddr != "" {
		srv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}
	q := queue.NewRedisQueue(redisClient.Client, queue.CleanupKey)
	p := cleanup.NewProcessor(objectstore.WithMetrics(blobs, m.ObjectStoreOps), q, m.BlobCleanups, logger)

	logger.Info("worker started, waiting for messages", zap.String("queue", queue.CleanupKey))
	if err := p.Run(ctx); err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}
	logger.Info("worker stopped")
}
