package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/cleanup"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/logging"
	"rollcall/internal/metrics"
	"rollcall/internal/objectstore"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db := store.Connect(ctx, store.Options{
		URL:            cfg.DatabaseURL,
		MinConns:       cfg.DBMinConns,
		MaxConns:       cfg.DBMaxConns,
		Attempts:       cfg.DBConnectAttempts,
		Backoff:        cfg.DBConnectBackoff,
		AcquireTimeout: cfg.DBAcquireTimeout,
	}, logger)
	defer db.Close()
	if err := db.Bootstrap(ctx); err != nil {
		logger.Warn("schema bootstrap skipped", zap.Error(err))
	}
	metrics.WatchPool(reg, db.Pool)

	var blobs objectstore.Store
	if s, err := newObjectStore(cfg); err != nil {
		logger.Warn("object store not configured, image uploads disabled", zap.Error(err))
	} else {
		blobs = objectstore.WithMetrics(s, m.ObjectStoreOps)
		logger.Info("object store configured", zap.String("backend", s.Name()))
	}

	var (
		q     queue.Queue
		redis *store.Redis
	)
	if cfg.QueueBackend == "redis" {
		redis = store.NewRedis(store.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = redis.Close() }()
		q = queue.NewRedisQueue(redis.Client, queue.CleanupKey)
	} else {
		q = queue.NewInMemory(64)
		if blobs != nil {
			// Nothing else can drain an in-process queue.
			go func() {
				if err := cleanup.NewProcessor(blobs, q, m.BlobCleanups, logger).Run(ctx); err != nil {
					logger.Error("blob cleanup stopped", zap.Error(err))
				}
			}()
		}
	}

	svc := attendance.NewService(attendance.NewRepository(db), blobs, q, logger)

	opts := handler.RouterOptions{
		Handler:              handler.New(svc, logger, cfg.MaxUploadBytes),
		Logger:               logger,
		Metrics:              m,
		Gatherer:             reg,
		DB:                   db,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		CORSAllowCredentials: cfg.CORSAllowCredentials,
		RateLimitPerMin:      cfg.RateLimitPerMin,
		FrontendDir:          cfg.FrontendDir,
		HSTS:                 cfg.Production(),
	}
	if redis != nil {
		opts.Redis = redis
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.NewRouter(opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

func newObjectStore(cfg config.App) (objectstore.Store, error) {
	return objectstore.New(objectstore.Config{
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
}
