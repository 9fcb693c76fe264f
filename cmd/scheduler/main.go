package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tableguard/tableguard/examples/scanners"
	"github.com/tableguard/tableguard/internal/cache"
	"github.com/tableguard/tableguard/internal/config"
	"github.com/tableguard/tableguard/internal/limiter"
	"github.com/tableguard/tableguard/internal/metrics"
	"github.com/tableguard/tableguard/internal/queue"
	"github.com/tableguard/tableguard/internal/retry"
	"github.com/tableguard/tableguard/internal/scan"
	"github.com/tableguard/tableguard/internal/schedule"
	"github.com/tableguard/tableguard/internal/scheduler"
	"github.com/tableguard/tableguard/internal/server"
	"github.com/tableguard/tableguard/internal/tracing"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting scan scheduler",
		zap.String("version", "1.0.0"),
		zap.String("address", cfg.Server.Address()),
	)

	// Schedule repository: Redis when configured, process memory otherwise.
	var repo scheduler.Repository
	if cfg.Redis.Enabled {
		redisRepo, err := scheduler.NewRedisRepository(scheduler.RedisOptions{
			URL:            cfg.Redis.URL,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			ConnectTimeout: cfg.Redis.Timeout,
			CommandTimeout: cfg.Redis.Timeout,
		})
		if err != nil {
			logger.Fatal("Failed to initialize Redis schedule repository", zap.Error(err))
		}
		defer redisRepo.Close()
		repo = redisRepo
	} else {
		logger.Warn("Using in-memory schedule repository; schedules will not survive restarts")
		repo = scheduler.NewMemoryRepository()
	}

	// Scan runner registry.
	registry := scan.NewRegistry(logger)
	if err := registerScanners(registry, logger); err != nil {
		logger.Fatal("Failed to register scan runners", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer, logger)

	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    "tableguard-scheduler",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	// Job queue.
	jobQueue := queue.New(queue.Config{
		MaxConcurrent:   cfg.Queue.MaxConcurrent,
		RetryBaseDelay:  cfg.Queue.RetryBaseDelay,
		HistoryLimit:    cfg.Queue.HistoryLimit,
		ShutdownTimeout: cfg.Queue.ShutdownTimeout,
	}, registry, logger, queue.WithMetrics(m))
	jobQueue.Start()

	// Scheduler driver.
	rateLimiter := limiter.NewLocalRateLimiter(cfg.Scheduler.RateLimit, cfg.Scheduler.RateBurst)
	driver := scheduler.NewDriver(scheduler.Config{
		BatchSize:     cfg.Scheduler.BatchSize,
		UseQueue:      cfg.Scheduler.UseQueue,
		JobMaxRetries: cfg.Queue.MaxRetries,
		RetryPolicy: retry.Policy{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialDelay:      cfg.Retry.InitialDelay,
			MaxDelay:          cfg.Retry.MaxDelay,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		},
	}, repo, registry, schedule.NewResolver(), logger,
		scheduler.WithQueue(jobQueue),
		scheduler.WithRateLimiter(rateLimiter),
		scheduler.WithMetrics(m),
		scheduler.WithTracer(tracer),
	)

	resultCache := cache.New()

	srv := server.New(cfg, driver, repo, jobQueue, schedule.NewResolver(), resultCache, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			if err := m.StartServer(cfg.Metrics.Address); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	// Periodically sample queue and cache gauges.
	samplerCtx, stopSampler := context.WithCancel(context.Background())
	go sampleStats(samplerCtx, jobQueue, resultCache, m)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	stopSampler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error("Failed to shutdown server gracefully", zap.Error(err))
	}
	if err := jobQueue.Stop(); err != nil {
		logger.Error("Failed to shutdown job queue gracefully", zap.Error(err))
	}
	if err := m.StopServer(ctx); err != nil {
		logger.Error("Failed to shutdown metrics server gracefully", zap.Error(err))
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown tracer", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// sampleStats feeds the queue and cache gauges every few seconds.
func sampleStats(ctx context.Context, q *queue.Queue, c *cache.Cache, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var lastHits, lastMisses int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qs := q.GetStats()
			m.ObserveQueue(qs.Pending, qs.Running)

			cs := c.GetStats()
			m.ObserveCache(cs.Hits-lastHits, cs.Misses-lastMisses)
			lastHits, lastMisses = cs.Hits, cs.Misses
		}
	}
}

// initLogger initializes the logger based on configuration
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapConfig.Build()
}

// registerScanners registers the simulated scan runners. Deployments against
// a real warehouse register their own scan.Runner implementations here.
func registerScanners(registry *scan.Registry, logger *zap.Logger) error {
	if err := registry.Register(scanners.NewProfilingScanner(logger)); err != nil {
		return err
	}
	if err := registry.Register(scanners.NewChecksScanner(logger)); err != nil {
		return err
	}
	if err := registry.Register(scanners.NewAnomaliesScanner(logger)); err != nil {
		return err
	}

	logger.Info("All scan runners registered")
	return nil
}
