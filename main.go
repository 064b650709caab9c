package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"signalkeep/internal/alertpipeline"
	"signalkeep/internal/config"
	"signalkeep/internal/http/handlers"
	appmw "signalkeep/internal/http/middleware"
	"signalkeep/internal/ingest"
	"signalkeep/internal/logging"
	"signalkeep/internal/metrics"
	"signalkeep/internal/pipeline"
	"signalkeep/internal/projectkey"
	"signalkeep/internal/store"
	"signalkeep/internal/tracing"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	metrics.Register()

	pool, err := store.OpenPool(store.PoolConfig{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to open durable store", zap.Error(err))
	}

	st := store.New(pool, logger)
	bgCtx := context.Background()
	if err := st.Migrate(bgCtx); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}
	if err := st.EnsureDefaultProject(bgCtx, "default", "Default", "default", cfg.Auth.HMACSecret, time.Now().UnixMilli()); err != nil {
		logger.Fatal("failed to bootstrap default project", zap.Error(err))
	}

	projectKeys := projectkey.New(1000, 5*time.Minute, st.ProjectSecret)

	alertCh := make(chan store.NewFingerprint, 1024)

	errorWorker := pipeline.NewWorker(cfg.Ingest.ChannelCapacity, st, cfg.Pipeline, 100_000, alertCh, logger)
	traceWorker := tracing.NewWorker(cfg.LLMTracing.ChannelCapacity, st, cfg.LLMTracing, logger)

	evaluator := alertpipeline.New(
		[]alertpipeline.Rule{{ID: "default-new-issue", Name: "new-issue"}},
		st,
		alertpipeline.LoggingSender{Log: func(req alertpipeline.DispatchRequest) {
			logger.Info("alert dispatched", zap.String("rule", req.RuleName), zap.String("fingerprint", req.Fingerprint))
		}},
		cfg.Alerting.CooldownSecs,
		logger,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(3)
	go func() { defer workers.Done(); errorWorker.Run(workerCtx) }()
	go func() { defer workers.Done(); traceWorker.Run(workerCtx) }()
	go func() { defer workers.Done(); evaluator.Run(workerCtx, alertCh) }()

	r := router.New()

	ingestAuth := appmw.HMACAuth(projectKeys, cfg.Ingest.MaxPayloadBytes)
	withMetrics := func(route string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return appmw.RequestMetrics(route)(h)
	}

	r.POST("/v1/ingest", withMetrics("/v1/ingest", ingestAuth(ingest.Single(cfg.Ingest, errorWorker))))
	r.POST("/v1/ingest/batch", withMetrics("/v1/ingest/batch", ingestAuth(ingest.Batch(cfg.Ingest, errorWorker))))

	if cfg.LLMTracing.Enabled {
		pricing := tracing.NewPricingTable()
		r.POST("/v1/traces", withMetrics("/v1/traces", ingestAuth(tracing.Single(cfg.LLMTracing, traceWorker, st, pricing))))
		r.POST("/v1/traces/batch", withMetrics("/v1/traces/batch", ingestAuth(tracing.Batch(cfg.LLMTracing, traceWorker, st, pricing))))
		r.PUT("/v1/traces/{id}", withMetrics("/v1/traces/{id}", ingestAuth(tracing.Update(cfg.LLMTracing, traceWorker, st, pricing))))
	}

	r.GET("/health", handlers.Health(st, errorWorker))
	r.GET("/metrics", handlers.Metrics())

	srv := &fasthttp.Server{
		Handler: r.Handler,
	}

	go func() {
		logger.Info("signalkeep listening", zap.String("addr", cfg.Server.Addr()))
		if err := srv.ListenAndServe(cfg.Server.Addr()); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	logger.Info("shutdown signal received")

	// Stop accepting new connections; in-flight handlers may still enqueue.
	if err := srv.Shutdown(); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	// Cancel the worker contexts so each worker observes shutdown, performs
	// one final flush of its buffer, and returns.
	cancelWorkers()

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("workers drained cleanly")
	case <-time.After(shutdownGrace):
		logger.Warn("shutdown grace period elapsed, proceeding to terminate")
	}

	if err := st.Close(); err != nil {
		logger.Warn("store close error", zap.Error(err))
	}
}
