package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mpetrov/refragd/internal/bootstrap"
	"github.com/mpetrov/refragd/internal/config"
	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/observability/logging"
	"github.com/mpetrov/refragd/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.New("refragd-worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("refragd-worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "backend", cfg.RetrieverBackend)
	err = app.Queue.SubscribeFragments(ctx, func(handlerCtx context.Context, fragments []domain.Fragment) error {
		indexCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartBatch()
		start := time.Now()
		indexErr := app.Index.AddFragments(indexCtx, fragments)
		workerMetrics.FinishBatch("refragd-worker", len(fragments), time.Since(start), indexErr)
		return indexErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
