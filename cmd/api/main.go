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

	httpadapter "github.com/mpetrov/refragd/internal/adapters/http"
	"github.com/mpetrov/refragd/internal/bootstrap"
	"github.com/mpetrov/refragd/internal/config"
	"github.com/mpetrov/refragd/internal/observability/logging"
	"github.com/mpetrov/refragd/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.New("refragd-api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics("refragd-api")
	router := httpadapter.NewRouter(app.Pipeline, app.Queue, app.MemoryUC, app.Codec, httpMetrics, httpadapter.RouterOptions{
		Service:        "refragd-api",
		Strategy:       app.Strategy,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxInFlight:    cfg.MaxInFlight,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "backend", cfg.RetrieverBackend, "strategy", app.Strategy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}
