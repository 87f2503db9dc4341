// Command worker runs contract generation and notifications queued on Redis.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/app"
	"github.com/baharkarakas/evtrade-backend/internal/config"
	"github.com/baharkarakas/evtrade-backend/internal/logger"
	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "worker")
	slog.SetDefault(log)

	if cfg.RedisAddr == "" {
		log.Error("REDIS_ADDR is required; without it the api runs tasks in process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("startup", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	metrics.Init()
	if cfg.WorkerMetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		msrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server", "err", err)
			}
		}()
		defer msrv.Close()
	}

	log.Info("worker starting", "concurrency", cfg.Workers)
	// asynq handles SIGINT/SIGTERM itself and returns after draining.
	if err := worker.NewServer(a.RedisOpt(), cfg.Workers, a.Handlers).Run(); err != nil {
		log.Error("worker", "err", err)
		os.Exit(1)
	}
}
