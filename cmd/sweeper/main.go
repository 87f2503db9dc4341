// Command sweeper applies missed payment, appointment and confirmation
// deadlines and closes ended auctions.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/app"
	"github.com/baharkarakas/evtrade-backend/internal/config"
	"github.com/baharkarakas/evtrade-backend/internal/logger"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.Env, "sweeper")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("startup", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	svc := services.NewLifecycleService(a.Core, a.Files, cfg.SweepBatch)
	sweep := func() {
		rep, err := svc.SweepExpired(ctx)
		if err != nil {
			log.Error("sweep", "err", err)
			return
		}
		log.Debug("sweep done", "report", rep)
	}

	sweep()
	if *once {
		return
	}

	t := time.NewTicker(cfg.SweepInterval)
	defer t.Stop()
	log.Info("sweeper started", "interval", cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopping")
			return
		case <-t.C:
			sweep()
		}
	}
}
