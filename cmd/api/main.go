package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/api"
	"github.com/baharkarakas/evtrade-backend/internal/app"
	"github.com/baharkarakas/evtrade-backend/internal/auth"
	"github.com/baharkarakas/evtrade-backend/internal/config"
	"github.com/baharkarakas/evtrade-backend/internal/logger"
	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "api")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("startup", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	gw, momoCfg := a.Gateway()
	if gw == nil {
		log.Warn("MOMO_PARTNER_CODE not set, gateway payments disabled")
	}
	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	metrics.Init()
	r := api.NewRouter(api.Deps{
		Cfg:            cfg,
		Log:            log,
		Tokens:         tm,
		Users:          services.NewUserService(a.Store, tm, log),
		Wallets:        services.NewWalletService(a.Core, gw),
		Listings:       services.NewListingService(a.Core),
		Auctions:       services.NewAuctionService(a.Core),
		Checkout:       services.NewCheckoutService(a.Core, gw),
		Lifecycle:      services.NewLifecycleService(a.Core, a.Files, cfg.SweepBatch),
		Reconciliation: services.NewReconciliationService(a.Core, momoCfg),
		Files:          http.FileServer(http.Dir(cfg.UploadDir)),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "redis", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
