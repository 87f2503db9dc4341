// Package app wires the infrastructure shared by the api, worker and sweeper
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/baharkarakas/evtrade-backend/internal/cache"
	"github.com/baharkarakas/evtrade-backend/internal/config"
	"github.com/baharkarakas/evtrade-backend/internal/contract"
	"github.com/baharkarakas/evtrade-backend/internal/db"
	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	"github.com/baharkarakas/evtrade-backend/internal/payment/momo"
	"github.com/baharkarakas/evtrade-backend/internal/repository/postgres"
	"github.com/baharkarakas/evtrade-backend/internal/services"
	"github.com/baharkarakas/evtrade-backend/internal/storage"
	"github.com/baharkarakas/evtrade-backend/internal/worker"
)

type App struct {
	Cfg   config.Config
	Log   *slog.Logger
	Pool  *pgxpool.Pool
	Store *postgres.Store
	Files *storage.Local
	// Tasks is the Redis queue when REDIS_ADDR is set, else the in-process pool.
	Tasks    worker.Dispatcher
	Handlers *worker.Handlers
	Core     *services.Core

	rdb   *redis.Client
	queue *worker.Queue
	wpool *worker.Pool
}

// Open connects to Postgres (and Redis when configured), runs migrations
// when asked to, and builds the settlement core.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.Migrate {
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	a := &App{
		Cfg:   cfg,
		Log:   log,
		Pool:  pool,
		Store: postgres.NewStore(pool),
		Files: storage.NewLocal(cfg.UploadDir, cfg.PublicURL),
	}
	a.Handlers = &worker.Handlers{
		Contracts: contract.NewGenerator(a.Store, a.Files),
		Notifier:  notify.NewLogNotifier(a.Store.Repos().AuditLogs, log),
		Log:       log,
	}

	a.Core = &services.Core{
		Store:  a.Store,
		Ledger: ledger.New(cfg.SystemUserID),
		Log:    log,
		Policy: services.Policy{
			VehicleDepositPercent: cfg.VehicleDepositPercent,
			PaymentWindow:         cfg.PaymentWindow,
			AppointmentWindow:     cfg.AppointmentWindow,
			ConfirmationWindow:    cfg.ConfirmationWindow,
		},
	}

	if cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, fee cache falls through to postgres", "err", err)
		}
		a.Core.Fees = cache.NewFees(a.rdb, a.Store.Repos().Fees, cfg.FeeCacheTTL, log)
		a.queue = worker.NewQueue(a.RedisOpt())
		a.Tasks = a.queue
	} else {
		a.wpool = worker.NewPool(cfg.Workers, 0)
		a.Tasks = worker.NewInline(a.wpool, a.Handlers)
	}
	a.Core.Tasks = a.Tasks
	return a, nil
}

func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: a.Cfg.RedisAddr, Password: a.Cfg.RedisPassword, DB: a.Cfg.RedisDB}
}

// Gateway returns the MoMo client, or nil when no partner code is configured.
func (a *App) Gateway() (momo.Gateway, momo.Config) {
	mc := momo.Config{
		Endpoint:    a.Cfg.MomoEndpoint,
		PartnerCode: a.Cfg.MomoPartnerCode,
		AccessKey:   a.Cfg.MomoAccessKey,
		SecretKey:   a.Cfg.MomoSecretKey,
		RedirectURL: a.Cfg.MomoRedirectURL,
		IPNURL:      a.Cfg.MomoIPNURL,
	}
	if mc.PartnerCode == "" {
		return nil, mc
	}
	return momo.NewClient(mc, nil), mc
}

// Close drains in-process tasks before closing connections.
func (a *App) Close() {
	if a.wpool != nil {
		a.wpool.Stop()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.Log.Warn("close task queue", "err", err)
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.Pool.Close()
}
