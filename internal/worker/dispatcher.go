package worker

import (
	"context"
	"errors"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/notify"
	"github.com/hibiken/asynq"
)

// Dispatcher hands post-settlement work off after the settlement commits.
// Errors mean the work was not queued; the settlement itself stands.
type Dispatcher interface {
	GenerateContract(ctx context.Context, txID string) error
	Notify(ctx context.Context, m notify.Message) error
}

// Queue enqueues tasks on Redis through asynq for cmd/worker to run.
type Queue struct {
	client *asynq.Client
}

var _ Dispatcher = (*Queue)(nil)

func NewQueue(opt asynq.RedisClientOpt) *Queue {
	return &Queue{client: asynq.NewClient(opt)}
}

func (q *Queue) GenerateContract(ctx context.Context, txID string) error {
	t, err := NewContractTask(txID)
	if err != nil {
		return err
	}
	// one contract task per transaction at a time
	_, err = q.client.EnqueueContext(ctx, t, asynq.TaskID("contract:"+txID))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (q *Queue) Notify(ctx context.Context, m notify.Message) error {
	t, err := NewNotifyTask(m)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, t)
	return err
}

func (q *Queue) Close() error { return q.client.Close() }

// Inline runs the same handlers on the in-process pool. Used when no Redis is configured.
type Inline struct {
	pool    *Pool
	h       *Handlers
	timeout time.Duration
}

var _ Dispatcher = (*Inline)(nil)

func NewInline(pool *Pool, h *Handlers) *Inline {
	return &Inline{pool: pool, h: h, timeout: time.Minute}
}

func (d *Inline) run(name string, f func(ctx context.Context) error) error {
	return d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := f(ctx); err != nil {
			d.h.Log.Error("task failed", "type", name, "err", err)
		}
	})
}

func (d *Inline) GenerateContract(_ context.Context, txID string) error {
	return d.run(TypeGenerateContract, func(ctx context.Context) error { return d.h.generateContract(ctx, txID) })
}

func (d *Inline) Notify(_ context.Context, m notify.Message) error {
	return d.run(TypeNotify, func(ctx context.Context) error { return d.h.notify(ctx, m) })
}
