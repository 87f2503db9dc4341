package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	"github.com/hibiken/asynq"
)

const (
	TypeGenerateContract = "contract:generate"
	TypeNotify           = "notify:send"
)

type ContractPayload struct {
	TransactionID string `json:"transaction_id"`
}

func NewContractTask(txID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ContractPayload{TransactionID: txID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerateContract, payload, asynq.MaxRetry(10), asynq.Timeout(time.Minute)), nil
}

func NewNotifyTask(m notify.Message) (*asynq.Task, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotify, payload, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

type ContractGenerator interface {
	Generate(ctx context.Context, txID string) (string, error)
}

// Handlers executes post-settlement tasks. Both are safe to run more than once.
type Handlers struct {
	Contracts ContractGenerator
	Notifier  notify.Notifier
	Log       *slog.Logger
}

func (h *Handlers) generateContract(ctx context.Context, txID string) error {
	url, err := h.Contracts.Generate(ctx, txID)
	if err != nil {
		metrics.TasksTotal.WithLabelValues(TypeGenerateContract, "error").Inc()
		return err
	}
	metrics.TasksTotal.WithLabelValues(TypeGenerateContract, "ok").Inc()
	h.Log.Info("contract generated", "tx_id", txID, "url", url)
	return nil
}

func (h *Handlers) notify(ctx context.Context, m notify.Message) error {
	if err := h.Notifier.Notify(ctx, m); err != nil {
		metrics.TasksTotal.WithLabelValues(TypeNotify, "error").Inc()
		return err
	}
	metrics.TasksTotal.WithLabelValues(TypeNotify, "ok").Inc()
	return nil
}

func (h *Handlers) HandleContractTask(ctx context.Context, t *asynq.Task) error {
	var p ContractPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return h.generateContract(ctx, p.TransactionID)
}

func (h *Handlers) HandleNotifyTask(ctx context.Context, t *asynq.Task) error {
	var m notify.Message
	if err := json.Unmarshal(t.Payload(), &m); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return h.notify(ctx, m)
}

// Register mounts the task handlers on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeGenerateContract, h.HandleContractTask)
	mux.HandleFunc(TypeNotify, h.HandleNotifyTask)
}
