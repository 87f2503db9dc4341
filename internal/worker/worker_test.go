package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/evtrade-backend/internal/notify"
)

type mockContracts struct{ mock.Mock }

func (m *mockContracts) Generate(ctx context.Context, txID string) (string, error) {
	args := m.Called(ctx, txID)
	return args.String(0), args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func newHandlers() (*Handlers, *mockContracts, *mockNotifier) {
	c, n := &mockContracts{}, &mockNotifier{}
	return &Handlers{Contracts: c, Notifier: n, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}, c, n
}

func TestInline_RunsHandlersOnPool(t *testing.T) {
	h, c, n := newHandlers()
	msg := notify.Message{UserID: "u1", Event: notify.EventPaid, TransactionID: "t1"}
	c.On("Generate", mock.Anything, "t1").Return("http://files/t1.txt", nil).Once()
	n.On("Notify", mock.Anything, msg).Return(errors.New("smtp down")).Once()

	pool := NewPool(2, 8)
	d := NewInline(pool, h)
	require.NoError(t, d.GenerateContract(context.Background(), "t1"))
	require.NoError(t, d.Notify(context.Background(), msg), "handler failures are logged, not returned")
	pool.Stop()

	c.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestPool_Full(t *testing.T) {
	pool := NewPool(1, 1)
	block := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	require.NoError(t, pool.Submit(func() { started.Done(); <-block }))
	started.Wait()

	require.NoError(t, pool.Submit(func() {}))
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolFull)
	close(block)
	pool.Stop()
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(2, 4)
	ran := make(chan struct{}, 1)
	require.NoError(t, pool.Submit(func() { ran <- struct{}{} }))
	pool.Stop()
	<-ran

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
	pool.Stop()

	h, _, _ := newHandlers()
	d := NewInline(pool, h)
	assert.ErrorIs(t, d.Notify(context.Background(), notify.Message{UserID: "u1"}), ErrPoolClosed)
}

func TestTaskHandlers(t *testing.T) {
	h, c, n := newHandlers()
	c.On("Generate", mock.Anything, "t9").Return("u", nil).Once()
	msg := notify.Message{UserID: "u2", Event: notify.EventCompleted}
	n.On("Notify", mock.Anything, msg).Return(nil).Once()

	ct, err := NewContractTask("t9")
	require.NoError(t, err)
	assert.Equal(t, TypeGenerateContract, ct.Type())
	var p ContractPayload
	require.NoError(t, json.Unmarshal(ct.Payload(), &p))
	assert.Equal(t, "t9", p.TransactionID)
	require.NoError(t, h.HandleContractTask(context.Background(), ct))

	nt, err := NewNotifyTask(msg)
	require.NoError(t, err)
	require.NoError(t, h.HandleNotifyTask(context.Background(), nt))

	err = h.HandleContractTask(context.Background(), asynq.NewTask(TypeGenerateContract, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry, "malformed payloads are not retried")

	c.AssertExpectations(t)
	n.AssertExpectations(t)
}
