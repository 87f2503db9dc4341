// Package notify tells buyers and sellers about settlement events.
package notify

import (
	"context"
	"log/slog"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

const (
	EventPaid            = "transaction.paid"
	EventDepositPaid     = "transaction.deposit_paid"
	EventCompleted       = "transaction.completed"
	EventCancelled       = "transaction.cancelled"
	EventAuctionWon      = "auction.won"
	EventDepositReturned = "auction.deposit_returned"
	EventTopUpCompleted  = "wallet.topup_completed"
)

type Message struct {
	UserID        string `json:"user_id"`
	Event         string `json:"event"`
	TransactionID string `json:"transaction_id,omitempty"`
	Text          string `json:"text"`
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// LogNotifier records notifications as log lines and audit rows. Mail and
// push delivery plug in behind Notifier.
type LogNotifier struct {
	audit repo.AuditLogs
	log   *slog.Logger
}

func NewLogNotifier(audit repo.AuditLogs, log *slog.Logger) *LogNotifier {
	return &LogNotifier{audit: audit, log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, m Message) error {
	n.log.Info("notification", "user_id", m.UserID, "event", m.Event, "tx_id", m.TransactionID, "text", m.Text)
	uid := m.UserID
	return n.audit.Create(ctx, models.AuditLog{
		EntityType: "notification",
		EntityID:   &uid,
		Action:     m.Event,
		Details:    map[string]any{"text": m.Text, "transaction_id": m.TransactionID},
	})
}
