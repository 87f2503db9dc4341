package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	"github.com/baharkarakas/evtrade-backend/internal/payment/momo"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

// Outcome is what a gateway callback did.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeRejected     Outcome = "rejected"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeCredited     Outcome = "credited"
	OutcomeUnknown      Outcome = "unknown"
	OutcomeBadSignature Outcome = "bad_signature"
)

// Callback is a verified gateway result.
type Callback struct {
	OrderID string
	Amount  int64
	Success bool
	TransID string
}

type ReconciliationService struct {
	*Core
	momo momo.Config
}

func NewReconciliationService(c *Core, cfg momo.Config) *ReconciliationService {
	return &ReconciliationService{Core: c, momo: cfg}
}

// HandleIPN verifies a MoMo IPN and applies it. A bad signature is reported
// as OutcomeBadSignature with a nil error so the caller still answers the
// gateway with a success-shaped response.
func (s *ReconciliationService) HandleIPN(ctx context.Context, p momo.IPN) (Outcome, error) {
	if !momo.VerifyIPN(s.momo, p) {
		s.Log.Warn("momo ipn: bad signature", "order_id", p.OrderID)
		metrics.CallbacksTotal.WithLabelValues(string(OutcomeBadSignature)).Inc()
		return OutcomeBadSignature, nil
	}
	return s.HandleCallback(ctx, Callback{
		OrderID: p.OrderID,
		Amount:  p.Amount,
		Success: p.Succeeded(),
		TransID: p.TransIDString(),
	})
}

// HandleCallback applies a gateway result to whatever orderId names: a
// vehicle remainder when its reference carries RemainderSuffix, else a purchase
// transaction, else a wallet top-up. Replays of a booked gateway transaction
// are no-ops. A captured payment the transaction can no longer take is
// credited to the buyer's wallet.
func (s *ReconciliationService) HandleCallback(ctx context.Context, cb Callback) (Outcome, error) {
	out, err := s.route(ctx, cb)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("error").Inc()
		s.Log.Error("gateway callback", "order_id", cb.OrderID, "err", err)
		return out, err
	}
	metrics.CallbacksTotal.WithLabelValues(string(out)).Inc()
	s.Log.Info("gateway callback", "order_id", cb.OrderID, "success", cb.Success, "outcome", string(out))
	return out, nil
}

func (s *ReconciliationService) route(ctx context.Context, cb Callback) (Outcome, error) {
	ref := OrderRef(cb.OrderID)
	if ref == "" {
		return OutcomeUnknown, nil
	}
	if id, ok := strings.CutSuffix(ref, RemainderSuffix); ok {
		if !s.exists(ctx, func(r repo.Repos) error { _, err := r.Transactions.GetByID(ctx, id); return err }) {
			return OutcomeUnknown, nil
		}
		return s.remainder(ctx, id, cb)
	}
	if s.exists(ctx, func(r repo.Repos) error { _, err := r.Transactions.GetByID(ctx, ref); return err }) {
		return s.purchase(ctx, ref, cb)
	}
	if s.exists(ctx, func(r repo.Repos) error { _, err := r.Ledger.GetByID(ctx, ref); return err }) {
		return s.topUp(ctx, ref, cb)
	}
	return OutcomeUnknown, nil
}

// exists looks an id up outside any unit of work; a failed statement inside one
// would abort it.
func (s *ReconciliationService) exists(ctx context.Context, get func(r repo.Repos) error) bool {
	err := get(s.Store.Repos())
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		s.Log.Warn("gateway callback: lookup", "err", err)
	}
	return err == nil
}

func (s *ReconciliationService) memo(cb Callback) ledger.Memo {
	id := cb.TransID
	return ledger.Memo{Description: "momo payment " + cb.OrderID, Gateway: models.GatewayMomo, GatewayTransID: &id}
}

func (s *ReconciliationService) purchase(ctx context.Context, txID string, cb Callback) (Outcome, error) {
	if !cb.Success {
		return OutcomeIgnored, nil
	}
	var (
		tx  models.Transaction
		out = OutcomeApplied
	)
	err := settled("payment", s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		tx, err = lockTx(ctx, r, txID)
		if err != nil {
			return err
		}
		seen, err := s.seen(ctx, r, tx, models.TxnPending, cb)
		if err != nil || seen {
			out = OutcomeDuplicate
			return err
		}
		if tx.Status != models.TxnPending || cb.Amount != tx.AmountDue {
			if cb.TransID == "" {
				out = OutcomeRejected
				return nil
			}
			out = OutcomeCredited
			return s.keep(ctx, r, &tx, cb)
		}
		m := s.memo(cb)
		if err := s.Ledger.Credit(ctx, r, tx.BuyerID, cb.Amount, models.FinTxDeposit, m); err != nil {
			return err
		}
		return s.pay(ctx, r, &tx, m)
	}))
	if err != nil {
		if (apperr.Is(err, apperr.KindConflict) && !apperr.Retryable(err)) || apperr.Is(err, apperr.KindBadRequest) {
			// The money was captured but the purchase can no longer go through.
			return s.creditInstead(ctx, txID, cb)
		}
		return "", err
	}
	switch out {
	case OutcomeApplied:
		s.afterPayment(ctx, tx, paidEvent(tx))
	case OutcomeCredited:
		s.notifyCredited(ctx, tx, cb)
	}
	return out, nil
}

// seen reports whether the gateway transaction was already booked, either on
// tx itself or as a ledger entry. A success without a transaction id cannot
// be told apart from a replay once tx has left the status that awaits it.
func (s *ReconciliationService) seen(ctx context.Context, r repo.Repos, tx models.Transaction, awaiting models.TransactionStatus, cb Callback) (bool, error) {
	if cb.TransID == "" {
		return tx.Status != awaiting, nil
	}
	if tx.GatewayTransID != nil && *tx.GatewayTransID == cb.TransID {
		return true, nil
	}
	ft, err := r.Ledger.FindByGatewayTransID(ctx, models.GatewayMomo, cb.TransID)
	return ft != nil, err
}

// keep credits a captured payment to the buyer's wallet when the transaction
// it was meant for can no longer take it.
func (s *ReconciliationService) keep(ctx context.Context, r repo.Repos, tx *models.Transaction, cb Callback) error {
	if err := s.Ledger.Credit(ctx, r, tx.BuyerID, cb.Amount, models.FinTxDeposit, s.memo(cb)); err != nil {
		return err
	}
	if tx.GatewayTransID == nil {
		id := cb.TransID
		tx.GatewayTransID = &id
		if err := r.Transactions.Update(ctx, *tx); err != nil {
			return err
		}
	}
	return audit(ctx, r, "transaction", tx.ID, "", "gateway_payment_credited",
		map[string]any{"amount": cb.Amount, "trans_id": cb.TransID, "status": string(tx.Status)})
}

// creditInstead runs keep in a fresh unit of work after the payment itself
// was refused.
func (s *ReconciliationService) creditInstead(ctx context.Context, txID string, cb Callback) (Outcome, error) {
	if cb.TransID == "" {
		return OutcomeRejected, nil
	}
	out := OutcomeCredited
	var tx models.Transaction
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		tx, err = lockTx(ctx, r, txID)
		if err != nil {
			return err
		}
		seen, err := s.seen(ctx, r, tx, tx.Status, cb)
		if err != nil || seen {
			out = OutcomeDuplicate
			return err
		}
		return s.keep(ctx, r, &tx, cb)
	})
	if err != nil {
		return "", err
	}
	if out == OutcomeCredited {
		s.notifyCredited(ctx, tx, cb)
	}
	return out, nil
}

func (s *ReconciliationService) notifyCredited(ctx context.Context, tx models.Transaction, cb Callback) {
	s.Log.Warn("gateway payment credited to wallet", "tx_id", tx.ID, "status", string(tx.Status), "amount", cb.Amount)
	s.notify(ctx, tx.BuyerID, notify.EventTopUpCompleted, tx.ID,
		fmt.Sprintf("payment of %d for transaction %s was credited to your wallet", cb.Amount, tx.ID))
}

func (s *ReconciliationService) remainder(ctx context.Context, txID string, cb Callback) (Outcome, error) {
	if !cb.Success {
		return OutcomeIgnored, nil
	}
	var (
		tx  models.Transaction
		out = OutcomeApplied
	)
	err := settled("remainder", s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		tx, err = lockTx(ctx, r, txID)
		if err != nil {
			return err
		}
		seen, err := s.seen(ctx, r, tx, models.TxnAppointmentScheduled, cb)
		if err != nil || seen {
			out = OutcomeDuplicate
			return err
		}
		if tx.Status != models.TxnAppointmentScheduled || cb.Amount != tx.Outstanding() {
			if cb.TransID == "" {
				out = OutcomeRejected
				return nil
			}
			out = OutcomeCredited
			return s.keep(ctx, r, &tx, cb)
		}
		m := s.memo(cb)
		if err := s.Ledger.Credit(ctx, r, tx.BuyerID, cb.Amount, models.FinTxDeposit, m); err != nil {
			return err
		}
		return s.payRemainder(ctx, r, &tx, m)
	}))
	if err != nil {
		if (apperr.Is(err, apperr.KindConflict) && !apperr.Retryable(err)) || apperr.Is(err, apperr.KindBadRequest) {
			return s.creditInstead(ctx, txID, cb)
		}
		return "", err
	}
	switch out {
	case OutcomeApplied:
		text := fmt.Sprintf("transaction %s completed", tx.ID)
		s.notify(ctx, tx.SellerID, notify.EventCompleted, tx.ID, text)
		s.notify(ctx, tx.BuyerID, notify.EventCompleted, tx.ID, text)
	case OutcomeCredited:
		s.notifyCredited(ctx, tx, cb)
	}
	return out, nil
}

func (s *ReconciliationService) topUp(ctx context.Context, depositID string, cb Callback) (Outcome, error) {
	var (
		out    = OutcomeApplied
		userID string
	)
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		ft, err := r.Ledger.GetForUpdate(ctx, depositID)
		if err != nil {
			return err
		}
		if ft.Type != models.FinTxDeposit || ft.Status != models.FinTxPending {
			out = OutcomeDuplicate
			return nil
		}
		id := cb.TransID
		if !cb.Success {
			out = OutcomeCancelled
			return s.Ledger.CancelDeposit(ctx, r, ft, &id)
		}
		if cb.Amount != ft.Amount {
			out = OutcomeRejected
			return nil
		}
		if err := s.Ledger.CompleteDeposit(ctx, r, ft, &id); err != nil {
			return err
		}
		w, err := r.Wallets.GetByIDForUpdate(ctx, ft.WalletID)
		if err != nil {
			return err
		}
		userID = w.UserID
		return nil
	})
	if err != nil {
		return "", err
	}
	if out == OutcomeApplied {
		s.notify(ctx, userID, notify.EventTopUpCompleted, "", fmt.Sprintf("wallet topped up with %d", cb.Amount))
	}
	return out, nil
}
