package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
	"github.com/baharkarakas/evtrade-backend/internal/storage"
)

// LifecycleService moves paid transactions through shipping, viewing
// appointments, disputes and completion, and expires missed deadlines.
type LifecycleService struct {
	*Core
	up         storage.Uploader
	sweepBatch int
}

func NewLifecycleService(c *Core, up storage.Uploader, sweepBatch int) *LifecycleService {
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	return &LifecycleService{Core: c, up: up, sweepBatch: sweepBatch}
}

// Evidence is one file attached to a dispute.
type Evidence struct {
	Name string
	Body io.Reader
}

func (s *LifecycleService) Get(ctx context.Context, txID, userID string, admin bool) (models.Transaction, error) {
	tx, err := s.Store.Repos().Transactions.GetByID(ctx, txID)
	if err != nil {
		return models.Transaction{}, err
	}
	if !admin && tx.BuyerID != userID && tx.SellerID != userID {
		return models.Transaction{}, apperr.NotFound("transaction not found")
	}
	return tx, nil
}

func (s *LifecycleService) ListMine(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.Repos().Transactions.ListByUser(ctx, userID, limit, offset)
}

// transition runs fn on the locked transaction after checking who may act on it.
func (s *LifecycleService) transition(ctx context.Context, kind, txID string, fn func(r repo.Repos, tx *models.Transaction) error) (models.Transaction, error) {
	var tx models.Transaction
	err := settled(kind, s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		tx, err = lockTx(ctx, r, txID)
		if err != nil {
			return err
		}
		return fn(r, &tx)
	}))
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func sellerOf(tx models.Transaction, userID string) error {
	if tx.SellerID != userID {
		return apperr.Forbidden("only the seller can do this")
	}
	return nil
}

func buyerOf(tx models.Transaction, userID string) error {
	if tx.BuyerID != userID {
		return apperr.Forbidden("only the buyer can do this")
	}
	return nil
}

func wrongState(action string, st models.TransactionStatus) error {
	return apperr.BadRequest(fmt.Sprintf("cannot %s a %s transaction", action, st))
}

// ScheduleAppointment fixes the viewing of a vehicle whose deposit is paid.
func (s *LifecycleService) ScheduleAppointment(ctx context.Context, txID, sellerID string, when time.Time, location string) (models.Appointment, error) {
	if strings.TrimSpace(location) == "" {
		return models.Appointment{}, apperr.BadRequest("location is required")
	}
	var appt models.Appointment
	_, err := s.transition(ctx, "appointment", txID, func(r repo.Repos, tx *models.Transaction) error {
		if err := sellerOf(*tx, sellerID); err != nil {
			return err
		}
		if tx.Status != models.TxnDepositPaid {
			return wrongState("schedule an appointment for", tx.Status)
		}
		if tx.AppointmentDeadline != nil && s.now().After(*tx.AppointmentDeadline) {
			return apperr.BadRequest("appointment deadline has passed")
		}
		if !when.After(s.now()) {
			return apperr.BadRequest("appointment must be in the future")
		}
		var err error
		appt, err = r.Appointments.GetByTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		appt.ScheduledAt = &when
		appt.Location = location
		if err := r.Appointments.Update(ctx, appt); err != nil {
			return err
		}
		return s.setStatus(ctx, r, tx, models.TxnAppointmentScheduled, sellerID)
	})
	if err != nil {
		return models.Appointment{}, err
	}
	return appt, nil
}

// Ship marks a paid transaction as handed over and starts the buyer's
// confirmation window.
func (s *LifecycleService) Ship(ctx context.Context, txID, sellerID string) (models.Transaction, error) {
	return s.transition(ctx, "ship", txID, func(r repo.Repos, tx *models.Transaction) error {
		if err := sellerOf(*tx, sellerID); err != nil {
			return err
		}
		if tx.Status != models.TxnPaid || tx.IsParent() {
			return wrongState("ship", tx.Status)
		}
		tx.ConfirmationDeadline = at(s.now().Add(s.Policy.ConfirmationWindow))
		return s.setStatus(ctx, r, tx, models.TxnShipped, sellerID)
	})
}

// ConfirmReceipt completes a shipped transaction on the buyer's word.
func (s *LifecycleService) ConfirmReceipt(ctx context.Context, txID, buyerID string) (models.Transaction, error) {
	tx, err := s.transition(ctx, "completion", txID, func(r repo.Repos, tx *models.Transaction) error {
		if err := buyerOf(*tx, buyerID); err != nil {
			return err
		}
		if tx.Status != models.TxnShipped {
			return wrongState("confirm", tx.Status)
		}
		return s.complete(ctx, r, tx, buyerID)
	})
	if err == nil {
		s.completed(ctx, tx)
	}
	return tx, err
}

// Complete is the operator's completion of a shipped or paid transaction.
func (s *LifecycleService) Complete(ctx context.Context, txID, adminID string) (models.Transaction, error) {
	tx, err := s.transition(ctx, "completion", txID, func(r repo.Repos, tx *models.Transaction) error {
		return s.complete(ctx, r, tx, adminID)
	})
	if err == nil {
		s.completed(ctx, tx)
	}
	return tx, err
}

func (s *LifecycleService) completed(ctx context.Context, tx models.Transaction) {
	text := fmt.Sprintf("transaction %s completed", tx.ID)
	s.notify(ctx, tx.SellerID, notify.EventCompleted, tx.ID, text)
	s.notify(ctx, tx.BuyerID, notify.EventCompleted, tx.ID, text)
}

// Dispute freezes a shipped transaction before its confirmation deadline.
// Evidence files are stored first; the escrow stays locked until an operator
// resolves the dispute.
func (s *LifecycleService) Dispute(ctx context.Context, txID, buyerID, reason string, evidence []Evidence) (models.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Transaction{}, apperr.BadRequest("reason is required")
	}
	cur, err := s.Store.Repos().Transactions.GetByID(ctx, txID)
	if err != nil {
		return models.Transaction{}, err
	}
	if err := s.disputable(cur, buyerID); err != nil {
		return models.Transaction{}, err
	}

	urls := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		if s.up == nil {
			return models.Transaction{}, apperr.BadRequest("evidence uploads are not available")
		}
		url, err := s.up.Upload(ctx, "disputes/"+txID, ev.Name, ev.Body)
		if err != nil {
			return models.Transaction{}, apperr.Internal("upload evidence", err)
		}
		urls = append(urls, url)
	}

	return s.transition(ctx, "dispute", txID, func(r repo.Repos, tx *models.Transaction) error {
		if err := s.disputable(*tx, buyerID); err != nil {
			return err
		}
		now := s.now()
		tx.DisputeReason = &reason
		tx.DisputeEvidence = urls
		tx.DisputedAt = &now
		return s.setStatus(ctx, r, tx, models.TxnDisputed, buyerID)
	})
}

func (s *LifecycleService) disputable(tx models.Transaction, buyerID string) error {
	if err := buyerOf(tx, buyerID); err != nil {
		return err
	}
	if tx.Status != models.TxnShipped {
		return wrongState("dispute", tx.Status)
	}
	if tx.ConfirmationDeadline != nil && s.now().After(*tx.ConfirmationDeadline) {
		return apperr.BadRequest("confirmation deadline has passed")
	}
	return nil
}

// RejectVehiclePurchase lets the buyer walk away after the viewing. The
// deposit comes back from the seller's escrow and the vehicle is listed again.
func (s *LifecycleService) RejectVehiclePurchase(ctx context.Context, txID, buyerID, reason string) (models.Transaction, error) {
	tx, err := s.transition(ctx, "refund", txID, func(r repo.Repos, tx *models.Transaction) error {
		if err := buyerOf(*tx, buyerID); err != nil {
			return err
		}
		if !tx.IsVehicle() || tx.Status != models.TxnAppointmentScheduled {
			return wrongState("reject", tx.Status)
		}
		if err := s.refundEscrow(ctx, r, tx, buyerID, "vehicle purchase rejected"); err != nil {
			return err
		}
		if reason != "" {
			if err := audit(ctx, r, "transaction", tx.ID, buyerID, "rejected", map[string]any{"reason": reason}); err != nil {
				return err
			}
		}
		return s.setStatus(ctx, r, tx, models.TxnRejected, buyerID)
	})
	if err == nil {
		s.notify(ctx, tx.SellerID, notify.EventCancelled, tx.ID, fmt.Sprintf("buyer rejected transaction %s", tx.ID))
	}
	return tx, err
}

// refundEscrow returns what the buyer paid from the seller's locked balance
// and puts the listing back on sale.
func (s *LifecycleService) refundEscrow(ctx context.Context, r repo.Repos, tx *models.Transaction, actor, why string) error {
	if tx.PaidAmount > 0 {
		if err := s.Ledger.RefundLocked(ctx, r, tx.SellerID, tx.BuyerID, tx.PaidAmount,
			ledger.Memo{Description: why + ": " + tx.ID}); err != nil {
			return err
		}
		tx.PaidAmount = 0
	}
	for _, ref := range tx.Listings() {
		if _, err := lockListing(ctx, r, ref); err != nil {
			return err
		}
		if err := s.setListing(ctx, r, ref, models.ListingAvailable, actor); err != nil {
			return err
		}
	}
	return nil
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Cancelled      int `json:"cancelled"`
	Refunded       int `json:"refunded"`
	Completed      int `json:"completed"`
	AuctionsClosed int `json:"auctions_closed"`
	Failed         int `json:"failed"`
}

// SweepExpired applies every missed deadline: unpaid transactions are
// cancelled, vehicle deposits without a viewing are refunded, shipped goods
// nobody disputed are completed and ended auctions are closed. Each item is
// its own unit of work and re-checks its deadline under the lock, so
// concurrent sweeps and user actions are safe.
func (s *LifecycleService) SweepExpired(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := s.now()

	// Pages never revisit an id, so transactions that keep failing cannot
	// hold back later deadlines.
	var visited []string
	for {
		expired, err := s.Store.Repos().Transactions.ListExpired(ctx, now, visited, s.sweepBatch)
		if err != nil {
			return rep, err
		}
		for _, t := range expired {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			visited = append(visited, t.ID)
			kind, tx, err := s.expire(ctx, t.ID, now)
			if err != nil {
				rep.Failed++
				s.Log.Error("sweep: expire transaction", "tx_id", t.ID, "status", t.Status, "err", err)
				continue
			}
			switch kind {
			case "cancel":
				rep.Cancelled++
				s.notify(ctx, tx.BuyerID, notify.EventCancelled, tx.ID, fmt.Sprintf("transaction %s expired unpaid", tx.ID))
			case "refund":
				rep.Refunded++
				s.notify(ctx, tx.BuyerID, notify.EventCancelled, tx.ID, fmt.Sprintf("transaction %s cancelled, deposit refunded", tx.ID))
			case "completion":
				rep.Completed++
				s.completed(ctx, tx)
			}
		}
		if len(expired) < s.sweepBatch {
			break
		}
	}

	ended, err := s.Store.Repos().Listings.ListEndedAuctions(ctx, now, s.sweepBatch)
	if err != nil {
		return rep, err
	}
	for _, l := range ended {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		var won *models.Transaction
		err := s.Store.WithTx(ctx, func(r repo.Repos) error {
			var err error
			won, err = s.closeAuction(ctx, r, l.Ref, "")
			return err
		})
		if err != nil {
			rep.Failed++
			s.Log.Error("sweep: close auction", "listing", l.Ref.String(), "err", err)
			continue
		}
		rep.AuctionsClosed++
		if won == nil {
			metrics.AuctionsClosed.WithLabelValues("no_bids").Inc()
			continue
		}
		metrics.AuctionsClosed.WithLabelValues("won").Inc()
		s.notify(ctx, won.BuyerID, notify.EventAuctionWon, won.ID,
			fmt.Sprintf("you won %s for %d", l.Ref, won.FinalPrice))
	}

	if rep != (SweepReport{}) {
		s.Log.Info("sweep done", "cancelled", rep.Cancelled, "refunded", rep.Refunded,
			"completed", rep.Completed, "auctions_closed", rep.AuctionsClosed, "failed", rep.Failed)
	}
	return rep, nil
}

// expire applies the deadline of one transaction. kind is empty when the
// transaction moved on since it was listed.
func (s *LifecycleService) expire(ctx context.Context, txID string, now time.Time) (string, models.Transaction, error) {
	var kind string
	var tx models.Transaction
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		tx, err = lockTx(ctx, r, txID)
		if err != nil {
			return err
		}
		switch {
		case tx.ParentID != nil && tx.Status == models.TxnPending:
			// expires with its cart
		case tx.Status == models.TxnPending && past(tx.PaymentDeadline, now):
			kind = "cancel"
			return s.cancelUnpaid(ctx, r, &tx)
		case tx.Status == models.TxnDepositPaid && past(tx.AppointmentDeadline, now):
			kind = "refund"
			if err := s.refundEscrow(ctx, r, &tx, "", "appointment deadline missed"); err != nil {
				return err
			}
			return s.setStatus(ctx, r, &tx, models.TxnCancelled, "")
		case tx.Status == models.TxnShipped && past(tx.ConfirmationDeadline, now):
			kind = "completion"
			return s.complete(ctx, r, &tx, "")
		}
		return nil
	})
	if kind != "" {
		err = settled(kind, err)
	}
	return kind, tx, err
}

func past(deadline *time.Time, now time.Time) bool {
	return deadline != nil && deadline.Before(now)
}

// cancelUnpaid cancels a PENDING transaction. An auction win also gives the
// winner's deposit back and delists the listing; a cart cancels its parts.
func (s *LifecycleService) cancelUnpaid(ctx context.Context, r repo.Repos, tx *models.Transaction) error {
	if tx.IsParent() {
		children, err := r.Transactions.ListChildren(ctx, tx.ID)
		if err != nil {
			return err
		}
		for i := range children {
			if children[i].Status != models.TxnPending {
				continue
			}
			if err := s.setStatus(ctx, r, &children[i], models.TxnCancelled, ""); err != nil {
				return err
			}
		}
	}
	if tx.Type == models.TxnAuction && tx.Listing != nil {
		l, err := lockListing(ctx, r, *tx.Listing)
		if err != nil {
			return err
		}
		if err := s.returnWinnerDeposit(ctx, r, tx.BuyerID, l); err != nil {
			return err
		}
		if l.Status == models.ListingReserved {
			if err := s.setListing(ctx, r, l.Ref, models.ListingDelisted, ""); err != nil {
				return err
			}
		}
	}
	return s.setStatus(ctx, r, tx, models.TxnCancelled, "")
}
