package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
	"github.com/baharkarakas/evtrade-backend/internal/worker"
	"github.com/google/uuid"
)

// RemainderSuffix marks gateway order ids that pay a vehicle's outstanding balance.
const RemainderSuffix = "_REMAINDER"

// AttemptSep joins a gateway order reference and the token that makes each
// payment attempt's order id unique. Neither uuids nor RemainderSuffix contain it.
const AttemptSep = "."

// attemptOrderID returns a fresh gateway order id for ref.
func attemptOrderID(ref string) string {
	return ref + AttemptSep + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// OrderRef strips the attempt token from a gateway order id.
func OrderRef(orderID string) string {
	ref, _, _ := strings.Cut(orderID, AttemptSep)
	return ref
}

type Policy struct {
	VehicleDepositPercent int64
	PaymentWindow         time.Duration
	AppointmentWindow     time.Duration
	ConfirmationWindow    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		VehicleDepositPercent: 10,
		PaymentWindow:         24 * time.Hour,
		AppointmentWindow:     7 * 24 * time.Hour,
		ConfirmationWindow:    24 * time.Hour,
	}
}

// Core holds what every settlement service shares. All balance changes go
// through Ledger and all listing/transaction status changes through the
// transition helpers below.
type Core struct {
	Store  repo.Store
	Ledger *ledger.Ledger
	// Fees overrides the store's fee repository, e.g. with the Redis cache.
	Fees   repo.Fees
	Tasks  worker.Dispatcher
	Log    *slog.Logger
	Now    func() time.Time
	Policy Policy
}

func (c *Core) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Core) fees(r repo.Repos) repo.Fees {
	if c.Fees != nil {
		return c.Fees
	}
	return r.Fees
}

func at(t time.Time) *time.Time { return &t }

// lockListing serializes everything that touches ref for the rest of the unit of work.
func lockListing(ctx context.Context, r repo.Repos, ref models.ListingRef) (models.Listing, error) {
	if err := r.Locks.Lock(ctx, "listing:"+ref.String()); err != nil {
		return models.Listing{}, err
	}
	return r.Listings.GetForUpdate(ctx, ref)
}

func lockTx(ctx context.Context, r repo.Repos, id string) (models.Transaction, error) {
	if err := r.Locks.Lock(ctx, "tx:"+id); err != nil {
		return models.Transaction{}, err
	}
	return r.Transactions.GetForUpdate(ctx, id)
}

func audit(ctx context.Context, r repo.Repos, entity, id, actor, action string, details map[string]any) error {
	l := models.AuditLog{EntityType: entity, EntityID: &id, Action: action, Details: details}
	if actor != "" {
		l.ActorID = &actor
	}
	return r.AuditLogs.Create(ctx, l)
}

func (c *Core) setStatus(ctx context.Context, r repo.Repos, tx *models.Transaction, to models.TransactionStatus, actor string) error {
	from := tx.Status
	tx.Status = to
	if err := r.Transactions.Update(ctx, *tx); err != nil {
		return err
	}
	return audit(ctx, r, "transaction", tx.ID, actor, "status_change",
		map[string]any{"from": string(from), "to": string(to)})
}

func (c *Core) setListing(ctx context.Context, r repo.Repos, ref models.ListingRef, to models.ListingStatus, actor string) error {
	if err := r.Listings.UpdateStatus(ctx, ref, to); err != nil {
		return err
	}
	return audit(ctx, r, "listing", ref.String(), actor, "status_change", map[string]any{"to": string(to)})
}

// vehicleDeposit is the share of a vehicle's price collected at checkout.
func (c *Core) vehicleDeposit(price int64) int64 {
	pct := c.Policy.VehicleDepositPercent
	if pct <= 0 || pct > 100 {
		pct = 10
	}
	return price * pct / 100
}

// pay runs the PENDING -> DEPOSIT_PAID|PAID transition on a locked transaction.
// The buyer's wallet must already hold tx.AmountDue; gateway payments credit it first.
func (c *Core) pay(ctx context.Context, r repo.Repos, tx *models.Transaction, m ledger.Memo) error {
	if tx.Status != models.TxnPending {
		return apperr.Conflict("transaction already processed")
	}
	if tx.IsParent() {
		return c.payParent(ctx, r, tx, m)
	}
	if tx.Listing == nil {
		return apperr.BadRequest("pay the cart transaction, not its parts")
	}

	listing, err := lockListing(ctx, r, *tx.Listing)
	if err != nil {
		return err
	}
	want := models.ListingAvailable
	if tx.Type == models.TxnAuction {
		want = models.ListingReserved
	}
	if listing.Status != want {
		return apperr.Conflict("listing is no longer available")
	}

	if tx.Type == models.TxnAuction {
		if err := c.returnWinnerDeposit(ctx, r, tx.BuyerID, listing); err != nil {
			return err
		}
	}

	memo := m
	memo.Description = fmt.Sprintf("payment for %s", tx.Listing)
	if err := c.Ledger.Debit(ctx, r, tx.BuyerID, tx.AmountDue, models.FinTxPurchase, memo); err != nil {
		return err
	}
	if err := c.Ledger.Lock(ctx, r, tx.SellerID, tx.AmountDue, ledger.Memo{Description: "escrow hold for transaction " + tx.ID}); err != nil {
		return err
	}
	tx.PaidAmount += tx.AmountDue
	tx.GatewayTransID = m.GatewayTransID

	if tx.IsVehicle() && tx.Type == models.TxnSale {
		deadline := c.now().Add(c.Policy.AppointmentWindow)
		if _, err := r.Appointments.Create(ctx, models.Appointment{
			TransactionID: tx.ID,
			BuyerID:       tx.BuyerID,
			SellerID:      tx.SellerID,
			Deadline:      deadline,
		}); err != nil {
			return err
		}
		tx.AppointmentDeadline = &deadline
		if err := c.setListing(ctx, r, listing.Ref, models.ListingReserved, tx.BuyerID); err != nil {
			return err
		}
		return c.setStatus(ctx, r, tx, models.TxnDepositPaid, tx.BuyerID)
	}

	if err := c.setListing(ctx, r, listing.Ref, models.ListingSold, tx.BuyerID); err != nil {
		return err
	}
	return c.setStatus(ctx, r, tx, models.TxnPaid, tx.BuyerID)
}

// payParent settles a cart: one debit for the total, one escrow hold per seller.
func (c *Core) payParent(ctx context.Context, r repo.Repos, parent *models.Transaction, m ledger.Memo) error {
	children, err := r.Transactions.ListChildren(ctx, parent.ID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return apperr.Internal("cart transaction has no parts", nil)
	}
	for _, child := range children {
		for _, ref := range child.Listings() {
			l, err := lockListing(ctx, r, ref)
			if err != nil {
				return err
			}
			if l.Status != models.ListingAvailable {
				return apperr.Conflict(fmt.Sprintf("listing %s is no longer available", ref))
			}
		}
	}

	memo := m
	memo.Description = "payment for cart " + parent.ID
	if err := c.Ledger.Debit(ctx, r, parent.BuyerID, parent.AmountDue, models.FinTxPurchase, memo); err != nil {
		return err
	}
	for i := range children {
		child := &children[i]
		if child.Status != models.TxnPending {
			return apperr.Conflict("transaction already processed")
		}
		if err := c.Ledger.Lock(ctx, r, child.SellerID, child.AmountDue, ledger.Memo{Description: "escrow hold for transaction " + child.ID}); err != nil {
			return err
		}
		for _, ref := range child.Listings() {
			if err := c.setListing(ctx, r, ref, models.ListingSold, parent.BuyerID); err != nil {
				return err
			}
		}
		child.PaidAmount = child.AmountDue
		child.GatewayTransID = m.GatewayTransID
		if err := c.setStatus(ctx, r, child, models.TxnPaid, parent.BuyerID); err != nil {
			return err
		}
	}
	parent.PaidAmount = parent.AmountDue
	parent.GatewayTransID = m.GatewayTransID
	return c.setStatus(ctx, r, parent, models.TxnPaid, parent.BuyerID)
}

// returnWinnerDeposit releases an auction winner's bid deposit back to
// available so the full price can be debited.
func (c *Core) returnWinnerDeposit(ctx context.Context, r repo.Repos, buyerID string, listing models.Listing) error {
	dep, err := r.Deposits.Get(ctx, listing.Ref, buyerID)
	if err != nil || dep == nil || dep.Status != models.DepositPaid {
		return err
	}
	if err := c.Ledger.Unhold(ctx, r, buyerID, dep.Amount, ledger.Memo{Description: "auction deposit returned for " + listing.Ref.String()}); err != nil {
		return err
	}
	return r.Deposits.UpdateStatus(ctx, dep.ID, models.DepositRefunded)
}

// payRemainder collects a vehicle's outstanding balance and completes the sale.
func (c *Core) payRemainder(ctx context.Context, r repo.Repos, tx *models.Transaction, m ledger.Memo) error {
	if err := remainderDue(*tx); err != nil {
		return err
	}
	due := tx.Outstanding()
	memo := m
	memo.Description = fmt.Sprintf("remaining payment for %s", tx.Listing)
	if err := c.Ledger.Debit(ctx, r, tx.BuyerID, due, models.FinTxPurchase, memo); err != nil {
		return err
	}
	if err := c.Ledger.Lock(ctx, r, tx.SellerID, due, ledger.Memo{Description: "escrow hold for transaction " + tx.ID}); err != nil {
		return err
	}
	tx.PaidAmount += due
	if m.GatewayTransID != nil {
		tx.GatewayTransID = m.GatewayTransID
	}
	if err := c.setStatus(ctx, r, tx, models.TxnPaid, tx.BuyerID); err != nil {
		return err
	}
	return c.complete(ctx, r, tx, tx.BuyerID)
}

func remainderDue(tx models.Transaction) error {
	if !tx.IsVehicle() {
		return apperr.BadRequest("only vehicle purchases have a remaining balance")
	}
	switch tx.Status {
	case models.TxnAppointmentScheduled:
	case models.TxnPaid, models.TxnCompleted:
		return apperr.Conflict("transaction already paid")
	default:
		return apperr.BadRequest(fmt.Sprintf("cannot pay the remainder of a %s transaction", tx.Status))
	}
	if tx.Outstanding() <= 0 {
		return apperr.Conflict("transaction already paid")
	}
	return nil
}

// complete releases the escrow to the seller less commission and marks the
// transaction COMPLETED. The commission is charged on the full final price.
func (c *Core) complete(ctx context.Context, r repo.Repos, tx *models.Transaction, actor string) error {
	if tx.Status != models.TxnShipped && tx.Status != models.TxnPaid {
		return apperr.BadRequest(fmt.Sprintf("cannot complete a %s transaction", tx.Status))
	}
	if tx.IsParent() {
		return apperr.BadRequest("complete each seller's transaction instead of the cart")
	}
	if tx.PaidAmount != tx.FinalPrice {
		return apperr.BadRequest("transaction is not fully paid")
	}

	fee, err := c.fees(r).GetBySaleType(ctx, tx.SaleType())
	if err != nil {
		return err
	}
	commission := fee.Commission(tx.FinalPrice)
	if err := c.Ledger.Release(ctx, r, tx.SellerID, tx.FinalPrice, commission,
		ledger.Memo{Description: "sale proceeds for transaction " + tx.ID}); err != nil {
		return err
	}
	for _, ref := range tx.Listings() {
		l, err := r.Listings.Get(ctx, ref)
		if err != nil {
			return err
		}
		if l.Status != models.ListingSold {
			if err := c.setListing(ctx, r, ref, models.ListingSold, actor); err != nil {
				return err
			}
		}
	}
	if err := c.setStatus(ctx, r, tx, models.TxnCompleted, actor); err != nil {
		return err
	}
	if tx.ParentID != nil {
		return c.completeParentIfDone(ctx, r, *tx.ParentID, actor)
	}
	return nil
}

func (c *Core) completeParentIfDone(ctx context.Context, r repo.Repos, parentID, actor string) error {
	children, err := r.Transactions.ListChildren(ctx, parentID)
	if err != nil {
		return err
	}
	for _, ch := range children {
		if ch.Status != models.TxnCompleted {
			return nil
		}
	}
	parent, err := r.Transactions.GetForUpdate(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.Status == models.TxnCompleted {
		return nil
	}
	return c.setStatus(ctx, r, &parent, models.TxnCompleted, actor)
}

// afterPayment queues the contract and notifications for a committed
// settlement. Failures are logged and never undo the settlement.
func (c *Core) afterPayment(ctx context.Context, tx models.Transaction, event string) {
	if c.Tasks == nil {
		return
	}
	parts := []models.Transaction{tx}
	if tx.IsParent() {
		children, err := c.Store.Repos().Transactions.ListChildren(ctx, tx.ID)
		if err != nil {
			c.Log.Error("after payment: list cart parts", "tx_id", tx.ID, "err", err)
			return
		}
		parts = children
	}
	for _, p := range parts {
		if err := c.Tasks.GenerateContract(ctx, p.ID); err != nil {
			c.Log.Error("after payment: enqueue contract", "tx_id", p.ID, "err", err)
		}
		c.notify(ctx, p.SellerID, event, p.ID, fmt.Sprintf("buyer paid %d for transaction %s", p.PaidAmount, p.ID))
	}
	c.notify(ctx, tx.BuyerID, event, tx.ID, fmt.Sprintf("payment of %d received for transaction %s", tx.PaidAmount, tx.ID))
}

func (c *Core) notify(ctx context.Context, userID, event, txID, text string) {
	if c.Tasks == nil || userID == "" {
		return
	}
	if err := c.Tasks.Notify(ctx, notify.Message{UserID: userID, Event: event, TransactionID: txID, Text: text}); err != nil {
		c.Log.Error("enqueue notification", "user_id", userID, "event", event, "err", err)
	}
}

// settled records the outcome of a settlement unit of work.
func settled(kind string, err error) error {
	if err != nil {
		metrics.SettlementsFailed.WithLabelValues(kind).Inc()
		return err
	}
	metrics.SettlementsTotal.WithLabelValues(kind).Inc()
	return nil
}
