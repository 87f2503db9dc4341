package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	"github.com/baharkarakas/evtrade-backend/internal/payment/momo"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

type CheckoutService struct {
	*Core
	gw momo.Gateway
}

func NewCheckoutService(c *Core, gw momo.Gateway) *CheckoutService {
	return &CheckoutService{Core: c, gw: gw}
}

// CheckoutResult carries the transaction and, for gateway payments, the URL
// the buyer is sent to.
type CheckoutResult struct {
	Transaction models.Transaction `json:"transaction"`
	PayURL      string             `json:"pay_url,omitempty"`
}

// Checkout opens a purchase of one listing. Batteries are paid in full,
// vehicles pay a deposit first and the rest after the viewing appointment.
func (s *CheckoutService) Checkout(ctx context.Context, buyerID string, ref models.ListingRef, method models.PaymentMethod) (CheckoutResult, error) {
	if !ref.Kind.Valid() || ref.ID == "" {
		return CheckoutResult{}, apperr.BadRequest("invalid listing reference")
	}
	if !method.Valid() {
		return CheckoutResult{}, apperr.BadRequest("invalid payment method")
	}

	var tx models.Transaction
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		l, err := lockListing(ctx, r, ref)
		if err != nil {
			return err
		}
		if err := purchasable(l, buyerID); err != nil {
			return err
		}
		due := l.Price
		if ref.Kind == models.KindVehicle {
			due = s.vehicleDeposit(l.Price)
		}
		tx, err = r.Transactions.Create(ctx, models.Transaction{
			BuyerID:         buyerID,
			SellerID:        l.SellerID,
			Listing:         &ref,
			Type:            models.TxnSale,
			Status:          models.TxnPending,
			FinalPrice:      l.Price,
			AmountDue:       due,
			PaymentMethod:   method,
			PaymentDeadline: at(s.now().Add(s.Policy.PaymentWindow)),
		})
		if err != nil {
			return err
		}
		return audit(ctx, r, "transaction", tx.ID, buyerID, "created",
			map[string]any{"listing": ref.String(), "amount_due": due})
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	return s.proceed(ctx, tx, method)
}

func purchasable(l models.Listing, buyerID string) error {
	if l.IsAuction {
		return apperr.BadRequest("auction listings are sold by bidding")
	}
	if l.Status != models.ListingAvailable {
		return apperr.Conflict(fmt.Sprintf("listing %s is not available", l.Ref))
	}
	if l.SellerID == buyerID {
		return apperr.BadRequest("cannot buy your own listing")
	}
	return nil
}

// CheckoutCart turns the buyer's cart into one parent transaction with one
// child per seller and empties the cart.
func (s *CheckoutService) CheckoutCart(ctx context.Context, buyerID string, method models.PaymentMethod) (CheckoutResult, error) {
	if !method.Valid() {
		return CheckoutResult{}, apperr.BadRequest("invalid payment method")
	}

	var parent models.Transaction
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		items, err := r.Carts.ListItems(ctx, buyerID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return apperr.BadRequest("cart is empty")
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Listing.String() < items[j].Listing.String() })

		bySeller := map[string][]models.TransactionItem{}
		var total int64
		for _, it := range items {
			if it.Listing.Kind == models.KindVehicle {
				return apperr.BadRequest("vehicles must be checked out individually")
			}
			l, err := lockListing(ctx, r, it.Listing)
			if err != nil {
				return err
			}
			if err := purchasable(l, buyerID); err != nil {
				return err
			}
			bySeller[l.SellerID] = append(bySeller[l.SellerID], models.TransactionItem{Listing: l.Ref, Price: l.Price})
			total += l.Price
		}

		deadline := at(s.now().Add(s.Policy.PaymentWindow))
		parent, err = r.Transactions.Create(ctx, models.Transaction{
			BuyerID:         buyerID,
			Type:            models.TxnSale,
			Status:          models.TxnPending,
			FinalPrice:      total,
			AmountDue:       total,
			PaymentMethod:   method,
			PaymentDeadline: deadline,
		})
		if err != nil {
			return err
		}

		sellers := make([]string, 0, len(bySeller))
		for id := range bySeller {
			sellers = append(sellers, id)
		}
		sort.Strings(sellers)
		for _, sellerID := range sellers {
			var subtotal int64
			for _, it := range bySeller[sellerID] {
				subtotal += it.Price
			}
			pid := parent.ID
			if _, err := r.Transactions.Create(ctx, models.Transaction{
				ParentID:        &pid,
				BuyerID:         buyerID,
				SellerID:        sellerID,
				Items:           bySeller[sellerID],
				Type:            models.TxnSale,
				Status:          models.TxnPending,
				FinalPrice:      subtotal,
				AmountDue:       subtotal,
				PaymentMethod:   method,
				PaymentDeadline: deadline,
			}); err != nil {
				return err
			}
		}
		if err := r.Carts.Clear(ctx, buyerID); err != nil {
			return err
		}
		return audit(ctx, r, "transaction", parent.ID, buyerID, "created",
			map[string]any{"items": len(items), "sellers": len(sellers), "total": total})
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	return s.proceed(ctx, parent, method)
}

func (s *CheckoutService) proceed(ctx context.Context, tx models.Transaction, method models.PaymentMethod) (CheckoutResult, error) {
	if method == models.PayWallet {
		paid, err := s.PayWithWallet(ctx, tx.ID, tx.BuyerID)
		if err != nil {
			return CheckoutResult{Transaction: tx}, err
		}
		return CheckoutResult{Transaction: paid}, nil
	}
	url, err := s.startGateway(ctx, attemptOrderID(tx.ID), tx.AmountDue, "payment for transaction "+tx.ID)
	if err != nil {
		return CheckoutResult{Transaction: tx}, err
	}
	return CheckoutResult{Transaction: tx, PayURL: url}, nil
}

func (s *CheckoutService) startGateway(ctx context.Context, orderID string, amount int64, info string) (string, error) {
	if s.gw == nil {
		return "", apperr.BadRequest("gateway payments are not available")
	}
	resp, err := s.gw.CreatePayment(ctx, momo.CreatePaymentRequest{OrderID: orderID, Amount: amount, OrderInfo: info})
	if err != nil {
		s.Log.Error("gateway create payment", "order_id", orderID, "err", err)
		return "", apperr.Internal("payment gateway unavailable", err)
	}
	return resp.PayURL, nil
}

// PayWithWallet settles a PENDING transaction from the buyer's wallet. A
// transaction that is no longer PENDING fails with Conflict; nothing is
// debited twice.
func (s *CheckoutService) PayWithWallet(ctx context.Context, txID, buyerID string) (models.Transaction, error) {
	var tx models.Transaction
	err := settled("payment", s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		tx, err = ownedPending(ctx, r, txID, buyerID)
		if err != nil {
			return err
		}
		return s.pay(ctx, r, &tx, ledger.Memo{})
	}))
	if err != nil {
		return models.Transaction{}, err
	}
	s.Log.Info("transaction paid", "tx_id", tx.ID, "status", tx.Status, "amount", tx.AmountDue)
	s.afterPayment(ctx, tx, paidEvent(tx))
	return tx, nil
}

// PayWithGateway opens a new gateway session for a PENDING transaction, for
// auction winners and for buyers retrying a failed payment.
func (s *CheckoutService) PayWithGateway(ctx context.Context, txID, buyerID string) (CheckoutResult, error) {
	tx, err := s.Store.Repos().Transactions.GetByID(ctx, txID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := checkOwnedPending(tx, buyerID); err != nil {
		return CheckoutResult{}, err
	}
	url, err := s.startGateway(ctx, attemptOrderID(tx.ID), tx.AmountDue, "payment for transaction "+tx.ID)
	if err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{Transaction: tx, PayURL: url}, nil
}

// PayRemainderForVehicle collects the rest of a vehicle's price once the
// viewing is scheduled, then completes the sale with commission charged on
// the full price.
func (s *CheckoutService) PayRemainderForVehicle(ctx context.Context, txID, buyerID string, method models.PaymentMethod) (CheckoutResult, error) {
	if !method.Valid() {
		return CheckoutResult{}, apperr.BadRequest("invalid payment method")
	}
	if method == models.PayMomo {
		tx, err := s.Store.Repos().Transactions.GetByID(ctx, txID)
		if err != nil {
			return CheckoutResult{}, err
		}
		if tx.BuyerID != buyerID {
			return CheckoutResult{}, apperr.NotFound("transaction not found")
		}
		if err := remainderDue(tx); err != nil {
			return CheckoutResult{}, err
		}
		url, err := s.startGateway(ctx, attemptOrderID(tx.ID+RemainderSuffix), tx.Outstanding(), "remaining payment for transaction "+tx.ID)
		if err != nil {
			return CheckoutResult{}, err
		}
		return CheckoutResult{Transaction: tx, PayURL: url}, nil
	}

	var tx models.Transaction
	err := settled("remainder", s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		tx, err = lockTx(ctx, r, txID)
		if err != nil {
			return err
		}
		if tx.BuyerID != buyerID {
			return apperr.NotFound("transaction not found")
		}
		return s.payRemainder(ctx, r, &tx, ledger.Memo{})
	}))
	if err != nil {
		return CheckoutResult{}, err
	}
	s.Log.Info("vehicle sale completed", "tx_id", tx.ID, "final_price", tx.FinalPrice)
	s.notify(ctx, tx.SellerID, notify.EventCompleted, tx.ID, fmt.Sprintf("transaction %s completed", tx.ID))
	s.notify(ctx, tx.BuyerID, notify.EventCompleted, tx.ID, fmt.Sprintf("transaction %s completed", tx.ID))
	return CheckoutResult{Transaction: tx}, nil
}

func ownedPending(ctx context.Context, r repo.Repos, txID, buyerID string) (models.Transaction, error) {
	tx, err := lockTx(ctx, r, txID)
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, checkOwnedPending(tx, buyerID)
}

func checkOwnedPending(tx models.Transaction, buyerID string) error {
	if tx.BuyerID != buyerID {
		return apperr.NotFound("transaction not found")
	}
	if tx.ParentID != nil {
		return apperr.BadRequest("pay the cart transaction, not its parts")
	}
	if tx.Status != models.TxnPending {
		return apperr.Conflict("transaction already processed")
	}
	return nil
}

func paidEvent(tx models.Transaction) string {
	if tx.Status == models.TxnDepositPaid {
		return notify.EventDepositPaid
	}
	return notify.EventPaid
}
