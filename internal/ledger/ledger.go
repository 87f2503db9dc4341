// Package ledger is the only writer of wallet balances. Every mutation runs
// inside the caller's unit of work and appends one financial transaction per
// wallet it touches. The ledger does not deduplicate: callers re-check the
// status of whatever they settle before calling it.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

// Memo describes a ledger entry.
type Memo struct {
	Description    string
	Gateway        models.Gateway
	GatewayTransID *string
}

type Ledger struct {
	systemUserID string
}

// New returns a ledger that credits commission to systemUserID's wallet.
func New(systemUserID string) *Ledger { return &Ledger{systemUserID: systemUserID} }

func (l *Ledger) SystemUserID() string { return l.systemUserID }

func positive(amount int64) error {
	if amount <= 0 {
		return apperr.BadRequest("amount must be > 0")
	}
	return nil
}

func (l *Ledger) record(ctx context.Context, r repo.Repos, w models.Wallet, amount int64, typ models.FinancialTxType, m Memo) (models.FinancialTransaction, error) {
	gw := m.Gateway
	if gw == "" {
		gw = models.GatewayInternal
	}
	return r.Ledger.Create(ctx, models.FinancialTransaction{
		WalletID:       w.ID,
		Amount:         amount,
		Type:           typ,
		Status:         models.FinTxCompleted,
		Gateway:        gw,
		GatewayTransID: m.GatewayTransID,
		Description:    m.Description,
	})
}

// lockWallets takes row locks in user id order so two units of work touching
// the same pair of wallets cannot deadlock.
func lockWallets(ctx context.Context, r repo.Repos, userIDs ...string) (map[string]models.Wallet, error) {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	out := make(map[string]models.Wallet, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		w, err := r.Wallets.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

// Debit takes amount from the user's available balance.
func (l *Ledger) Debit(ctx context.Context, r repo.Repos, userID string, amount int64, typ models.FinancialTxType, m Memo) error {
	if err := positive(amount); err != nil {
		return err
	}
	w, err := r.Wallets.GetForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if w.AvailableBalance < amount {
		return apperr.ErrInsufficientBalance
	}
	w.AvailableBalance -= amount
	if err := r.Wallets.Update(ctx, w); err != nil {
		return err
	}
	_, err = l.record(ctx, r, w, -amount, typ, m)
	return err
}

// Credit adds amount to the user's available balance.
func (l *Ledger) Credit(ctx context.Context, r repo.Repos, userID string, amount int64, typ models.FinancialTxType, m Memo) error {
	if err := positive(amount); err != nil {
		return err
	}
	w, err := r.Wallets.GetForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	w.AvailableBalance += amount
	if err := r.Wallets.Update(ctx, w); err != nil {
		return err
	}
	_, err = l.record(ctx, r, w, amount, typ, m)
	return err
}

// Lock escrows amount on the seller's locked balance. The funds come from a
// debit the caller already made on the buyer in the same unit of work.
func (l *Ledger) Lock(ctx context.Context, r repo.Repos, sellerID string, amount int64, m Memo) error {
	if err := positive(amount); err != nil {
		return err
	}
	w, err := r.Wallets.GetForUpdate(ctx, sellerID)
	if err != nil {
		return err
	}
	w.LockedBalance += amount
	if err := r.Wallets.Update(ctx, w); err != nil {
		return err
	}
	_, err = l.record(ctx, r, w, amount, models.FinTxPurchase, m)
	return err
}

// Hold moves amount from the user's own available balance to locked.
func (l *Ledger) Hold(ctx context.Context, r repo.Repos, userID string, amount int64, m Memo) error {
	if err := positive(amount); err != nil {
		return err
	}
	w, err := r.Wallets.GetForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if w.AvailableBalance < amount {
		return apperr.ErrInsufficientBalance
	}
	w.AvailableBalance -= amount
	w.LockedBalance += amount
	if err := r.Wallets.Update(ctx, w); err != nil {
		return err
	}
	_, err = l.record(ctx, r, w, -amount, models.FinTxAuctionDeposit, m)
	return err
}

// Unhold returns a hold taken with Hold to the same user's available balance.
func (l *Ledger) Unhold(ctx context.Context, r repo.Repos, userID string, amount int64, m Memo) error {
	if err := positive(amount); err != nil {
		return err
	}
	w, err := r.Wallets.GetForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if w.LockedBalance < amount {
		return apperr.Internal("unhold", fmt.Errorf("locked balance %d below %d", w.LockedBalance, amount))
	}
	w.LockedBalance -= amount
	w.AvailableBalance += amount
	if err := r.Wallets.Update(ctx, w); err != nil {
		return err
	}
	_, err = l.record(ctx, r, w, amount, models.FinTxAuctionDepositRefund, m)
	return err
}

// Release pays out an escrow: the seller's locked balance drops by amount,
// the seller receives amount-commission and the system wallet commission.
func (l *Ledger) Release(ctx context.Context, r repo.Repos, sellerID string, amount, commission int64, m Memo) error {
	if err := positive(amount); err != nil {
		return err
	}
	if commission < 0 || commission > amount {
		return apperr.BadRequest(fmt.Sprintf("commission %d out of range for %d", commission, amount))
	}
	ws, err := lockWallets(ctx, r, sellerID, l.systemUserID)
	if err != nil {
		return err
	}
	seller := ws[sellerID]
	if seller.LockedBalance < amount {
		return apperr.Internal("release", fmt.Errorf("locked balance %d below %d", seller.LockedBalance, amount))
	}
	seller.LockedBalance -= amount
	seller.AvailableBalance += amount - commission
	if sellerID == l.systemUserID {
		seller.AvailableBalance += commission
	}
	if err := r.Wallets.Update(ctx, seller); err != nil {
		return err
	}
	if _, err := l.record(ctx, r, seller, amount-commission, models.FinTxPurchase, m); err != nil {
		return err
	}
	if commission == 0 {
		return nil
	}

	sys := ws[l.systemUserID]
	if sellerID != l.systemUserID {
		sys.AvailableBalance += commission
		if err := r.Wallets.Update(ctx, sys); err != nil {
			return err
		}
	}
	_, err = l.record(ctx, r, sys, commission, models.FinTxCommissionFee, Memo{Description: "commission: " + m.Description})
	return err
}

// RefundLocked moves amount from fromUserID's locked balance back to the
// payer toUserID's available balance.
func (l *Ledger) RefundLocked(ctx context.Context, r repo.Repos, fromUserID, toUserID string, amount int64, m Memo) error {
	if err := positive(amount); err != nil {
		return err
	}
	ws, err := lockWallets(ctx, r, fromUserID, toUserID)
	if err != nil {
		return err
	}
	from := ws[fromUserID]
	if from.LockedBalance < amount {
		return apperr.Internal("refund", fmt.Errorf("locked balance %d below %d", from.LockedBalance, amount))
	}
	from.LockedBalance -= amount
	if fromUserID == toUserID {
		from.AvailableBalance += amount
		if err := r.Wallets.Update(ctx, from); err != nil {
			return err
		}
		_, err = l.record(ctx, r, from, amount, models.FinTxRefund, m)
		return err
	}
	to := ws[toUserID]
	to.AvailableBalance += amount
	if err := r.Wallets.Update(ctx, from); err != nil {
		return err
	}
	if err := r.Wallets.Update(ctx, to); err != nil {
		return err
	}
	if _, err := l.record(ctx, r, from, -amount, models.FinTxRefund, m); err != nil {
		return err
	}
	_, err = l.record(ctx, r, to, amount, models.FinTxRefund, m)
	return err
}

// PendingDeposit records a gateway top-up that has not been confirmed yet.
// Balances do not move until CompleteDeposit.
func (l *Ledger) PendingDeposit(ctx context.Context, r repo.Repos, userID string, amount int64, m Memo) (models.FinancialTransaction, error) {
	if err := positive(amount); err != nil {
		return models.FinancialTransaction{}, err
	}
	w, err := r.Wallets.Get(ctx, userID)
	if err != nil {
		return models.FinancialTransaction{}, err
	}
	gw := m.Gateway
	if gw == "" {
		gw = models.GatewayMomo
	}
	return r.Ledger.Create(ctx, models.FinancialTransaction{
		WalletID:    w.ID,
		Amount:      amount,
		Type:        models.FinTxDeposit,
		Status:      models.FinTxPending,
		Gateway:     gw,
		Description: m.Description,
	})
}

// CompleteDeposit credits a pending top-up and marks it completed. The entry
// itself is the log record, so no new entry is appended.
func (l *Ledger) CompleteDeposit(ctx context.Context, r repo.Repos, ft models.FinancialTransaction, gatewayTransID *string) error {
	if ft.Type != models.FinTxDeposit || ft.Status != models.FinTxPending {
		return apperr.Conflict("deposit already processed")
	}
	w, err := r.Wallets.GetByIDForUpdate(ctx, ft.WalletID)
	if err != nil {
		return err
	}
	w.AvailableBalance += ft.Amount
	if err := r.Wallets.Update(ctx, w); err != nil {
		return err
	}
	return r.Ledger.UpdateStatus(ctx, ft.ID, models.FinTxCompleted, gatewayTransID)
}

// CancelDeposit marks a pending top-up cancelled without touching balances.
func (l *Ledger) CancelDeposit(ctx context.Context, r repo.Repos, ft models.FinancialTransaction, gatewayTransID *string) error {
	if ft.Status != models.FinTxPending {
		return apperr.Conflict("deposit already processed")
	}
	return r.Ledger.UpdateStatus(ctx, ft.ID, models.FinTxCancelled, gatewayTransID)
}
