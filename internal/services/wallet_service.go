package services

import (
	"context"
	"fmt"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/payment/momo"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

// MinTopUp is the smallest gateway top-up accepted.
const MinTopUp = 10_000

type WalletService struct {
	*Core
	gw momo.Gateway
}

func NewWalletService(c *Core, gw momo.Gateway) *WalletService {
	return &WalletService{Core: c, gw: gw}
}

func (s *WalletService) Balance(ctx context.Context, userID string) (models.Wallet, error) {
	return s.Store.Repos().Wallets.Get(ctx, userID)
}

// History pages through the wallet's ledger entries, newest first.
func (s *WalletService) History(ctx context.Context, userID string, limit, offset int) ([]models.FinancialTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r := s.Store.Repos()
	w, err := r.Wallets.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.Ledger.ListByWallet(ctx, w.ID, limit, offset)
}

// TopUpResult is a pending top-up and where to pay for it.
type TopUpResult struct {
	Deposit models.FinancialTransaction `json:"deposit"`
	PayURL  string                      `json:"pay_url"`
}

// RequestTopUp records a PENDING deposit and opens a gateway session whose
// order id is the deposit's id. The wallet is credited by the callback.
func (s *WalletService) RequestTopUp(ctx context.Context, userID string, amount int64) (TopUpResult, error) {
	if amount < MinTopUp {
		return TopUpResult{}, apperr.BadRequest(fmt.Sprintf("amount must be at least %d", MinTopUp))
	}
	if s.gw == nil {
		return TopUpResult{}, apperr.BadRequest("gateway payments are not available")
	}
	var ft models.FinancialTransaction
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		ft, err = s.Ledger.PendingDeposit(ctx, r, userID, amount, ledger.Memo{Description: "wallet top-up", Gateway: models.GatewayMomo})
		return err
	})
	if err != nil {
		return TopUpResult{}, err
	}

	resp, err := s.gw.CreatePayment(ctx, momo.CreatePaymentRequest{
		OrderID:   ft.ID,
		Amount:    amount,
		OrderInfo: "wallet top-up",
	})
	if err != nil {
		s.Log.Error("top-up: create payment", "deposit_id", ft.ID, "err", err)
		if cerr := s.Store.WithTx(ctx, func(r repo.Repos) error {
			cur, err := r.Ledger.GetForUpdate(ctx, ft.ID)
			if err != nil {
				return err
			}
			return s.Ledger.CancelDeposit(ctx, r, cur, nil)
		}); cerr != nil {
			s.Log.Error("top-up: cancel deposit", "deposit_id", ft.ID, "err", cerr)
		}
		return TopUpResult{}, apperr.Internal("payment gateway unavailable", err)
	}
	s.Log.Info("top-up requested", "user_id", userID, "deposit_id", ft.ID, "amount", amount)
	return TopUpResult{Deposit: ft, PayURL: resp.PayURL}, nil
}
