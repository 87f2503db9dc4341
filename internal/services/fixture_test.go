package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	"github.com/baharkarakas/evtrade-backend/internal/payment/momo"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
	"github.com/baharkarakas/evtrade-backend/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sysID = "system"

type mockTasks struct{ mock.Mock }

func (m *mockTasks) GenerateContract(ctx context.Context, txID string) error {
	return m.Called(ctx, txID).Error(0)
}

func (m *mockTasks) Notify(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockTasks) contracts(txID string) int {
	n := 0
	for _, c := range m.Calls {
		if c.Method == "GenerateContract" && c.Arguments.String(1) == txID {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu   sync.Mutex
	reqs []momo.CreatePaymentRequest
	err  error
}

func (g *fakeGateway) CreatePayment(_ context.Context, req momo.CreatePaymentRequest) (momo.CreatePaymentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return momo.CreatePaymentResponse{}, g.err
	}
	return momo.CreatePaymentResponse{OrderID: req.OrderID, Amount: req.Amount, PayURL: "https://pay.test/" + req.OrderID}, nil
}

func (g *fakeGateway) last() momo.CreatePaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	st    *memory.Store
	core  *Core
	tasks *mockTasks
	gw    *fakeGateway
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		st:    memory.New(),
		tasks: &mockTasks{},
		gw:    &fakeGateway{},
		clock: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.tasks.On("GenerateContract", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.tasks.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.st.SetClock(func() time.Time { return f.clock })
	f.st.SetFee(models.Fee{SaleType: models.SaleRegular, Percentage: decimal.RequireFromString("5")})
	f.st.SetFee(models.Fee{SaleType: models.SaleAuction, Percentage: decimal.RequireFromString("7.5")})
	f.core = &Core{
		Store:  f.st,
		Ledger: ledger.New(sysID),
		Tasks:  f.tasks,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return f.clock },
		Policy: DefaultPolicy(),
	}
	f.user(sysID, 0)
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) user(id string, balance int64) {
	f.t.Helper()
	r := f.st.Repos()
	_, err := r.Users.Create(f.ctx, models.User{ID: id, Username: id, Email: id + "@example.com", Role: models.RoleUser})
	require.NoError(f.t, err)
	_, err = r.Wallets.Create(f.ctx, id)
	require.NoError(f.t, err)
	if balance > 0 {
		require.NoError(f.t, f.st.WithTx(f.ctx, func(r repo.Repos) error {
			return f.core.Ledger.Credit(f.ctx, r, id, balance, models.FinTxDeposit, ledger.Memo{Description: "seed"})
		}))
	}
}

func (f *fixture) fund(userID string, amount int64) {
	f.t.Helper()
	require.NoError(f.t, f.st.WithTx(f.ctx, func(r repo.Repos) error {
		return f.core.Ledger.Credit(f.ctx, r, userID, amount, models.FinTxDeposit, ledger.Memo{Description: "seed"})
	}))
}

func (f *fixture) battery(id, sellerID string, price int64) models.ListingRef {
	return f.listing(models.Listing{Ref: models.ListingRef{Kind: models.KindBattery, ID: id}, SellerID: sellerID, Title: id, Price: price})
}

func (f *fixture) vehicle(id, sellerID string, price int64) models.ListingRef {
	return f.listing(models.Listing{Ref: models.ListingRef{Kind: models.KindVehicle, ID: id}, SellerID: sellerID, Title: id, Price: price})
}

func (f *fixture) auction(id, sellerID string, start, incr, deposit int64) models.ListingRef {
	end := f.clock.Add(2 * time.Hour)
	return f.listing(models.Listing{
		Ref:           models.ListingRef{Kind: models.KindVehicle, ID: id},
		SellerID:      sellerID,
		Title:         id,
		Price:         start,
		Status:        models.ListingAuctionLive,
		IsAuction:     true,
		StartingPrice: start,
		BidIncrement:  incr,
		DepositAmount: deposit,
		AuctionEndAt:  &end,
	})
}

func (f *fixture) listing(l models.Listing) models.ListingRef {
	f.t.Helper()
	if l.Status == "" {
		l.Status = models.ListingAvailable
	}
	out, err := f.st.Repos().Listings.Create(f.ctx, l)
	require.NoError(f.t, err)
	return out.Ref
}

func (f *fixture) wallet(userID string) models.Wallet {
	f.t.Helper()
	w, err := f.st.Repos().Wallets.Get(f.ctx, userID)
	require.NoError(f.t, err)
	return w
}

func (f *fixture) tx(id string) models.Transaction {
	f.t.Helper()
	tx, err := f.st.Repos().Transactions.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return tx
}

func (f *fixture) listingStatus(ref models.ListingRef) models.ListingStatus {
	f.t.Helper()
	l, err := f.st.Repos().Listings.Get(f.ctx, ref)
	require.NoError(f.t, err)
	return l.Status
}

func (f *fixture) ledgerLen(userID string) int {
	f.t.Helper()
	entries, err := f.st.Repos().Ledger.ListByWallet(f.ctx, f.wallet(userID).ID, 1000, 0)
	require.NoError(f.t, err)
	return len(entries)
}

func (f *fixture) checkout() *CheckoutService   { return NewCheckoutService(f.core, f.gw) }
func (f *fixture) auctions() *AuctionService    { return NewAuctionService(f.core) }
func (f *fixture) lifecycle() *LifecycleService { return NewLifecycleService(f.core, nil, 100) }
func (f *fixture) listings() *ListingService    { return NewListingService(f.core) }
