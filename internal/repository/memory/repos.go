package memory

import (
	"context"
	"sort"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
)

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

type usersRepo struct{ d *db }

func (r usersRepo) Create(_ context.Context, u models.User) (models.User, error) {
	st := r.d.lock()
	defer r.d.unlock()
	for _, x := range st.users {
		if x.Email == u.Email || x.Username == u.Username {
			return models.User{}, apperr.Conflict("user already exists")
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt, u.UpdatedAt = r.d.stamp(), r.d.stamp()
	st.users[u.ID] = u
	return u, nil
}

func (r usersRepo) GetByID(_ context.Context, id string) (models.User, error) {
	st := r.d.lock()
	defer r.d.unlock()
	u, ok := st.users[id]
	if !ok {
		return models.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func (r usersRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	st := r.d.lock()
	defer r.d.unlock()
	for _, u := range st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, apperr.NotFound("user not found")
}

func (r usersRepo) List(_ context.Context, limit, offset int) ([]models.User, error) {
	st := r.d.lock()
	defer r.d.unlock()
	out := make([]models.User, 0, len(st.users))
	for _, u := range st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

type walletsRepo struct{ d *db }

func (r walletsRepo) Create(_ context.Context, userID string) (models.Wallet, error) {
	st := r.d.lock()
	defer r.d.unlock()
	if _, ok := st.wallets[userID]; ok {
		return models.Wallet{}, apperr.Conflict("wallet already exists")
	}
	w := models.Wallet{ID: uuid.NewString(), UserID: userID, UpdatedAt: r.d.stamp()}
	st.wallets[userID] = w
	return w, nil
}

func (r walletsRepo) Get(_ context.Context, userID string) (models.Wallet, error) {
	st := r.d.lock()
	defer r.d.unlock()
	w, ok := st.wallets[userID]
	if !ok {
		return models.Wallet{}, apperr.NotFound("wallet not found")
	}
	return w, nil
}

func (r walletsRepo) GetForUpdate(ctx context.Context, userID string) (models.Wallet, error) {
	return r.Get(ctx, userID)
}

func (r walletsRepo) GetByIDForUpdate(_ context.Context, walletID string) (models.Wallet, error) {
	st := r.d.lock()
	defer r.d.unlock()
	for _, w := range st.wallets {
		if w.ID == walletID {
			return w, nil
		}
	}
	return models.Wallet{}, apperr.NotFound("wallet not found")
}

// Update enforces the same non-negative CHECK constraints as the wallets table.
func (r walletsRepo) Update(_ context.Context, w models.Wallet) error {
	st := r.d.lock()
	defer r.d.unlock()
	if w.AvailableBalance < 0 || w.LockedBalance < 0 {
		return apperr.BadRequest("wallet violates a constraint")
	}
	cur, ok := st.wallets[w.UserID]
	if !ok || cur.ID != w.ID {
		return apperr.NotFound("wallet not found")
	}
	w.UpdatedAt = r.d.stamp()
	st.wallets[w.UserID] = w
	return nil
}

type ledgerRepo struct{ d *db }

func (r ledgerRepo) Create(_ context.Context, ft models.FinancialTransaction) (models.FinancialTransaction, error) {
	st := r.d.lock()
	defer r.d.unlock()
	if ft.ID == "" {
		ft.ID = uuid.NewString()
	}
	ft.CreatedAt, ft.UpdatedAt = r.d.stamp(), r.d.stamp()
	st.ledger[ft.ID] = ft
	st.ledgerOrder = append(st.ledgerOrder, ft.ID)
	return ft, nil
}

func (r ledgerRepo) GetByID(_ context.Context, id string) (models.FinancialTransaction, error) {
	st := r.d.lock()
	defer r.d.unlock()
	ft, ok := st.ledger[id]
	if !ok {
		return models.FinancialTransaction{}, apperr.NotFound("financial transaction not found")
	}
	return ft, nil
}

func (r ledgerRepo) GetForUpdate(ctx context.Context, id string) (models.FinancialTransaction, error) {
	return r.GetByID(ctx, id)
}

func (r ledgerRepo) UpdateStatus(_ context.Context, id string, status models.FinancialTxStatus, gatewayTransID *string) error {
	st := r.d.lock()
	defer r.d.unlock()
	ft, ok := st.ledger[id]
	if !ok {
		return apperr.NotFound("financial transaction not found")
	}
	ft.Status = status
	if gatewayTransID != nil {
		ft.GatewayTransID = gatewayTransID
	}
	ft.UpdatedAt = r.d.stamp()
	st.ledger[id] = ft
	return nil
}

func (r ledgerRepo) FindByGatewayTransID(_ context.Context, gw models.Gateway, transID string) (*models.FinancialTransaction, error) {
	st := r.d.lock()
	defer r.d.unlock()
	for _, id := range st.ledgerOrder {
		ft := st.ledger[id]
		if ft.Gateway == gw && ft.GatewayTransID != nil && *ft.GatewayTransID == transID {
			return &ft, nil
		}
	}
	return nil, nil
}

func (r ledgerRepo) ListByWallet(_ context.Context, walletID string, limit, offset int) ([]models.FinancialTransaction, error) {
	st := r.d.lock()
	defer r.d.unlock()
	var out []models.FinancialTransaction
	for i := len(st.ledgerOrder) - 1; i >= 0; i-- {
		if ft := st.ledger[st.ledgerOrder[i]]; ft.WalletID == walletID {
			out = append(out, ft)
		}
	}
	return page(out, limit, offset), nil
}

type listingsRepo struct{ d *db }

func (r listingsRepo) Create(_ context.Context, l models.Listing) (models.Listing, error) {
	st := r.d.lock()
	defer r.d.unlock()
	if !l.Ref.Kind.Valid() {
		return models.Listing{}, apperr.BadRequest("unknown listing kind")
	}
	if l.Ref.ID == "" {
		l.Ref.ID = uuid.NewString()
	}
	l.CreatedAt, l.UpdatedAt = r.d.stamp(), r.d.stamp()
	st.listings[l.Ref] = l
	return l, nil
}

func (r listingsRepo) Get(_ context.Context, ref models.ListingRef) (models.Listing, error) {
	st := r.d.lock()
	defer r.d.unlock()
	l, ok := st.listings[ref]
	if !ok {
		return models.Listing{}, apperr.NotFound("listing not found")
	}
	return l, nil
}

func (r listingsRepo) GetForUpdate(ctx context.Context, ref models.ListingRef) (models.Listing, error) {
	return r.Get(ctx, ref)
}

func (r listingsRepo) UpdateStatus(_ context.Context, ref models.ListingRef, status models.ListingStatus) error {
	st := r.d.lock()
	defer r.d.unlock()
	l, ok := st.listings[ref]
	if !ok {
		return apperr.NotFound("listing not found")
	}
	l.Status = status
	l.UpdatedAt = r.d.stamp()
	st.listings[ref] = l
	return nil
}

func (r listingsRepo) ListEndedAuctions(_ context.Context, now time.Time, limit int) ([]models.Listing, error) {
	st := r.d.lock()
	defer r.d.unlock()
	var out []models.Listing
	for _, l := range st.listings {
		if l.Status == models.ListingAuctionLive && l.AuctionEndAt != nil && l.AuctionEndAt.Before(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuctionEndAt.Before(*out[j].AuctionEndAt) })
	return page(out, limit, 0), nil
}

type bidsRepo struct{ d *db }

func (r bidsRepo) Create(_ context.Context, b models.Bid) (models.Bid, error) {
	st := r.d.lock()
	defer r.d.unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = r.d.stamp()
	st.bids = append(st.bids, b)
	return b, nil
}

func (r bidsRepo) Highest(_ context.Context, ref models.ListingRef) (*models.Bid, error) {
	st := r.d.lock()
	defer r.d.unlock()
	var best *models.Bid
	for i := range st.bids {
		b := st.bids[i]
		if b.Listing == ref && (best == nil || b.Amount > best.Amount) {
			best = &b
		}
	}
	return best, nil
}

func (r bidsRepo) ListByListing(_ context.Context, ref models.ListingRef) ([]models.Bid, error) {
	st := r.d.lock()
	defer r.d.unlock()
	var out []models.Bid
	for _, b := range st.bids {
		if b.Listing == ref {
			out = append(out, b)
		}
	}
	return out, nil
}

type depositsRepo struct{ d *db }

func (r depositsRepo) Create(_ context.Context, dep models.AuctionDeposit) (models.AuctionDeposit, error) {
	st := r.d.lock()
	defer r.d.unlock()
	for _, x := range st.deposits {
		if x.Listing == dep.Listing && x.BidderID == dep.BidderID {
			return models.AuctionDeposit{}, apperr.Conflict("auction deposit already exists")
		}
	}
	if dep.ID == "" {
		dep.ID = uuid.NewString()
	}
	dep.CreatedAt, dep.UpdatedAt = r.d.stamp(), r.d.stamp()
	st.deposits[dep.ID] = dep
	return dep, nil
}

func (r depositsRepo) Get(_ context.Context, ref models.ListingRef, bidderID string) (*models.AuctionDeposit, error) {
	st := r.d.lock()
	defer r.d.unlock()
	for _, x := range st.deposits {
		if x.Listing == ref && x.BidderID == bidderID {
			return &x, nil
		}
	}
	return nil, nil
}

func (r depositsRepo) ListPaid(_ context.Context, ref models.ListingRef) ([]models.AuctionDeposit, error) {
	st := r.d.lock()
	defer r.d.unlock()
	var out []models.AuctionDeposit
	for _, x := range st.deposits {
		if x.Listing == ref && x.Status == models.DepositPaid {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r depositsRepo) UpdateStatus(_ context.Context, id string, status models.AuctionDepositStatus) error {
	st := r.d.lock()
	defer r.d.unlock()
	x, ok := st.deposits[id]
	if !ok {
		return apperr.NotFound("auction deposit not found")
	}
	x.Status = status
	x.UpdatedAt = r.d.stamp()
	st.deposits[id] = x
	return nil
}

type transactionsRepo struct{ d *db }

func copyTx(t models.Transaction) models.Transaction {
	t.Items = append([]models.TransactionItem(nil), t.Items...)
	t.DisputeEvidence = append([]string(nil), t.DisputeEvidence...)
	return t
}

func (r transactionsRepo) Create(_ context.Context, t models.Transaction) (models.Transaction, error) {
	st := r.d.lock()
	defer r.d.unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt, t.UpdatedAt = r.d.stamp(), r.d.stamp()
	st.txs[t.ID] = copyTx(t)
	st.txOrder = append(st.txOrder, t.ID)
	return copyTx(t), nil
}

func (r transactionsRepo) GetByID(_ context.Context, id string) (models.Transaction, error) {
	st := r.d.lock()
	defer r.d.unlock()
	t, ok := st.txs[id]
	if !ok {
		return models.Transaction{}, apperr.NotFound("transaction not found")
	}
	return copyTx(t), nil
}

func (r transactionsRepo) GetForUpdate(ctx context.Context, id string) (models.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r transactionsRepo) Update(_ context.Context, t models.Transaction) error {
	st := r.d.lock()
	defer r.d.unlock()
	cur, ok := st.txs[t.ID]
	if !ok {
		return apperr.NotFound("transaction not found")
	}
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = r.d.stamp()
	st.txs[t.ID] = copyTx(t)
	return nil
}

func (r transactionsRepo) filter(keep func(models.Transaction) bool) []models.Transaction {
	st := r.d.lock()
	defer r.d.unlock()
	var out []models.Transaction
	for _, id := range st.txOrder {
		if t := st.txs[id]; keep(t) {
			out = append(out, copyTx(t))
		}
	}
	return out
}

func (r transactionsRepo) ListChildren(_ context.Context, parentID string) ([]models.Transaction, error) {
	return r.filter(func(t models.Transaction) bool {
		return t.ParentID != nil && *t.ParentID == parentID
	}), nil
}

func (r transactionsRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	out := r.filter(func(t models.Transaction) bool { return t.BuyerID == userID || t.SellerID == userID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return page(out, limit, offset), nil
}

func before(d *time.Time, now time.Time) bool { return d != nil && d.Before(now) }

// deadline is the deadline that applies to t's current status.
func deadline(t models.Transaction) *time.Time {
	switch t.Status {
	case models.TxnPending:
		return t.PaymentDeadline
	case models.TxnDepositPaid:
		return t.AppointmentDeadline
	case models.TxnShipped:
		return t.ConfirmationDeadline
	}
	return nil
}

func (r transactionsRepo) ListExpired(_ context.Context, now time.Time, skip []string, limit int) ([]models.Transaction, error) {
	skipped := make(map[string]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	out := r.filter(func(t models.Transaction) bool {
		return !skipped[t.ID] && before(deadline(t), now)
	})
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := deadline(out[i]), deadline(out[j])
		if !di.Equal(*dj) {
			return di.Before(*dj)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, 0), nil
}

type appointmentsRepo struct{ d *db }

func (r appointmentsRepo) Create(_ context.Context, a models.Appointment) (models.Appointment, error) {
	st := r.d.lock()
	defer r.d.unlock()
	if _, ok := st.appointments[a.TransactionID]; ok {
		return models.Appointment{}, apperr.Conflict("appointment already exists")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt, a.UpdatedAt = r.d.stamp(), r.d.stamp()
	st.appointments[a.TransactionID] = a
	return a, nil
}

func (r appointmentsRepo) GetByTransaction(_ context.Context, txID string) (models.Appointment, error) {
	st := r.d.lock()
	defer r.d.unlock()
	a, ok := st.appointments[txID]
	if !ok {
		return models.Appointment{}, apperr.NotFound("appointment not found")
	}
	return a, nil
}

func (r appointmentsRepo) Update(_ context.Context, a models.Appointment) error {
	st := r.d.lock()
	defer r.d.unlock()
	cur, ok := st.appointments[a.TransactionID]
	if !ok || cur.ID != a.ID {
		return apperr.NotFound("appointment not found")
	}
	a.UpdatedAt = r.d.stamp()
	st.appointments[a.TransactionID] = a
	return nil
}

type feesRepo struct{ d *db }

func (r feesRepo) GetBySaleType(_ context.Context, saleType models.SaleType) (models.Fee, error) {
	st := r.d.lock()
	defer r.d.unlock()
	f, ok := st.fees[saleType]
	if !ok {
		return models.Fee{}, apperr.NotFound("fee for " + string(saleType) + " not found")
	}
	return f, nil
}

type cartsRepo struct{ d *db }

func (r cartsRepo) AddItem(_ context.Context, it models.CartItem) (models.CartItem, error) {
	st := r.d.lock()
	defer r.d.unlock()
	for _, x := range st.cart {
		if x.UserID == it.UserID && x.Listing == it.Listing {
			return models.CartItem{}, apperr.Conflict("cart item already exists")
		}
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.CreatedAt = r.d.stamp()
	st.cart = append(st.cart, it)
	return it, nil
}

func (r cartsRepo) ListItems(_ context.Context, userID string) ([]models.CartItem, error) {
	st := r.d.lock()
	defer r.d.unlock()
	var out []models.CartItem
	for _, x := range st.cart {
		if x.UserID == userID {
			out = append(out, x)
		}
	}
	return out, nil
}

func (r cartsRepo) RemoveItem(_ context.Context, userID, itemID string) error {
	st := r.d.lock()
	defer r.d.unlock()
	for i, x := range st.cart {
		if x.ID == itemID && x.UserID == userID {
			st.cart = append(st.cart[:i:i], st.cart[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("cart item not found")
}

func (r cartsRepo) Clear(_ context.Context, userID string) error {
	st := r.d.lock()
	defer r.d.unlock()
	kept := st.cart[:0:0]
	for _, x := range st.cart {
		if x.UserID != userID {
			kept = append(kept, x)
		}
	}
	st.cart = kept
	return nil
}

type auditRepo struct{ d *db }

func (r auditRepo) Create(_ context.Context, l models.AuditLog) error {
	st := r.d.lock()
	defer r.d.unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = r.d.stamp()
	st.audit = append(st.audit, l)
	return nil
}
