// Package memory is an in-process repository.Store used by service tests.
// Units of work are serialized by one mutex and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

type state struct {
	users        map[string]models.User
	wallets      map[string]models.Wallet // by user id
	ledger       map[string]models.FinancialTransaction
	ledgerOrder  []string
	listings     map[models.ListingRef]models.Listing
	bids         []models.Bid
	deposits     map[string]models.AuctionDeposit
	txs          map[string]models.Transaction
	txOrder      []string
	appointments map[string]models.Appointment // by transaction id
	fees         map[models.SaleType]models.Fee
	cart         []models.CartItem
	audit        []models.AuditLog
}

func newState() *state {
	return &state{
		users:        map[string]models.User{},
		wallets:      map[string]models.Wallet{},
		ledger:       map[string]models.FinancialTransaction{},
		listings:     map[models.ListingRef]models.Listing{},
		deposits:     map[string]models.AuctionDeposit{},
		txs:          map[string]models.Transaction{},
		appointments: map[string]models.Appointment{},
		fees:         map[models.SaleType]models.Fee{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:        cloneMap(s.users),
		wallets:      cloneMap(s.wallets),
		ledger:       cloneMap(s.ledger),
		ledgerOrder:  append([]string(nil), s.ledgerOrder...),
		listings:     cloneMap(s.listings),
		bids:         append([]models.Bid(nil), s.bids...),
		deposits:     cloneMap(s.deposits),
		txs:          cloneMap(s.txs),
		txOrder:      append([]string(nil), s.txOrder...),
		appointments: cloneMap(s.appointments),
		fees:         cloneMap(s.fees),
		cart:         append([]models.CartItem(nil), s.cart...),
		audit:        append([]models.AuditLog(nil), s.audit...),
	}
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ repo.Store = (*Store)(nil)

func New() *Store { return &Store{st: newState(), now: time.Now} }

// SetClock makes created_at and updated_at stamps follow now.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) WithTx(ctx context.Context, fn func(r repo.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(s.bind(noLock{})); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Repos() repo.Repos { return s.bind(&s.mu) }

// AuditLogs returns every audit row written so far.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.st.audit...)
}

// SumBalances returns the total of available plus locked funds across all wallets.
func (s *Store) SumBalances() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, w := range s.st.wallets {
		total += w.AvailableBalance + w.LockedBalance
	}
	return total
}

// SetFee installs a commission rate.
func (s *Store) SetFee(f models.Fee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.fees[f.SaleType] = f
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// db is shared by every repository of one binding. lk is a no-op inside WithTx.
type db struct {
	s  *Store
	lk sync.Locker
}

func (d *db) lock() *state {
	d.lk.Lock()
	return d.s.st
}

func (d *db) unlock() { d.lk.Unlock() }

func (d *db) stamp() time.Time { return d.s.now() }

func (s *Store) bind(lk sync.Locker) repo.Repos {
	d := &db{s: s, lk: lk}
	return repo.Repos{
		Users:        usersRepo{d},
		Wallets:      walletsRepo{d},
		Ledger:       ledgerRepo{d},
		Listings:     listingsRepo{d},
		Bids:         bidsRepo{d},
		Deposits:     depositsRepo{d},
		Transactions: transactionsRepo{d},
		Appointments: appointmentsRepo{d},
		Fees:         feesRepo{d},
		Carts:        cartsRepo{d},
		AuditLogs:    auditRepo{d},
		Locks:        lockerRepo{},
	}
}

type lockerRepo struct{}

// Lock is a no-op: WithTx already runs one unit of work at a time.
func (lockerRepo) Lock(context.Context, string) error { return nil }
