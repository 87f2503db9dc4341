package repository

import (
	"context"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/models"
)

// Reads ending in ForUpdate lock the row until the surrounding unit of work ends.
// Missing rows are reported as apperr NotFound errors.

type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type Wallets interface {
	Create(ctx context.Context, userID string) (models.Wallet, error)
	Get(ctx context.Context, userID string) (models.Wallet, error)
	GetForUpdate(ctx context.Context, userID string) (models.Wallet, error)
	GetByIDForUpdate(ctx context.Context, walletID string) (models.Wallet, error)
	Update(ctx context.Context, w models.Wallet) error
}

type FinancialTransactions interface {
	Create(ctx context.Context, ft models.FinancialTransaction) (models.FinancialTransaction, error)
	GetByID(ctx context.Context, id string) (models.FinancialTransaction, error)
	GetForUpdate(ctx context.Context, id string) (models.FinancialTransaction, error)
	UpdateStatus(ctx context.Context, id string, status models.FinancialTxStatus, gatewayTransID *string) error
	// FindByGatewayTransID returns nil when no entry carries the gateway's transaction id.
	FindByGatewayTransID(ctx context.Context, gw models.Gateway, transID string) (*models.FinancialTransaction, error)
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.FinancialTransaction, error)
}

type Listings interface {
	Create(ctx context.Context, l models.Listing) (models.Listing, error)
	Get(ctx context.Context, ref models.ListingRef) (models.Listing, error)
	GetForUpdate(ctx context.Context, ref models.ListingRef) (models.Listing, error)
	UpdateStatus(ctx context.Context, ref models.ListingRef, status models.ListingStatus) error
	ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]models.Listing, error)
}

type Bids interface {
	Create(ctx context.Context, b models.Bid) (models.Bid, error)
	// Highest returns nil when the listing has no bids yet.
	Highest(ctx context.Context, ref models.ListingRef) (*models.Bid, error)
	ListByListing(ctx context.Context, ref models.ListingRef) ([]models.Bid, error)
}

type AuctionDeposits interface {
	Create(ctx context.Context, d models.AuctionDeposit) (models.AuctionDeposit, error)
	// Get returns nil when the bidder never paid a deposit for the listing.
	Get(ctx context.Context, ref models.ListingRef, bidderID string) (*models.AuctionDeposit, error)
	ListPaid(ctx context.Context, ref models.ListingRef) ([]models.AuctionDeposit, error)
	UpdateStatus(ctx context.Context, id string, status models.AuctionDepositStatus) error
}

type Transactions interface {
	Create(ctx context.Context, t models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	GetForUpdate(ctx context.Context, id string) (models.Transaction, error)
	Update(ctx context.Context, t models.Transaction) error
	ListChildren(ctx context.Context, parentID string) ([]models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
	// ListExpired returns transactions whose deadline for their current status is before now,
	// earliest deadline first, leaving out the ids in skip.
	ListExpired(ctx context.Context, now time.Time, skip []string, limit int) ([]models.Transaction, error)
}

type Appointments interface {
	Create(ctx context.Context, a models.Appointment) (models.Appointment, error)
	GetByTransaction(ctx context.Context, txID string) (models.Appointment, error)
	Update(ctx context.Context, a models.Appointment) error
}

type Fees interface {
	GetBySaleType(ctx context.Context, saleType models.SaleType) (models.Fee, error)
}

type Carts interface {
	AddItem(ctx context.Context, it models.CartItem) (models.CartItem, error)
	ListItems(ctx context.Context, userID string) ([]models.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

type Locker interface {
	// Lock takes an exclusive lock on key that is held until the unit of work ends.
	Lock(ctx context.Context, key string) error
}

// Repos groups the repositories bound to one unit of work.
type Repos struct {
	Users        Users
	Wallets      Wallets
	Ledger       FinancialTransactions
	Listings     Listings
	Bids         Bids
	Deposits     AuctionDeposits
	Transactions Transactions
	Appointments Appointments
	Fees         Fees
	Carts        Carts
	AuditLogs    AuditLogs
	Locks        Locker
}

// Store runs units of work. Everything fn writes through r commits together or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(r Repos) error) error
	// Repos returns repositories that run each statement on its own.
	Repos() Repos
}
