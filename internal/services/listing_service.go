package services

import (
	"context"
	"strings"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

type ListingService struct{ *Core }

func NewListingService(c *Core) *ListingService { return &ListingService{Core: c} }

// NewListing is what a seller submits.
type NewListing struct {
	Kind          models.ListingKind
	Title         string
	Price         int64
	IsAuction     bool
	StartingPrice int64
	BidIncrement  int64
	DepositAmount int64
	AuctionEndAt  *time.Time
}

// Create lists a vehicle or battery. Auctions wait for an operator's
// approval before they take bids.
func (s *ListingService) Create(ctx context.Context, sellerID string, in NewListing) (models.Listing, error) {
	if !in.Kind.Valid() {
		return models.Listing{}, apperr.BadRequest("kind must be VEHICLE or BATTERY")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Listing{}, apperr.BadRequest("title is required")
	}
	l := models.Listing{
		Ref:       models.ListingRef{Kind: in.Kind},
		SellerID:  sellerID,
		Title:     title,
		Price:     in.Price,
		Status:    models.ListingAvailable,
		IsAuction: in.IsAuction,
	}
	if in.IsAuction {
		switch {
		case in.StartingPrice <= 0:
			return models.Listing{}, apperr.BadRequest("starting price must be > 0")
		case in.BidIncrement <= 0:
			return models.Listing{}, apperr.BadRequest("bid increment must be > 0")
		case in.DepositAmount < 0:
			return models.Listing{}, apperr.BadRequest("deposit must be >= 0")
		case in.AuctionEndAt == nil || !in.AuctionEndAt.After(s.now()):
			return models.Listing{}, apperr.BadRequest("auction end must be in the future")
		}
		l.Status = models.ListingAuctionPendingApproval
		l.Price = in.StartingPrice
		l.StartingPrice = in.StartingPrice
		l.BidIncrement = in.BidIncrement
		l.DepositAmount = in.DepositAmount
		l.AuctionEndAt = in.AuctionEndAt
	} else if in.Price <= 0 {
		return models.Listing{}, apperr.BadRequest("price must be > 0")
	}

	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		l, err = r.Listings.Create(ctx, l)
		if err != nil {
			return err
		}
		return audit(ctx, r, "listing", l.Ref.String(), sellerID, "created",
			map[string]any{"status": string(l.Status), "price": l.Price})
	})
	if err != nil {
		return models.Listing{}, err
	}
	s.Log.Info("listing created", "listing", l.Ref.String(), "seller_id", sellerID, "auction", l.IsAuction)
	return l, nil
}

func (s *ListingService) Get(ctx context.Context, ref models.ListingRef) (models.Listing, error) {
	if !ref.Kind.Valid() {
		return models.Listing{}, apperr.NotFound("listing not found")
	}
	return s.Store.Repos().Listings.Get(ctx, ref)
}

// AddToCart puts an available battery in the buyer's cart.
func (s *ListingService) AddToCart(ctx context.Context, userID string, ref models.ListingRef) (models.CartItem, error) {
	r := s.Store.Repos()
	l, err := s.Get(ctx, ref)
	if err != nil {
		return models.CartItem{}, err
	}
	switch {
	case l.IsAuction:
		return models.CartItem{}, apperr.BadRequest("auction listings are sold by bidding")
	case l.Ref.Kind == models.KindVehicle:
		return models.CartItem{}, apperr.BadRequest("vehicles must be checked out individually")
	case l.SellerID == userID:
		return models.CartItem{}, apperr.BadRequest("cannot buy your own listing")
	case l.Status != models.ListingAvailable:
		return models.CartItem{}, apperr.Conflict("listing is not available")
	}
	return r.Carts.AddItem(ctx, models.CartItem{UserID: userID, Listing: ref})
}

func (s *ListingService) Cart(ctx context.Context, userID string) ([]models.CartItem, error) {
	return s.Store.Repos().Carts.ListItems(ctx, userID)
}

func (s *ListingService) RemoveFromCart(ctx context.Context, userID, itemID string) error {
	return s.Store.Repos().Carts.RemoveItem(ctx, userID, itemID)
}
