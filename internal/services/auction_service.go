package services

import (
	"context"
	"fmt"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/ledger"
	"github.com/baharkarakas/evtrade-backend/internal/metrics"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/notify"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

type AuctionService struct{ *Core }

func NewAuctionService(c *Core) *AuctionService { return &AuctionService{Core: c} }

// PlaceBid records a bid on a live auction. A bidder's first bid on a listing
// also holds the listing's deposit from their wallet. Bids on one listing are
// serialized by the listing lock, so every accepted bid beats the previous one
// by at least the increment.
func (s *AuctionService) PlaceBid(ctx context.Context, ref models.ListingRef, bidderID string, amount int64) (models.Bid, error) {
	if !ref.Kind.Valid() || ref.ID == "" {
		return models.Bid{}, apperr.BadRequest("invalid listing reference")
	}
	if amount <= 0 {
		return models.Bid{}, apperr.BadRequest("amount must be > 0")
	}

	var bid models.Bid
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		listing, err := lockListing(ctx, r, ref)
		if err != nil {
			return err
		}
		if !listing.IsAuction {
			return apperr.NotFound("auction not found")
		}
		if listing.Status != models.ListingAuctionLive {
			return apperr.Forbidden("auction is not live")
		}
		if listing.AuctionEndAt != nil && !s.now().Before(*listing.AuctionEndAt) {
			return apperr.Forbidden("auction has ended")
		}
		if listing.SellerID == bidderID {
			return apperr.Forbidden("sellers cannot bid on their own listing")
		}

		floor := listing.StartingPrice
		highest, err := r.Bids.Highest(ctx, ref)
		if err != nil {
			return err
		}
		if highest != nil && highest.Amount > floor {
			floor = highest.Amount
		}
		if required := floor + listing.BidIncrement; amount < required {
			return apperr.BadRequest(fmt.Sprintf("bid must be at least %d", required))
		}

		if listing.DepositAmount > 0 {
			dep, err := r.Deposits.Get(ctx, ref, bidderID)
			if err != nil {
				return err
			}
			if dep == nil {
				if err := s.Ledger.Hold(ctx, r, bidderID, listing.DepositAmount,
					ledger.Memo{Description: "auction deposit for " + ref.String()}); err != nil {
					return err
				}
				if _, err := r.Deposits.Create(ctx, models.AuctionDeposit{
					Listing:  ref,
					BidderID: bidderID,
					Amount:   listing.DepositAmount,
					Status:   models.DepositPaid,
				}); err != nil {
					return err
				}
			}
		}

		bid, err = r.Bids.Create(ctx, models.Bid{Listing: ref, BidderID: bidderID, Amount: amount})
		return err
	})
	if err != nil {
		return models.Bid{}, err
	}
	metrics.BidsTotal.Inc()
	s.Log.Info("bid placed", "listing", ref.String(), "bidder_id", bidderID, "amount", amount)
	return bid, nil
}

func (s *AuctionService) Bids(ctx context.Context, ref models.ListingRef) ([]models.Bid, error) {
	return s.Store.Repos().Bids.ListByListing(ctx, ref)
}

// Approve puts an auction listing live.
func (s *AuctionService) Approve(ctx context.Context, ref models.ListingRef, adminID string) (models.Listing, error) {
	var out models.Listing
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		l, err := lockListing(ctx, r, ref)
		if err != nil {
			return err
		}
		if !l.IsAuction {
			return apperr.BadRequest("listing is not an auction")
		}
		if l.Status != models.ListingAuctionPendingApproval {
			return apperr.Conflict(fmt.Sprintf("auction is already %s", l.Status))
		}
		if l.AuctionEndAt == nil || !l.AuctionEndAt.After(s.now()) {
			return apperr.BadRequest("auction end time has passed")
		}
		if err := s.setListing(ctx, r, ref, models.ListingAuctionLive, adminID); err != nil {
			return err
		}
		l.Status = models.ListingAuctionLive
		out = l
		return nil
	})
	return out, err
}

// Close ends an auction. The highest bidder gets a PENDING auction transaction
// and the listing is reserved for them; every other bidder's deposit goes
// back to their available balance. Without bids the listing is delisted.
// It returns nil when nobody bid.
func (s *AuctionService) Close(ctx context.Context, ref models.ListingRef, actorID string) (*models.Transaction, error) {
	var won *models.Transaction
	err := s.Store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		won, err = s.closeAuction(ctx, r, ref, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if won == nil {
		metrics.AuctionsClosed.WithLabelValues("no_bids").Inc()
		return nil, nil
	}
	metrics.AuctionsClosed.WithLabelValues("won").Inc()
	s.notify(ctx, won.BuyerID, notify.EventAuctionWon, won.ID,
		fmt.Sprintf("you won %s for %d; pay before %s", ref, won.FinalPrice, won.PaymentDeadline.Format("2006-01-02 15:04")))
	return won, nil
}

func (c *Core) closeAuction(ctx context.Context, r repo.Repos, ref models.ListingRef, actorID string) (*models.Transaction, error) {
	l, err := lockListing(ctx, r, ref)
	if err != nil {
		return nil, err
	}
	if !l.IsAuction {
		return nil, apperr.BadRequest("listing is not an auction")
	}
	if l.Status != models.ListingAuctionLive {
		return nil, apperr.Conflict(fmt.Sprintf("auction is %s", l.Status))
	}

	highest, err := r.Bids.Highest(ctx, ref)
	if err != nil {
		return nil, err
	}
	winner := ""
	if highest != nil {
		winner = highest.BidderID
	}
	if err := c.refundDeposits(ctx, r, ref, winner); err != nil {
		return nil, err
	}
	if highest == nil {
		return nil, c.setListing(ctx, r, ref, models.ListingDelisted, actorID)
	}

	tx, err := r.Transactions.Create(ctx, models.Transaction{
		BuyerID:         highest.BidderID,
		SellerID:        l.SellerID,
		Listing:         &ref,
		Type:            models.TxnAuction,
		Status:          models.TxnPending,
		FinalPrice:      highest.Amount,
		AmountDue:       highest.Amount,
		PaymentMethod:   models.PayWallet,
		PaymentDeadline: at(c.now().Add(c.Policy.PaymentWindow)),
	})
	if err != nil {
		return nil, err
	}
	if err := audit(ctx, r, "transaction", tx.ID, actorID, "auction_won",
		map[string]any{"listing": ref.String(), "amount": highest.Amount}); err != nil {
		return nil, err
	}
	if err := c.setListing(ctx, r, ref, models.ListingReserved, actorID); err != nil {
		return nil, err
	}
	return &tx, nil
}

// refundDeposits returns every PAID deposit on ref except keep's.
func (c *Core) refundDeposits(ctx context.Context, r repo.Repos, ref models.ListingRef, keep string) error {
	deps, err := r.Deposits.ListPaid(ctx, ref)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if d.BidderID == keep {
			continue
		}
		if err := c.Ledger.Unhold(ctx, r, d.BidderID, d.Amount,
			ledger.Memo{Description: "auction deposit refund for " + ref.String()}); err != nil {
			return err
		}
		if err := r.Deposits.UpdateStatus(ctx, d.ID, models.DepositRefunded); err != nil {
			return err
		}
	}
	return nil
}
