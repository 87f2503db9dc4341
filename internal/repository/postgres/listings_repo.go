package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
)

// Vehicles and batteries live in separate tables with the same economic columns.
type listingsRepo struct{ q querier }

const listingCols = `id, seller_id, title, price, status, is_auction, starting_price, bid_increment,
	deposit_amount, auction_end_at, created_at, updated_at`

func tableFor(kind models.ListingKind) (string, error) {
	switch kind {
	case models.KindVehicle:
		return "vehicles", nil
	case models.KindBattery:
		return "batteries", nil
	}
	return "", apperr.BadRequest(fmt.Sprintf("unknown listing kind %q", kind))
}

func scanListing(kind models.ListingKind, row interface{ Scan(...any) error }) (models.Listing, error) {
	l := models.Listing{Ref: models.ListingRef{Kind: kind}}
	err := row.Scan(&l.Ref.ID, &l.SellerID, &l.Title, &l.Price, &l.Status, &l.IsAuction, &l.StartingPrice,
		&l.BidIncrement, &l.DepositAmount, &l.AuctionEndAt, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *listingsRepo) Create(ctx context.Context, l models.Listing) (models.Listing, error) {
	table, err := tableFor(l.Ref.Kind)
	if err != nil {
		return models.Listing{}, err
	}
	if l.Ref.ID == "" {
		l.Ref.ID = uuid.NewString()
	}
	out, err := scanListing(l.Ref.Kind, r.q.QueryRow(ctx,
		`INSERT INTO `+table+`(id, seller_id, title, price, status, is_auction, starting_price,
		   bid_increment, deposit_amount, auction_end_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING `+listingCols,
		l.Ref.ID, l.SellerID, l.Title, l.Price, l.Status, l.IsAuction, l.StartingPrice,
		l.BidIncrement, l.DepositAmount, l.AuctionEndAt,
	))
	return out, mapErr(err, "listing")
}

func (r *listingsRepo) get(ctx context.Context, ref models.ListingRef, suffix string) (models.Listing, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return models.Listing{}, err
	}
	l, err := scanListing(ref.Kind, r.q.QueryRow(ctx,
		`SELECT `+listingCols+` FROM `+table+` WHERE id=$1`+suffix, ref.ID))
	return l, mapErr(err, "listing")
}

func (r *listingsRepo) Get(ctx context.Context, ref models.ListingRef) (models.Listing, error) {
	return r.get(ctx, ref, "")
}

func (r *listingsRepo) GetForUpdate(ctx context.Context, ref models.ListingRef) (models.Listing, error) {
	return r.get(ctx, ref, " FOR UPDATE")
}

func (r *listingsRepo) UpdateStatus(ctx context.Context, ref models.ListingRef, status models.ListingStatus) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `UPDATE `+table+` SET status=$2, updated_at=now() WHERE id=$1`, ref.ID, status)
	if err != nil {
		return mapErr(err, "listing")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("listing not found")
	}
	return nil
}

func (r *listingsRepo) ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]models.Listing, error) {
	var out []models.Listing
	for _, kind := range []models.ListingKind{models.KindVehicle, models.KindBattery} {
		table, _ := tableFor(kind)
		rows, err := r.q.Query(ctx,
			`SELECT `+listingCols+` FROM `+table+`
			  WHERE status=$1 AND auction_end_at IS NOT NULL AND auction_end_at < $2
			  ORDER BY auction_end_at
			  LIMIT $3`,
			models.ListingAuctionLive, now, limit,
		)
		if err != nil {
			return nil, mapErr(err, "listing")
		}
		for rows.Next() {
			l, err := scanListing(kind, rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
