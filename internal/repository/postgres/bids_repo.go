package postgres

import (
	"context"
	"errors"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type bidsRepo struct{ q querier }

const bidCols = `id, listing_kind, listing_id, bidder_id, amount, created_at`

func scanBid(row interface{ Scan(...any) error }) (models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.ID, &b.Listing.Kind, &b.Listing.ID, &b.BidderID, &b.Amount, &b.CreatedAt)
	return b, err
}

func (r *bidsRepo) Create(ctx context.Context, b models.Bid) (models.Bid, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	out, err := scanBid(r.q.QueryRow(ctx,
		`INSERT INTO bids(id, listing_kind, listing_id, bidder_id, amount)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING `+bidCols,
		b.ID, b.Listing.Kind, b.Listing.ID, b.BidderID, b.Amount,
	))
	return out, mapErr(err, "bid")
}

func (r *bidsRepo) Highest(ctx context.Context, ref models.ListingRef) (*models.Bid, error) {
	b, err := scanBid(r.q.QueryRow(ctx,
		`SELECT `+bidCols+`
		   FROM bids
		  WHERE listing_kind=$1 AND listing_id=$2
		  ORDER BY amount DESC, created_at ASC
		  LIMIT 1`,
		ref.Kind, ref.ID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "bid")
	}
	return &b, nil
}

func (r *bidsRepo) ListByListing(ctx context.Context, ref models.ListingRef) ([]models.Bid, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+bidCols+` FROM bids WHERE listing_kind=$1 AND listing_id=$2 ORDER BY created_at, amount`,
		ref.Kind, ref.ID)
	if err != nil {
		return nil, mapErr(err, "bid")
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
