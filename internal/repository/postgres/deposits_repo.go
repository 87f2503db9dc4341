package postgres

import (
	"context"
	"errors"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type depositsRepo struct{ q querier }

const depositCols = `id, listing_kind, listing_id, bidder_id, amount, status, created_at, updated_at`

func scanDeposit(row interface{ Scan(...any) error }) (models.AuctionDeposit, error) {
	var d models.AuctionDeposit
	err := row.Scan(&d.ID, &d.Listing.Kind, &d.Listing.ID, &d.BidderID, &d.Amount, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *depositsRepo) Create(ctx context.Context, d models.AuctionDeposit) (models.AuctionDeposit, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	out, err := scanDeposit(r.q.QueryRow(ctx,
		`INSERT INTO auction_deposits(id, listing_kind, listing_id, bidder_id, amount, status)
		 VALUES($1,$2,$3,$4,$5,$6)
		 RETURNING `+depositCols,
		d.ID, d.Listing.Kind, d.Listing.ID, d.BidderID, d.Amount, d.Status,
	))
	return out, mapErr(err, "auction deposit")
}

func (r *depositsRepo) Get(ctx context.Context, ref models.ListingRef, bidderID string) (*models.AuctionDeposit, error) {
	d, err := scanDeposit(r.q.QueryRow(ctx,
		`SELECT `+depositCols+` FROM auction_deposits
		  WHERE listing_kind=$1 AND listing_id=$2 AND bidder_id=$3`,
		ref.Kind, ref.ID, bidderID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "auction deposit")
	}
	return &d, nil
}

func (r *depositsRepo) ListPaid(ctx context.Context, ref models.ListingRef) ([]models.AuctionDeposit, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+depositCols+` FROM auction_deposits
		  WHERE listing_kind=$1 AND listing_id=$2 AND status=$3
		  ORDER BY created_at`,
		ref.Kind, ref.ID, models.DepositPaid,
	)
	if err != nil {
		return nil, mapErr(err, "auction deposit")
	}
	defer rows.Close()

	var out []models.AuctionDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *depositsRepo) UpdateStatus(ctx context.Context, id string, status models.AuctionDepositStatus) error {
	_, err := r.q.Exec(ctx, `UPDATE auction_deposits SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	return mapErr(err, "auction deposit")
}
