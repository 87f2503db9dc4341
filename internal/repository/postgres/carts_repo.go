package postgres

import (
	"context"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
)

type cartsRepo struct{ q querier }

func (r *cartsRepo) AddItem(ctx context.Context, it models.CartItem) (models.CartItem, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	err := r.q.QueryRow(ctx,
		`INSERT INTO cart_items(id, user_id, listing_kind, listing_id)
		 VALUES($1,$2,$3,$4)
		 RETURNING created_at`,
		it.ID, it.UserID, it.Listing.Kind, it.Listing.ID,
	).Scan(&it.CreatedAt)
	return it, mapErr(err, "cart item")
}

func (r *cartsRepo) ListItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, user_id, listing_kind, listing_id, created_at
		   FROM cart_items WHERE user_id=$1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, mapErr(err, "cart item")
	}
	defer rows.Close()

	var out []models.CartItem
	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.Listing.Kind, &it.Listing.ID, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *cartsRepo) RemoveItem(ctx context.Context, userID, itemID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE id=$1 AND user_id=$2`, itemID, userID)
	if err != nil {
		return mapErr(err, "cart item")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart item not found")
	}
	return nil
}

func (r *cartsRepo) Clear(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return mapErr(err, "cart item")
}
