package postgres

import (
	"context"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
)

type walletsRepo struct{ q querier }

const walletCols = `id, user_id, available_balance, locked_balance, updated_at`

func scanWallet(row interface{ Scan(...any) error }) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.AvailableBalance, &w.LockedBalance, &w.UpdatedAt)
	return w, err
}

func (r *walletsRepo) Create(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx,
		`INSERT INTO wallets(id, user_id, available_balance, locked_balance, updated_at)
		 VALUES($1, $2, 0, 0, now())
		 RETURNING `+walletCols,
		uuid.NewString(), userID,
	))
	return w, mapErr(err, "wallet")
}

func (r *walletsRepo) Get(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE user_id=$1`, userID))
	return w, mapErr(err, "wallet")
}

func (r *walletsRepo) GetForUpdate(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx,
		`SELECT `+walletCols+` FROM wallets WHERE user_id=$1 FOR UPDATE`, userID))
	return w, mapErr(err, "wallet")
}

func (r *walletsRepo) GetByIDForUpdate(ctx context.Context, walletID string) (models.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx,
		`SELECT `+walletCols+` FROM wallets WHERE id=$1 FOR UPDATE`, walletID))
	return w, mapErr(err, "wallet")
}

func (r *walletsRepo) Update(ctx context.Context, w models.Wallet) error {
	_, err := r.q.Exec(ctx,
		`UPDATE wallets
		    SET available_balance = $2,
		        locked_balance = $3,
		        updated_at = now()
		  WHERE id = $1`,
		w.ID, w.AvailableBalance, w.LockedBalance,
	)
	return mapErr(err, "wallet")
}
