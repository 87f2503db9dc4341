package postgres

import (
	"context"
	"errors"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ledgerRepo struct{ q querier }

const finTxCols = `id, wallet_id, amount, type, status, gateway, gateway_trans_id, description, created_at, updated_at`

func scanFinTx(row interface{ Scan(...any) error }) (models.FinancialTransaction, error) {
	var ft models.FinancialTransaction
	err := row.Scan(&ft.ID, &ft.WalletID, &ft.Amount, &ft.Type, &ft.Status, &ft.Gateway,
		&ft.GatewayTransID, &ft.Description, &ft.CreatedAt, &ft.UpdatedAt)
	return ft, err
}

func (r *ledgerRepo) Create(ctx context.Context, ft models.FinancialTransaction) (models.FinancialTransaction, error) {
	if ft.ID == "" {
		ft.ID = uuid.NewString()
	}
	out, err := scanFinTx(r.q.QueryRow(ctx,
		`INSERT INTO financial_transactions(id, wallet_id, amount, type, status, gateway, gateway_trans_id, description)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING `+finTxCols,
		ft.ID, ft.WalletID, ft.Amount, ft.Type, ft.Status, ft.Gateway, ft.GatewayTransID, ft.Description,
	))
	return out, mapErr(err, "financial transaction")
}

func (r *ledgerRepo) GetByID(ctx context.Context, id string) (models.FinancialTransaction, error) {
	ft, err := scanFinTx(r.q.QueryRow(ctx, `SELECT `+finTxCols+` FROM financial_transactions WHERE id=$1`, id))
	return ft, mapErr(err, "financial transaction")
}

func (r *ledgerRepo) GetForUpdate(ctx context.Context, id string) (models.FinancialTransaction, error) {
	ft, err := scanFinTx(r.q.QueryRow(ctx,
		`SELECT `+finTxCols+` FROM financial_transactions WHERE id=$1 FOR UPDATE`, id))
	return ft, mapErr(err, "financial transaction")
}

func (r *ledgerRepo) UpdateStatus(ctx context.Context, id string, status models.FinancialTxStatus, gatewayTransID *string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE financial_transactions
		    SET status = $2,
		        gateway_trans_id = COALESCE($3, gateway_trans_id),
		        updated_at = now()
		  WHERE id = $1`,
		id, status, gatewayTransID,
	)
	return mapErr(err, "financial transaction")
}

func (r *ledgerRepo) FindByGatewayTransID(ctx context.Context, gw models.Gateway, transID string) (*models.FinancialTransaction, error) {
	ft, err := scanFinTx(r.q.QueryRow(ctx,
		`SELECT `+finTxCols+`
		   FROM financial_transactions
		  WHERE gateway=$1 AND gateway_trans_id=$2
		  ORDER BY created_at
		  LIMIT 1`,
		gw, transID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "financial transaction")
	}
	return &ft, nil
}

func (r *ledgerRepo) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.FinancialTransaction, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+finTxCols+`
		   FROM financial_transactions
		  WHERE wallet_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, mapErr(err, "financial transaction")
	}
	defer rows.Close()

	var out []models.FinancialTransaction
	for rows.Next() {
		ft, err := scanFinTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, rows.Err()
}
