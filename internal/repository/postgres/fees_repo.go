package postgres

import (
	"context"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/shopspring/decimal"
)

type feesRepo struct{ q querier }

func (r *feesRepo) GetBySaleType(ctx context.Context, saleType models.SaleType) (models.Fee, error) {
	var pct string
	err := r.q.QueryRow(ctx, `SELECT percentage::text FROM fees WHERE sale_type=$1`, saleType).Scan(&pct)
	if err != nil {
		return models.Fee{}, mapErr(err, "fee for "+string(saleType))
	}
	d, err := decimal.NewFromString(pct)
	if err != nil {
		return models.Fee{}, apperr.Internal("bad fee percentage", err)
	}
	return models.Fee{SaleType: saleType, Percentage: d}, nil
}
