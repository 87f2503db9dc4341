package postgres

import (
	"context"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
)

type transactionsRepo struct{ q querier }

const txCols = `id, parent_id, buyer_id, seller_id, vehicle_id, battery_id, type, status,
	final_price, amount_due, paid_amount, payment_method, gateway_trans_id,
	payment_deadline, appointment_deadline, confirmation_deadline,
	dispute_reason, dispute_evidence, disputed_at, contract_url, created_at, updated_at`

func scanTx(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var (
		t                    models.Transaction
		sellerID             *string
		vehicleID, batteryID *string
	)
	err := row.Scan(&t.ID, &t.ParentID, &t.BuyerID, &sellerID, &vehicleID, &batteryID, &t.Type, &t.Status,
		&t.FinalPrice, &t.AmountDue, &t.PaidAmount, &t.PaymentMethod, &t.GatewayTransID,
		&t.PaymentDeadline, &t.AppointmentDeadline, &t.ConfirmationDeadline,
		&t.DisputeReason, &t.DisputeEvidence, &t.DisputedAt, &t.ContractURL, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if sellerID != nil {
		t.SellerID = *sellerID
	}
	switch {
	case vehicleID != nil:
		t.Listing = &models.ListingRef{Kind: models.KindVehicle, ID: *vehicleID}
	case batteryID != nil:
		t.Listing = &models.ListingRef{Kind: models.KindBattery, ID: *batteryID}
	}
	return t, nil
}

// listingColumns splits a ListingRef into the vehicle_id and battery_id columns.
func listingColumns(ref *models.ListingRef) (vehicleID, batteryID *string) {
	if ref == nil {
		return nil, nil
	}
	id := ref.ID
	if ref.Kind == models.KindVehicle {
		return &id, nil
	}
	return nil, &id
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *transactionsRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	vehicleID, batteryID := listingColumns(t.Listing)
	out, err := scanTx(r.q.QueryRow(ctx,
		`INSERT INTO transactions(id, parent_id, buyer_id, seller_id, vehicle_id, battery_id, type, status,
		   final_price, amount_due, paid_amount, payment_method, gateway_trans_id,
		   payment_deadline, appointment_deadline, confirmation_deadline)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 RETURNING `+txCols,
		t.ID, t.ParentID, t.BuyerID, nullable(t.SellerID), vehicleID, batteryID, t.Type, t.Status,
		t.FinalPrice, t.AmountDue, t.PaidAmount, t.PaymentMethod, t.GatewayTransID,
		t.PaymentDeadline, t.AppointmentDeadline, t.ConfirmationDeadline,
	))
	if err != nil {
		return models.Transaction{}, mapErr(err, "transaction")
	}
	for _, it := range t.Items {
		if _, err := r.q.Exec(ctx,
			`INSERT INTO transaction_items(transaction_id, listing_kind, listing_id, price) VALUES($1,$2,$3,$4)`,
			out.ID, it.Listing.Kind, it.Listing.ID, it.Price,
		); err != nil {
			return models.Transaction{}, mapErr(err, "transaction item")
		}
	}
	out.Items = t.Items
	return out, nil
}

func (r *transactionsRepo) items(ctx context.Context, txID string) ([]models.TransactionItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT listing_kind, listing_id, price FROM transaction_items WHERE transaction_id=$1 ORDER BY id`, txID)
	if err != nil {
		return nil, mapErr(err, "transaction item")
	}
	defer rows.Close()

	var out []models.TransactionItem
	for rows.Next() {
		var it models.TransactionItem
		if err := rows.Scan(&it.Listing.Kind, &it.Listing.ID, &it.Price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) getOne(ctx context.Context, sql string, args ...any) (models.Transaction, error) {
	t, err := scanTx(r.q.QueryRow(ctx, sql, args...))
	if err != nil {
		return models.Transaction{}, mapErr(err, "transaction")
	}
	if t.Listing == nil {
		if t.Items, err = r.items(ctx, t.ID); err != nil {
			return models.Transaction{}, err
		}
	}
	return t, nil
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return r.getOne(ctx, `SELECT `+txCols+` FROM transactions WHERE id=$1`, id)
}

func (r *transactionsRepo) GetForUpdate(ctx context.Context, id string) (models.Transaction, error) {
	return r.getOne(ctx, `SELECT `+txCols+` FROM transactions WHERE id=$1 FOR UPDATE`, id)
}

func (r *transactionsRepo) Update(ctx context.Context, t models.Transaction) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE transactions
		    SET status = $2,
		        final_price = $3,
		        amount_due = $4,
		        paid_amount = $5,
		        payment_method = $6,
		        gateway_trans_id = $7,
		        payment_deadline = $8,
		        appointment_deadline = $9,
		        confirmation_deadline = $10,
		        dispute_reason = $11,
		        dispute_evidence = $12,
		        disputed_at = $13,
		        contract_url = $14,
		        updated_at = now()
		  WHERE id = $1`,
		t.ID, t.Status, t.FinalPrice, t.AmountDue, t.PaidAmount, t.PaymentMethod, t.GatewayTransID,
		t.PaymentDeadline, t.AppointmentDeadline, t.ConfirmationDeadline,
		t.DisputeReason, t.DisputeEvidence, t.DisputedAt, t.ContractURL,
	)
	if err != nil {
		return mapErr(err, "transaction")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("transaction not found")
	}
	return nil
}

// list collects all rows before loading cart items so the connection is free for the follow-up queries.
func (r *transactionsRepo) list(ctx context.Context, sql string, args ...any) ([]models.Transaction, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err, "transaction")
	}
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Listing != nil {
			continue
		}
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *transactionsRepo) ListChildren(ctx context.Context, parentID string) ([]models.Transaction, error) {
	return r.list(ctx, `SELECT `+txCols+` FROM transactions WHERE parent_id=$1 ORDER BY created_at, id`, parentID)
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	return r.list(ctx,
		`SELECT `+txCols+`
		   FROM transactions
		  WHERE buyer_id=$1 OR seller_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
}

func (r *transactionsRepo) ListExpired(ctx context.Context, now time.Time, skip []string, limit int) ([]models.Transaction, error) {
	if skip == nil {
		skip = []string{}
	}
	return r.list(ctx,
		`SELECT `+txCols+`
		   FROM (SELECT t.*,
		                CASE status
		                  WHEN 'PENDING' THEN payment_deadline
		                  WHEN 'DEPOSIT_PAID' THEN appointment_deadline
		                  WHEN 'SHIPPED' THEN confirmation_deadline
		                END AS deadline
		           FROM transactions t) x
		  WHERE deadline < $1
		    AND NOT (id::text = ANY($2::text[]))
		  ORDER BY deadline, id
		  LIMIT $3`,
		now, skip, limit,
	)
}
