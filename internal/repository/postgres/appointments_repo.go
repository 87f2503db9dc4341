package postgres

import (
	"context"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
)

type appointmentsRepo struct{ q querier }

const appointmentCols = `id, transaction_id, buyer_id, seller_id, deadline, scheduled_at, location, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.ID, &a.TransactionID, &a.BuyerID, &a.SellerID, &a.Deadline, &a.ScheduledAt,
		&a.Location, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *appointmentsRepo) Create(ctx context.Context, a models.Appointment) (models.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	out, err := scanAppointment(r.q.QueryRow(ctx,
		`INSERT INTO appointments(id, transaction_id, buyer_id, seller_id, deadline, scheduled_at, location)
		 VALUES($1,$2,$3,$4,$5,$6,$7)
		 RETURNING `+appointmentCols,
		a.ID, a.TransactionID, a.BuyerID, a.SellerID, a.Deadline, a.ScheduledAt, a.Location,
	))
	return out, mapErr(err, "appointment")
}

func (r *appointmentsRepo) GetByTransaction(ctx context.Context, txID string) (models.Appointment, error) {
	a, err := scanAppointment(r.q.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE transaction_id=$1`, txID))
	return a, mapErr(err, "appointment")
}

func (r *appointmentsRepo) Update(ctx context.Context, a models.Appointment) error {
	_, err := r.q.Exec(ctx,
		`UPDATE appointments SET scheduled_at=$2, location=$3, updated_at=now() WHERE id=$1`,
		a.ID, a.ScheduledAt, a.Location)
	return mapErr(err, "appointment")
}
