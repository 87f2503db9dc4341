package postgres

import (
	"context"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/google/uuid"
)

type usersRepo struct{ q querier }

const userCols = `id, username, email, password_hash, role, created_at, updated_at`

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.q.QueryRow(ctx,
		`INSERT INTO users(id, username, email, password_hash, role)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING `+userCols,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, mapErr(err, "user")
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, mapErr(err, "user")
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, mapErr(err, "user")
}

func (r *usersRepo) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, mapErr(err, "user")
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
