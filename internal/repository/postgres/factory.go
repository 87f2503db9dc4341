package postgres

import (
	"context"
	"errors"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

var _ repo.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Repos() repo.Repos { return bind(s.pool) }

// WithTx runs fn inside one read-committed transaction. Rows read with
// ForUpdate and advisory locks stay locked until commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(r repo.Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return mapErr(err, "begin")
	}
	if err := fn(bind(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return mapErr(tx.Commit(ctx), "commit")
}

func bind(q querier) repo.Repos {
	return repo.Repos{
		Users:        &usersRepo{q},
		Wallets:      &walletsRepo{q},
		Ledger:       &ledgerRepo{q},
		Listings:     &listingsRepo{q},
		Bids:         &bidsRepo{q},
		Deposits:     &depositsRepo{q},
		Transactions: &transactionsRepo{q},
		Appointments: &appointmentsRepo{q},
		Fees:         &feesRepo{q},
		Carts:        &cartsRepo{q},
		AuditLogs:    &auditLogsRepo{q},
		Locks:        &advisoryLocker{q},
	}
}

type advisoryLocker struct{ q querier }

func (l *advisoryLocker) Lock(ctx context.Context, key string) error {
	_, err := l.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return mapErr(err, "advisory lock")
}

// mapErr turns pgx errors into apperr kinds; what names the entity for messages.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what + " not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return apperr.Wrap(apperr.KindConflict, what, apperr.ErrSerialization)
		case "23505":
			return apperr.Wrap(apperr.KindConflict, what+" already exists", err)
		case "23514":
			return apperr.Wrap(apperr.KindBadRequest, what+" violates a constraint", err)
		case "22P02":
			return apperr.NotFound(what + " not found")
		}
	}
	return err
}
