package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/walletlink/internal/database"
	"github.com/openclaw/walletlink/internal/model"
)

type PrincipalRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Principal, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.Principal, error)
	// Create inserts the principal unless one with the same id exists.
	// It reports whether a row was inserted.
	Create(ctx context.Context, params model.CreatePrincipalParams) (bool, error)
	// SetWalletAddress reports whether the stored address changed.
	SetWalletAddress(ctx context.Context, id int64, address string) (bool, error)
	SetSubscribed(ctx context.Context, id int64, subscribed bool) (bool, error)
	// AddBalance reports whether the principal exists.
	AddBalance(ctx context.Context, id int64, delta int64) (bool, error)
	Count(ctx context.Context) (int, error)
	Totals(ctx context.Context) (*model.LedgerTotals, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PrincipalRepository
}

type principalRepo struct {
	db database.DBTX
}

func NewPrincipalRepository(db *sqlx.DB) PrincipalRepository {
	return &principalRepo{db: db}
}

func (r *principalRepo) WithTx(tx *sqlx.Tx) PrincipalRepository {
	return &principalRepo{db: tx}
}

func (r *principalRepo) FindByID(ctx context.Context, id int64) (*model.Principal, error) {
	var principal model.Principal
	err := r.db.GetContext(ctx, &principal, `
		SELECT * FROM principals WHERE id = $1
	`, id)
	return HandleNotFound(&principal, err)
}

func (r *principalRepo) FindAll(ctx context.Context, limit, offset int) ([]model.Principal, error) {
	var principals []model.Principal
	err := r.db.SelectContext(ctx, &principals, `
		SELECT * FROM principals
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return principals, nil
}

func (r *principalRepo) Create(ctx context.Context, params model.CreatePrincipalParams) (bool, error) {
	ts := now()
	return affected(r.db.ExecContext(ctx, `
		INSERT INTO principals (id, username, display_name, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING
	`, params.ID, params.Username, params.DisplayName, params.Balance, ts))
}

func (r *principalRepo) SetWalletAddress(ctx context.Context, id int64, address string) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE principals SET
			wallet_address = $2,
			updated_at = $3
		WHERE id = $1 AND wallet_address <> $2
	`, id, address, now()))
}

func (r *principalRepo) SetSubscribed(ctx context.Context, id int64, subscribed bool) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE principals SET
			subscribed = $2,
			updated_at = $3
		WHERE id = $1
	`, id, subscribed, now()))
}

func (r *principalRepo) AddBalance(ctx context.Context, id int64, delta int64) (bool, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE principals SET
			balance = balance + $2,
			updated_at = $3
		WHERE id = $1
	`, id, delta, now()))
}

func (r *principalRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM principals`)
	return count, err
}

func (r *principalRepo) Totals(ctx context.Context) (*model.LedgerTotals, error) {
	var totals model.LedgerTotals
	err := r.db.GetContext(ctx, &totals, `
		SELECT
			COUNT(*) AS principals,
			COALESCE(SUM(CASE WHEN wallet_address <> '' THEN 1 ELSE 0 END), 0) AS with_wallet,
			COALESCE(SUM(CASE WHEN subscribed THEN 1 ELSE 0 END), 0) AS subscribed,
			COALESCE(SUM(balance), 0) AS balance
		FROM principals
	`)
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
