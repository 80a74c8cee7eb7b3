package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/walletlink/internal/database"
	"github.com/openclaw/walletlink/internal/model"
)

type ReferralRepository interface {
	FindByReferralID(ctx context.Context, referralID int64) (*model.ReferralEdge, error)
	FindByReferrer(ctx context.Context, referrerID int64, limit, offset int) ([]model.ReferralEdge, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.ReferralEdge, error)
	// Create inserts the edge unless the referral already has one.
	// It reports whether a row was inserted.
	Create(ctx context.Context, edge model.ReferralEdge) (bool, error)
	CountByReferrer(ctx context.Context, referrerID int64) (int, error)
	Count(ctx context.Context) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ReferralRepository
}

type referralRepo struct {
	db database.DBTX
}

func NewReferralRepository(db *sqlx.DB) ReferralRepository {
	return &referralRepo{db: db}
}

func (r *referralRepo) WithTx(tx *sqlx.Tx) ReferralRepository {
	return &referralRepo{db: tx}
}

func (r *referralRepo) FindByReferralID(ctx context.Context, referralID int64) (*model.ReferralEdge, error) {
	var edge model.ReferralEdge
	err := r.db.GetContext(ctx, &edge, `
		SELECT * FROM referrals WHERE referral_id = $1
	`, referralID)
	return HandleNotFound(&edge, err)
}

func (r *referralRepo) FindByReferrer(ctx context.Context, referrerID int64, limit, offset int) ([]model.ReferralEdge, error) {
	var edges []model.ReferralEdge
	err := r.db.SelectContext(ctx, &edges, `
		SELECT * FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC, referral_id DESC
		LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *referralRepo) FindAll(ctx context.Context, limit, offset int) ([]model.ReferralEdge, error) {
	var edges []model.ReferralEdge
	err := r.db.SelectContext(ctx, &edges, `
		SELECT * FROM referrals
		ORDER BY created_at, referral_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *referralRepo) Create(ctx context.Context, edge model.ReferralEdge) (bool, error) {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = now()
	}
	return affected(r.db.ExecContext(ctx, `
		INSERT INTO referrals (referral_id, referrer_id, credit, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (referral_id) DO NOTHING
	`, edge.ReferralID, edge.ReferrerID, edge.Credit, edge.CreatedAt))
}

func (r *referralRepo) CountByReferrer(ctx context.Context, referrerID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`, referrerID)
	return count, err
}

func (r *referralRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM referrals`)
	return count, err
}
