package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestone-escrow/backend/internal/models"
)

type DepositRepo struct {
	pool *pgxpool.Pool
}

func NewDepositRepo(pool *pgxpool.Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

// Record inserts d through q (the pool when nil) unless a deposit with the
// same tx hash exists. It reports whether the row was new.
func (r *DepositRepo) Record(ctx context.Context, q DBTX, d *models.Deposit) (bool, error) {
	if q == nil {
		q = r.pool
	}
	err := q.QueryRow(ctx, `
		INSERT INTO deposits (tx_hash, tx_lt, campaign_id, sender, amount, memo, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO NOTHING
		RETURNING id, created_at
	`, d.TxHash, int64(d.TxLT), d.CampaignID, d.Sender, i64(d.Amount), d.Memo, d.Status, d.Reason).
		Scan(&d.ID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *DepositRepo) Exists(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM deposits WHERE tx_hash = $1)`, txHash).Scan(&exists)
	return exists, err
}

// MaxLT returns the logical time of the newest recorded deposit, 0 if none.
func (r *DepositRepo) MaxLT(ctx context.Context) (uint64, error) {
	var lt int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(max(tx_lt), 0) FROM deposits`).Scan(&lt)
	return uint64(lt), err
}
