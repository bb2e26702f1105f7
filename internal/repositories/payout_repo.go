package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestone-escrow/backend/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

const payoutColumns = `id, campaign_id, kind, recipient, amount, milestone_ids, status,
	attempts, tx_hash, last_error, created_at, sent_at`

func scanPayout(row pgx.Row) (models.Payout, error) {
	var (
		p      models.Payout
		amount int64
	)
	err := row.Scan(&p.ID, &p.CampaignID, &p.Kind, &p.Recipient, &amount, &p.MilestoneIDs, &p.Status,
		&p.Attempts, &p.TxHash, &p.LastError, &p.CreatedAt, &p.SentAt)
	p.Amount = u64(amount)
	return p, err
}

// Create queues a pending payout through q.
func (r *PayoutRepo) Create(ctx context.Context, q DBTX, p *models.Payout) error {
	if p.MilestoneIDs == nil {
		p.MilestoneIDs = []int{}
	}
	p.Status = models.PayoutStatusPending
	return q.QueryRow(ctx, `
		INSERT INTO payouts (campaign_id, kind, recipient, amount, milestone_ids, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.CampaignID, p.Kind, p.Recipient, i64(p.Amount), p.MilestoneIDs, p.Status).Scan(&p.ID, &p.CreatedAt)
}

// ClaimPending moves up to limit pending payouts to sending and returns them.
// Concurrent workers never claim the same row.
func (r *PayoutRepo) ClaimPending(ctx context.Context, limit int) ([]models.Payout, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE payouts SET status = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM payouts WHERE status = $2
			ORDER BY created_at LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+payoutColumns,
		models.PayoutStatusSending, models.PayoutStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (r *PayoutRepo) MarkSent(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status = $1, tx_hash = $2, last_error = NULL, sent_at = now()
		WHERE id = $3
	`, models.PayoutStatusSent, txHash, id)
	return err
}

// MarkFailed returns the payout to pending, or fails it for good once
// maxAttempts is reached.
func (r *PayoutRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `
		UPDATE payouts
		SET status = CASE WHEN attempts >= $1 THEN $2 ELSE $3 END, last_error = $4
		WHERE id = $5
		RETURNING status
	`, maxAttempts, models.PayoutStatusFailed, models.PayoutStatusPending, reason, id).Scan(&status)
	return status, err
}

// Requeue returns a claimed payout that was never attempted to pending.
func (r *PayoutRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status = $1, attempts = GREATEST(attempts - 1, 0)
		WHERE id = $2 AND status = $3
	`, models.PayoutStatusPending, id, models.PayoutStatusSending)
	return err
}

func (r *PayoutRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts WHERE campaign_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
