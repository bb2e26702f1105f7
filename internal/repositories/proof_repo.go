package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestone-escrow/backend/internal/models"
)

// ProofRepo stores one-time ton_proof payloads.
type ProofRepo struct {
	pool *pgxpool.Pool
}

func NewProofRepo(pool *pgxpool.Pool) *ProofRepo {
	return &ProofRepo{pool: pool}
}

func (r *ProofRepo) CreatePayload(ctx context.Context, ttl time.Duration) (*models.TonProofPayload, error) {
	p := &models.TonProofPayload{Payload: generateNonce(32)}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO ton_proof_payloads (payload, expires_at)
		VALUES ($1, now() + $2::interval)
		RETURNING id, created_at, expires_at
	`, p.Payload, ttl.String()).Scan(&p.ID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ConsumePayload marks an unexpired payload used. pgx.ErrNoRows means it is
// unknown, expired or already used.
func (r *ProofRepo) ConsumePayload(ctx context.Context, payload string) (*models.TonProofPayload, error) {
	var p models.TonProofPayload
	err := r.pool.QueryRow(ctx, `
		UPDATE ton_proof_payloads
		SET used = true
		WHERE payload = $1 AND used = false AND expires_at > now()
		RETURNING id, payload, created_at, expires_at, used
	`, payload).Scan(&p.ID, &p.Payload, &p.CreatedAt, &p.ExpiresAt, &p.Used)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteExpired removes payloads that can no longer be consumed.
func (r *ProofRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ton_proof_payloads WHERE expires_at < now() OR used`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
