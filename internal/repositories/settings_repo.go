package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestone-escrow/backend/internal/models"
)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Get returns the stored factory settings, or nil when none were saved yet.
func (r *SettingsRepo) Get(ctx context.Context) (*models.PlatformSettings, error) {
	var s models.PlatformSettings
	err := r.pool.QueryRow(ctx, `
		SELECT fee_bps, fee_recipient, updated_by, updated_at FROM platform_settings
	`).Scan(&s.FeeBPS, &s.FeeRecipient, &s.UpdatedBy, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, q DBTX, s *models.PlatformSettings) error {
	return q.QueryRow(ctx, `
		INSERT INTO platform_settings (id, fee_bps, fee_recipient, updated_by, updated_at)
		VALUES (true, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			fee_bps = EXCLUDED.fee_bps,
			fee_recipient = EXCLUDED.fee_recipient,
			updated_by = EXCLUDED.updated_by,
			updated_at = now()
		RETURNING updated_at
	`, s.FeeBPS, s.FeeRecipient, s.UpdatedBy).Scan(&s.UpdatedAt)
}
