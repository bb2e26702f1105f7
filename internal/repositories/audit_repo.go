package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/reqctx"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Log writes entry through q, which may be the pool or an open transaction.
// The request id is taken from ctx when the work started from an HTTP call.
func (r *AuditRepo) Log(ctx context.Context, q DBTX, entry models.AuditLog) error {
	if q == nil {
		q = r.pool
	}
	if entry.RequestID == nil {
		if id := reqctx.RequestID(ctx); id != "" {
			entry.RequestID = &id
		}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO audit_log (actor_address, actor_type, action, entity_type, entity_id, meta, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ActorAddress, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.Meta, entry.RequestID)
	return err
}

// GetByEntity returns the entries of one entity in the order they happened.
func (r *AuditRepo) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_address, actor_type, action, entity_type, entity_id, meta, request_id, created_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id LIMIT $3 OFFSET $4
	`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AuditLog, error) {
		var l models.AuditLog
		err := row.Scan(&l.ID, &l.ActorAddress, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &l.Meta, &l.RequestID, &l.CreatedAt)
		return l, err
	})
}
