package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/repositories"
	"github.com/milestone-escrow/backend/internal/ton"
)

const (
	redisCursorLT   = "ton-indexer:cursor:lt"
	redisCursorHash = "ton-indexer:cursor:hash"
	redisProcessed  = "ton-indexer:tx:"
	processedTTL    = 7 * 24 * time.Hour
)

// TransferSource lists incoming transfers of the escrow wallet.
type TransferSource interface {
	Head(ctx context.Context) (ton.Cursor, error)
	Since(ctx context.Context, afterLT uint64) ([]ton.IncomingTransfer, ton.Cursor, error)
}

type DepositApplier interface {
	ApplyDeposit(ctx context.Context, in ton.IncomingTransfer) (*models.Deposit, error)
}

// DepositIndexer feeds transfers received by the escrow wallet into their
// campaigns. The cursor lives in Redis; deposits are idempotent by tx hash in
// Postgres, so replaying a range after a crash is harmless.
type DepositIndexer struct {
	source      TransferSource
	applier     DepositApplier
	depositRepo *repositories.DepositRepo
	rdb         *redis.Client
	log         *zap.Logger
}

func NewDepositIndexer(
	source TransferSource,
	applier DepositApplier,
	depositRepo *repositories.DepositRepo,
	rdb *redis.Client,
	log *zap.Logger,
) *DepositIndexer {
	return &DepositIndexer{
		source:      source,
		applier:     applier,
		depositRepo: depositRepo,
		rdb:         rdb,
		log:         log,
	}
}

// InitCursor sets the starting point on first run: the newest recorded
// deposit when the database has one, the current wallet head otherwise.
func (x *DepositIndexer) InitCursor(ctx context.Context) error {
	existing, err := x.rdb.Get(ctx, redisCursorLT).Result()
	if err == nil && existing != "" {
		x.log.Info("resuming from saved cursor", zap.String("lt", existing))
		return nil
	}
	if err != nil && err != redis.Nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	lt, err := x.depositRepo.MaxLT(ctx)
	if err != nil {
		return fmt.Errorf("load last deposit: %w", err)
	}
	if lt > 0 {
		x.log.Info("cursor restored from deposits", zap.Uint64("lt", lt))
		return x.saveCursor(ctx, ton.Cursor{LT: lt})
	}

	head, err := x.source.Head(ctx)
	if err != nil {
		return err
	}
	x.log.Info("cursor initialized at current account state (skipping historical transactions)",
		zap.Uint64("lt", head.LT),
		zap.String("hash", hex.EncodeToString(head.Hash)),
	)
	return x.saveCursor(ctx, head)
}

func (x *DepositIndexer) loadCursorLT(ctx context.Context) (uint64, error) {
	val, err := x.rdb.Get(ctx, redisCursorLT).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(val, 10, 64)
}

func (x *DepositIndexer) saveCursor(ctx context.Context, c ton.Cursor) error {
	_, err := x.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisCursorLT, strconv.FormatUint(c.LT, 10), 0)
		p.Set(ctx, redisCursorHash, hex.EncodeToString(c.Hash), 0)
		return nil
	})
	return err
}

// Poll processes every transfer newer than the cursor. The cursor only
// advances past transfers that were applied, so a failure is retried on the
// next poll.
func (x *DepositIndexer) Poll(ctx context.Context) (int, error) {
	cursor, err := x.loadCursorLT(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}

	transfers, head, err := x.source.Since(ctx, cursor)
	if err != nil {
		return 0, fmt.Errorf("fetch transactions: %w", err)
	}

	processed := 0
	for _, in := range transfers {
		key := redisProcessed + in.Hash
		if n, err := x.rdb.Exists(ctx, key).Result(); err == nil && n > 0 {
			continue
		}

		d, err := x.applier.ApplyDeposit(ctx, in)
		if !applied(err) {
			if in.LT > 0 {
				_ = x.saveCursor(ctx, ton.Cursor{LT: in.LT - 1})
			}
			return processed, fmt.Errorf("apply deposit %s: %w", in.Hash, err)
		}
		x.rdb.Set(ctx, key, "1", processedTTL)
		if err != nil {
			x.log.Debug("deposit skipped", zap.String("tx_hash", in.Hash), zap.Error(err))
			continue
		}
		processed++

		x.log.Info("deposit processed",
			zap.String("tx_hash", in.Hash),
			zap.Uint64("lt", in.LT),
			zap.String("status", d.Status),
		)
	}

	if head.LT > cursor {
		if err := x.saveCursor(ctx, head); err != nil {
			return processed, fmt.Errorf("save cursor: %w", err)
		}
	}
	return processed, nil
}

// applied reports whether a transfer needs no further work: it was applied
// now or by an earlier run.
func applied(err error) bool {
	return err == nil || errors.Is(err, ErrDuplicateDeposit)
}
