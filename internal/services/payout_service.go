package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/events"
	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/repositories"
	"github.com/milestone-escrow/backend/internal/ton"
)

// PayoutSender moves nanoTON from the escrow wallet to a raw address and
// returns the transaction hash.
type PayoutSender interface {
	Send(ctx context.Context, to string, amount uint64, comment string) (string, error)
}

type PayoutService struct {
	payoutRepo *repositories.PayoutRepo
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewPayoutService(
	payoutRepo *repositories.PayoutRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *PayoutService {
	return &PayoutService{
		payoutRepo: payoutRepo,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// ProcessPending claims a batch of queued payouts and sends them one by one,
// paced by limiter. Failed sends go back to the queue until the attempt limit.
func (s *PayoutService) ProcessPending(ctx context.Context, sender PayoutSender, limiter *rate.Limiter) (int, error) {
	batch, err := s.payoutRepo.ClaimPending(ctx, s.cfg.PayoutBatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim payouts: %w", err)
	}

	sent := 0
	for i, p := range batch {
		if err := limiter.Wait(ctx); err != nil {
			// Unsent claims go back to the queue without burning an attempt.
			for _, rest := range batch[i:] {
				if err := s.payoutRepo.Requeue(context.Background(), rest.ID); err != nil {
					s.log.Error("failed to requeue payout", zap.String("payout_id", rest.ID.String()), zap.Error(err))
				}
			}
			return sent, err
		}

		txHash, err := sender.Send(ctx, p.Recipient, p.Amount, payoutComment(p))
		if err != nil {
			s.fail(ctx, p, err)
			continue
		}
		if err := s.payoutRepo.MarkSent(ctx, p.ID, txHash); err != nil {
			s.log.Error("payout sent but not marked",
				zap.String("payout_id", p.ID.String()),
				zap.String("tx_hash", txHash),
				zap.Error(err),
			)
			continue
		}
		sent++

		s.log.Info("payout sent",
			zap.String("payout_id", p.ID.String()),
			zap.String("kind", p.Kind),
			zap.String("recipient", p.Recipient),
			zap.String("amount_ton", ton.FormatTON(p.Amount)),
			zap.String("tx_hash", txHash),
		)
		_ = s.publisher.Publish(ctx, events.StreamPayout, events.Event{
			Type:    events.EventPayoutSent,
			Payload: payoutPayload(p, txHash),
		})
	}
	return sent, nil
}

func (s *PayoutService) fail(ctx context.Context, p models.Payout, sendErr error) {
	status, err := s.payoutRepo.MarkFailed(ctx, p.ID, sendErr.Error(), s.cfg.PayoutMaxAttempts)
	if err != nil {
		s.log.Error("failed to record payout failure", zap.String("payout_id", p.ID.String()), zap.Error(err))
		return
	}
	s.log.Warn("payout send failed",
		zap.String("payout_id", p.ID.String()),
		zap.String("kind", p.Kind),
		zap.Int("attempts", p.Attempts),
		zap.String("status", status),
		zap.Error(sendErr),
	)
	if status == models.PayoutStatusFailed {
		_ = s.publisher.Publish(ctx, events.StreamPayout, events.Event{
			Type:    events.EventPayoutFailed,
			Payload: payoutPayload(p, ""),
		})
	}
}

// payoutComment is the text comment attached to the on-chain transfer.
func payoutComment(p models.Payout) string {
	campaign := ""
	if p.CampaignID != nil {
		campaign = ton.CampaignMemo(*p.CampaignID)
	}
	switch p.Kind {
	case models.PayoutKindWithdrawal:
		ids := make([]string, len(p.MilestoneIDs))
		for i, id := range p.MilestoneIDs {
			ids[i] = strconv.Itoa(id)
		}
		return fmt.Sprintf("withdrawal %s milestones %s", campaign, strings.Join(ids, ","))
	case models.PayoutKindFee:
		return "platform fee " + campaign
	case models.PayoutKindRefund:
		return "refund " + campaign
	case models.PayoutKindBounce:
		if campaign == "" {
			return "bounced deposit"
		}
		return "bounced deposit " + campaign
	}
	return p.Kind
}

func payoutPayload(p models.Payout, txHash string) map[string]any {
	payload := map[string]any{
		"payout_id": p.ID.String(),
		"kind":      p.Kind,
		"account":   p.Recipient,
		"amount":    strconv.FormatUint(p.Amount, 10),
	}
	if p.CampaignID != nil {
		payload["campaign_id"] = p.CampaignID.String()
	}
	if txHash != "" {
		payload["tx_hash"] = txHash
	}
	return payload
}
