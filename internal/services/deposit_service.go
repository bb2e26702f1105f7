package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/events"
	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/ton"
)

// ErrDuplicateDeposit is returned by ApplyDeposit for a transfer that was
// already applied.
var ErrDuplicateDeposit = errors.New("deposit already processed")

// Bounce reasons that are not engine errors.
const (
	reasonNoMemo          = "NoCampaignMemo"
	reasonUnknownCampaign = "UnknownCampaign"
)

// depositOutcome decides what happens to a transfer given the result of
// applying it to its campaign. Engine rejections are returned to the sender;
// anything else is an infrastructure failure to retry.
func depositOutcome(err error) (status string, reason string, retry error) {
	switch {
	case err == nil:
		return models.DepositStatusAccepted, "", nil
	case errors.Is(err, ErrCampaignNotFound):
		return models.DepositStatusBounced, reasonUnknownCampaign, nil
	case escrow.Code(err) != "" && !errors.Is(err, escrow.ErrReentrantCall):
		return models.DepositStatusBounced, escrow.Code(err), nil
	default:
		return "", "", err
	}
}

// ApplyDeposit turns an incoming transfer with a campaign memo into a
// contribution of its sender. Transfers the campaign rejects are bounced back
// in full. A transfer is applied at most once.
func (s *CampaignService) ApplyDeposit(ctx context.Context, in ton.IncomingTransfer) (*models.Deposit, error) {
	d := &models.Deposit{
		TxHash: in.Hash,
		TxLT:   in.LT,
		Sender: in.Sender,
		Amount: in.Amount,
		Memo:   in.Comment,
	}

	campaignID, ok := ton.ParseCampaignMemo(in.Comment)
	if !ok {
		// Transfers without a memo are wallet top-ups and stay on the wallet.
		d.Status = models.DepositStatusIgnored
		reason := reasonNoMemo
		d.Reason = &reason
		if _, err := s.depositRepo.Record(ctx, nil, d); err != nil {
			return nil, fmt.Errorf("record deposit: %w", err)
		}
		return d, nil
	}
	d.CampaignID = &campaignID

	var committed []escrow.Event
	err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		committed = nil
		evs, applyErr := s.contributeLocked(ctx, tx, campaignID, in, s.now())

		status, reason, retry := depositOutcome(applyErr)
		if retry != nil {
			return retry
		}
		d.Status = status
		if reason != "" {
			d.Reason = &reason
		}
		if errors.Is(applyErr, ErrCampaignNotFound) {
			d.CampaignID = nil
		}

		fresh, err := s.depositRepo.Record(ctx, tx, d)
		if err != nil {
			return fmt.Errorf("record deposit: %w", err)
		}
		if !fresh {
			return ErrDuplicateDeposit
		}

		if status == models.DepositStatusBounced {
			return s.payoutRepo.Create(ctx, tx, &models.Payout{
				CampaignID: d.CampaignID,
				Kind:       models.PayoutKindBounce,
				Recipient:  in.Sender,
				Amount:     in.Amount,
			})
		}
		if err := s.audit(ctx, tx, userActor(in.Sender), evs); err != nil {
			return err
		}
		committed = evs
		return nil
	})
	if errors.Is(err, ErrDuplicateDeposit) {
		s.log.Debug("deposit already processed", zap.String("tx_hash", in.Hash))
		return nil, ErrDuplicateDeposit
	}
	if err != nil {
		return nil, err
	}

	if d.Status == models.DepositStatusBounced {
		s.log.Info("deposit bounced",
			zap.String("tx_hash", in.Hash),
			zap.String("campaign_id", campaignID.String()),
			zap.String("sender", in.Sender),
			zap.Uint64("amount", in.Amount),
			zap.String("reason", *d.Reason),
		)
		s.publishBounce(ctx, campaignID, in, *d.Reason)
		return d, nil
	}

	s.publish(ctx, committed)
	s.log.Info("contribution received",
		zap.String("tx_hash", in.Hash),
		zap.String("campaign_id", campaignID.String()),
		zap.String("contributor", in.Sender),
		zap.Uint64("amount", in.Amount),
	)
	return d, nil
}

func (s *CampaignService) publishBounce(ctx context.Context, campaignID uuid.UUID, in ton.IncomingTransfer, reason string) {
	err := s.publisher.Publish(ctx, events.StreamCampaign, events.Event{
		Type: events.EventDepositBounced,
		Payload: map[string]any{
			"campaign_id": campaignID.String(),
			"tx_hash":     in.Hash,
			"account":     in.Sender,
			"amount":      fmt.Sprint(in.Amount),
			"reason":      reason,
		},
	})
	if err != nil {
		s.log.Warn("failed to publish bounced deposit",
			zap.String("campaign_id", campaignID.String()),
			zap.String("tx_hash", in.Hash),
			zap.Error(err),
		)
	}
}

// contributeLocked applies the contribution inside tx and persists it. On a
// rejection nothing is written and the campaign row stays as it was.
func (s *CampaignService) contributeLocked(ctx context.Context, tx pgx.Tx, id uuid.UUID, in ton.IncomingTransfer, now time.Time) ([]escrow.Event, error) {
	before, err := s.campaignRepo.LoadForUpdate(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}

	var evs []escrow.Event
	c := escrow.Restore(*before, escrow.Options{
		Payouts: s.outbox(tx),
		Sink:    func(e escrow.Event) { evs = append(evs, e) },
	})
	if err := c.Contribute(ctx, now, in.Sender, in.Amount); err != nil {
		return nil, err
	}

	after := c.Snapshot()
	if err := s.campaignRepo.Save(ctx, tx, before, &after); err != nil {
		return nil, fmt.Errorf("save campaign: %w", err)
	}
	return evs, nil
}
