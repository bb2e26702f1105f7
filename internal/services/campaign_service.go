package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/events"
	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/preview"
	"github.com/milestone-escrow/backend/internal/repositories"
)

var ErrCampaignNotFound = errors.New("campaign not found")

const entityCampaign = "campaign"

type CampaignService struct {
	campaignRepo *repositories.CampaignRepo
	payoutRepo   *repositories.PayoutRepo
	depositRepo  *repositories.DepositRepo
	settingsRepo *repositories.SettingsRepo
	auditRepo    *repositories.AuditRepo
	tx           *repositories.TxRunner
	publisher    events.Publisher
	cfg          *config.Config
	log          *zap.Logger
	now          func() time.Time
}

func NewCampaignService(
	campaignRepo *repositories.CampaignRepo,
	payoutRepo *repositories.PayoutRepo,
	depositRepo *repositories.DepositRepo,
	settingsRepo *repositories.SettingsRepo,
	auditRepo *repositories.AuditRepo,
	tx *repositories.TxRunner,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		payoutRepo:   payoutRepo,
		depositRepo:  depositRepo,
		settingsRepo: settingsRepo,
		auditRepo:    auditRepo,
		tx:           tx,
		publisher:    publisher,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

// actor identifies who triggered an operation for the audit log.
type actor struct {
	address *string
	kind    string
}

func userActor(addr string) actor { return actor{address: &addr, kind: models.ActorTypeUser} }

var systemActor = actor{kind: models.ActorTypeSystem}

type campaignOp func(ctx context.Context, tx pgx.Tx, c *escrow.Campaign, now time.Time) error

// execute runs op against the campaign locked for the duration of a database
// transaction. Payouts requested by the engine are queued in the same
// transaction; events are audited in it and published after commit.
func (s *CampaignService) execute(ctx context.Context, id uuid.UUID, who actor, op campaignOp) error {
	var committed []escrow.Event
	now := s.now()

	err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		before, err := s.campaignRepo.LoadForUpdate(ctx, tx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCampaignNotFound
		}
		if err != nil {
			return fmt.Errorf("load campaign: %w", err)
		}

		var evs []escrow.Event
		c := escrow.Restore(*before, escrow.Options{
			Payouts: s.outbox(tx),
			Sink:    func(e escrow.Event) { evs = append(evs, e) },
		})
		if err := op(ctx, tx, c, now); err != nil {
			return err
		}
		if len(evs) == 0 {
			return nil
		}

		after := c.Snapshot()
		if err := s.campaignRepo.Save(ctx, tx, before, &after); err != nil {
			return fmt.Errorf("save campaign: %w", err)
		}
		if err := s.audit(ctx, tx, who, evs); err != nil {
			return err
		}
		committed = evs
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, committed)
	return nil
}

// outbox records every transfer the engine authorizes as a pending payout.
func (s *CampaignService) outbox(tx pgx.Tx) escrow.Payouts {
	return escrow.PayoutsFunc(func(ctx context.Context, p escrow.Payout) error {
		campaignID := p.CampaignID
		return s.payoutRepo.Create(ctx, tx, &models.Payout{
			CampaignID:   &campaignID,
			Kind:         p.Kind,
			Recipient:    p.Recipient,
			Amount:       p.Amount,
			MilestoneIDs: p.Milestones,
		})
	})
}

func (s *CampaignService) audit(ctx context.Context, q repositories.DBTX, who actor, evs []escrow.Event) error {
	for _, e := range evs {
		campaignID := e.CampaignID
		entry := models.AuditLog{
			ActorAddress: who.address,
			ActorType:    who.kind,
			Action:       e.Type,
			EntityType:   entityCampaign,
			EntityID:     &campaignID,
			Meta:         e.Payload(),
		}
		// The deadline transition happens on behalf of nobody.
		if e.Type == escrow.EventCampaignStateChanged && e.State == models.CampaignStateFailed {
			entry.ActorAddress, entry.ActorType = nil, models.ActorTypeSystem
		}
		if err := s.auditRepo.Log(ctx, q, entry); err != nil {
			return fmt.Errorf("audit %s: %w", e.Type, err)
		}
	}
	return nil
}

func (s *CampaignService) publish(ctx context.Context, evs []escrow.Event) {
	for _, e := range evs {
		if err := s.publisher.Publish(ctx, events.StreamCampaign, events.FromEscrow(e)); err != nil {
			s.log.Warn("failed to publish campaign event",
				zap.String("campaign_id", e.CampaignID.String()),
				zap.String("type", e.Type),
				zap.Error(err),
			)
		}
	}
}

// --- Factory ---

type CreateCampaignInput struct {
	Title                 string
	Description           string
	Goal                  uint64
	Duration              time.Duration
	MilestoneDescriptions []string
	MilestoneAmounts      []uint64
}

// FactorySettings are the fee parameters applied to newly created campaigns.
type FactorySettings struct {
	FeeBPS       int        `json:"fee_bps"`
	FeeRecipient string     `json:"fee_recipient"`
	UpdatedBy    *string    `json:"updated_by,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func (s *CampaignService) Settings(ctx context.Context) (*FactorySettings, error) {
	stored, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if stored == nil {
		return &FactorySettings{FeeBPS: s.cfg.PlatformFeeBPS, FeeRecipient: s.cfg.PlatformFeeRecipient}, nil
	}
	return &FactorySettings{
		FeeBPS:       stored.FeeBPS,
		FeeRecipient: stored.FeeRecipient,
		UpdatedBy:    stored.UpdatedBy,
		UpdatedAt:    &stored.UpdatedAt,
	}, nil
}

// CreateCampaign validates the request against the factory limits, builds
// the campaign with the current fee settings and persists it.
func (s *CampaignService) CreateCampaign(ctx context.Context, creator string, in CreateCampaignInput) (*escrow.Info, error) {
	if s.cfg.MaxCampaignDuration > 0 && in.Duration > s.cfg.MaxCampaignDuration {
		return nil, fmt.Errorf("%w: duration %s exceeds %s", escrow.ErrInvalidCampaignParams, in.Duration, s.cfg.MaxCampaignDuration)
	}
	if s.cfg.MaxMilestones > 0 && len(in.MilestoneAmounts) > s.cfg.MaxMilestones {
		return nil, fmt.Errorf("%w: at most %d milestones", escrow.ErrInvalidMilestoneConfiguration, s.cfg.MaxMilestones)
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	var evs []escrow.Event
	now := s.now()
	c, err := escrow.New(now, escrow.Params{
		ID:                    uuid.New(),
		Creator:               creator,
		Title:                 in.Title,
		Description:           in.Description,
		Goal:                  in.Goal,
		Duration:              in.Duration,
		MilestoneDescriptions: in.MilestoneDescriptions,
		MilestoneAmounts:      in.MilestoneAmounts,
		FeeRecipient:          settings.FeeRecipient,
		FeeBPS:                uint16(settings.FeeBPS),
		Rules: escrow.Rules{
			QuorumPercent:         uint8(s.cfg.QuorumPercent),
			ApprovalPercent:       uint8(s.cfg.ApprovalPercent),
			MilestonePhase:        s.cfg.MilestonePhase,
			DefaultVotingDuration: s.cfg.DefaultVotingDuration,
		},
	}, escrow.Options{Sink: func(e escrow.Event) { evs = append(evs, e) }})
	if err != nil {
		return nil, err
	}

	snap := c.Snapshot()
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.campaignRepo.Create(ctx, tx, &snap); err != nil {
			return fmt.Errorf("create campaign: %w", err)
		}
		return s.audit(ctx, tx, userActor(creator), evs)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evs)

	s.log.Info("campaign created",
		zap.String("campaign_id", snap.ID.String()),
		zap.String("creator", creator),
		zap.Uint64("goal", snap.Goal),
		zap.Int("milestones", len(snap.Milestones)),
	)

	info, err := c.Info(ctx, now)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

type ListCampaignsInput struct {
	Creator *string
	State   *string
	Limit   int
	Offset  int
}

func (s *CampaignService) List(ctx context.Context, in ListCampaignsInput) ([]models.Campaign, error) {
	if in.State != nil && !isCampaignState(*in.State) {
		return nil, fmt.Errorf("%w: unknown state %q", escrow.ErrInvalidCampaignParams, *in.State)
	}
	return s.campaignRepo.List(ctx, repositories.CampaignFilter{
		Creator: in.Creator,
		State:   in.State,
		Limit:   in.Limit,
		Offset:  in.Offset,
	}, s.now())
}

func (s *CampaignService) Count(ctx context.Context, creator, state *string) (int, error) {
	if state != nil && !isCampaignState(*state) {
		return 0, fmt.Errorf("%w: unknown state %q", escrow.ErrInvalidCampaignParams, *state)
	}
	return s.campaignRepo.Count(ctx, repositories.CampaignFilter{Creator: creator, State: state}, s.now())
}

func isCampaignState(state string) bool {
	_, ok := models.ValidCampaignTransitions[state]
	return ok
}

// SetFeePercentage changes the fee applied to campaigns created afterwards.
func (s *CampaignService) SetFeePercentage(ctx context.Context, admin string, bps int) (*FactorySettings, error) {
	if bps < 0 || bps > escrow.BPSDenominator {
		return nil, fmt.Errorf("%w: fee must be 0..%d bps", escrow.ErrInvalidCampaignParams, escrow.BPSDenominator)
	}
	return s.updateSettings(ctx, admin, "fee_percentage_changed", func(fs *FactorySettings) { fs.FeeBPS = bps })
}

// SetFeeRecipient changes the fee recipient of campaigns created afterwards.
// An empty recipient disables the fee.
func (s *CampaignService) SetFeeRecipient(ctx context.Context, admin string, recipient string) (*FactorySettings, error) {
	return s.updateSettings(ctx, admin, "fee_recipient_changed", func(fs *FactorySettings) { fs.FeeRecipient = recipient })
}

func (s *CampaignService) updateSettings(ctx context.Context, admin, action string, apply func(*FactorySettings)) (*FactorySettings, error) {
	current, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	old := *current
	apply(current)

	stored := &models.PlatformSettings{
		FeeBPS:       current.FeeBPS,
		FeeRecipient: current.FeeRecipient,
		UpdatedBy:    &admin,
	}
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.settingsRepo.Upsert(ctx, tx, stored); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return s.auditRepo.Log(ctx, tx, models.AuditLog{
			ActorAddress: &admin,
			ActorType:    models.ActorTypeAdmin,
			Action:       action,
			EntityType:   "platform_settings",
			Meta: map[string]any{
				"old_fee_bps":       old.FeeBPS,
				"new_fee_bps":       current.FeeBPS,
				"old_fee_recipient": old.FeeRecipient,
				"new_fee_recipient": current.FeeRecipient,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("factory settings changed",
		zap.String("admin", admin),
		zap.String("action", action),
		zap.Int("fee_bps", current.FeeBPS),
		zap.String("fee_recipient", current.FeeRecipient),
	)
	current.UpdatedBy, current.UpdatedAt = &admin, &stored.UpdatedAt
	return current, nil
}

// --- Reads ---

// CampaignDetails is the full view of one campaign.
type CampaignDetails struct {
	escrow.Info
	TotalMilestoneAmount uint64             `json:"total_milestone_amount"`
	Milestones           []escrow.Milestone `json:"milestones"`
	Preview              preview.Summary    `json:"preview"`
}

// GetCampaign reads through the locked path so that an expired deadline is
// persisted before the state is reported.
func (s *CampaignService) GetCampaign(ctx context.Context, id uuid.UUID) (*CampaignDetails, error) {
	var d CampaignDetails
	err := s.execute(ctx, id, systemActor, func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		info, err := c.Info(ctx, now)
		if err != nil {
			return err
		}
		milestones, err := c.Milestones(ctx, now)
		if err != nil {
			return err
		}
		d = CampaignDetails{
			Info:                 info,
			TotalMilestoneAmount: c.TotalMilestoneAmount(),
			Milestones:           milestones,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.Preview = preview.Summarize(d.Description, preview.DefaultExcerptRunes)
	return &d, nil
}

func (s *CampaignService) GetMilestone(ctx context.Context, id uuid.UUID, milestoneID int) (*escrow.Milestone, error) {
	var m escrow.Milestone
	err := s.execute(ctx, id, systemActor, func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		m, err = c.MilestoneInfo(ctx, now, milestoneID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *CampaignService) GetMilestones(ctx context.Context, id uuid.UUID) ([]escrow.Milestone, error) {
	var ms []escrow.Milestone
	err := s.execute(ctx, id, systemActor, func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		ms, err = c.Milestones(ctx, now)
		return err
	})
	return ms, err
}

func (s *CampaignService) HasVoted(ctx context.Context, id uuid.UUID, milestoneID int, voter string) (bool, error) {
	var voted bool
	err := s.execute(ctx, id, systemActor, func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		voted, err = c.HasVoted(ctx, now, milestoneID, voter)
		return err
	})
	return voted, err
}

func (s *CampaignService) ContributionOf(ctx context.Context, id uuid.UUID, addr string) (uint64, error) {
	var amount uint64
	err := s.execute(ctx, id, systemActor, func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		amount, err = c.ContributionOf(ctx, now, addr)
		return err
	})
	return amount, err
}

func (s *CampaignService) Events(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	return s.auditRepo.GetByEntity(ctx, entityCampaign, id, limit, offset)
}

func (s *CampaignService) Payouts(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Payout, error) {
	return s.payoutRepo.ListByCampaign(ctx, id, limit, offset)
}

// --- Writes ---

func (s *CampaignService) SubmitMilestone(ctx context.Context, id uuid.UUID, by string) (int, error) {
	var milestoneID int
	err := s.execute(ctx, id, userActor(by), func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		milestoneID, err = c.SubmitMilestone(ctx, now, by)
		return err
	})
	return milestoneID, err
}

// StartMilestoneVoting opens a vote; a zero duration selects the campaign
// default. Durations outside the configured bounds are rejected.
func (s *CampaignService) StartMilestoneVoting(ctx context.Context, id uuid.UUID, by string, milestoneID int, duration time.Duration) error {
	if duration != 0 && (duration < s.cfg.MinVotingDuration || duration > s.cfg.MaxVotingDuration) {
		return fmt.Errorf("%w: voting duration must be within %s..%s", escrow.ErrInvalidAmount, s.cfg.MinVotingDuration, s.cfg.MaxVotingDuration)
	}
	return s.execute(ctx, id, userActor(by), func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		d := duration
		if d == 0 {
			d = c.Snapshot().Rules.DefaultVotingDuration
		}
		return c.StartMilestoneVoting(ctx, now, by, milestoneID, d)
	})
}

func (s *CampaignService) Vote(ctx context.Context, id uuid.UUID, voter string, milestoneID int, support bool) (uint64, error) {
	var weight uint64
	err := s.execute(ctx, id, userActor(voter), func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		weight, err = c.VoteOnMilestone(ctx, now, voter, milestoneID, support)
		return err
	})
	return weight, err
}

// finalize may be triggered by anyone once the vote is over.
func (s *CampaignService) finalize(ctx context.Context, id uuid.UUID, who actor, milestoneID int) (bool, error) {
	var approved bool
	err := s.execute(ctx, id, who, func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		approved, err = c.FinalizeMilestoneVoting(ctx, now, milestoneID)
		return err
	})
	return approved, err
}

func (s *CampaignService) FinalizeMilestoneVoting(ctx context.Context, id uuid.UUID, by string, milestoneID int) (bool, error) {
	return s.finalize(ctx, id, userActor(by), milestoneID)
}

func (s *CampaignService) CompleteMilestone(ctx context.Context, id uuid.UUID, by string, milestoneID int) (*escrow.Release, error) {
	var r escrow.Release
	err := s.execute(ctx, id, userActor(by), func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		r, err = c.CompleteMilestone(ctx, now, by, milestoneID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logRelease(id, by, r)
	return &r, nil
}

func (s *CampaignService) Withdraw(ctx context.Context, id uuid.UUID, by string) (*escrow.Release, error) {
	var r escrow.Release
	err := s.execute(ctx, id, userActor(by), func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		r, err = c.Withdraw(ctx, now, by)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logRelease(id, by, r)
	return &r, nil
}

func (s *CampaignService) logRelease(id uuid.UUID, by string, r escrow.Release) {
	s.log.Info("milestone funds released",
		zap.String("campaign_id", id.String()),
		zap.String("creator", by),
		zap.Uint64("gross", r.Gross),
		zap.Uint64("fee", r.Fee),
		zap.Ints("milestones", r.Milestones),
	)
}

func (s *CampaignService) Refund(ctx context.Context, id uuid.UUID, by string) (uint64, error) {
	var amount uint64
	err := s.execute(ctx, id, userActor(by), func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
		var err error
		amount, err = c.GetRefund(ctx, now, by)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("refund queued",
		zap.String("campaign_id", id.String()),
		zap.String("contributor", by),
		zap.Uint64("amount", amount),
	)
	return amount, nil
}

// --- Sweeps ---

// SweepExpired materializes the failed state of campaigns whose deadline
// passed without traffic, and finalizes votes whose period is over.
func (s *CampaignService) SweepExpired(ctx context.Context, limit int) (int, error) {
	now := s.now()
	swept := 0

	ids, err := s.campaignRepo.ListExpiredActive(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired campaigns: %w", err)
	}
	for _, id := range ids {
		err := s.execute(ctx, id, systemActor, func(ctx context.Context, _ pgx.Tx, c *escrow.Campaign, now time.Time) error {
			_, err := c.Info(ctx, now)
			return err
		})
		if err != nil {
			s.log.Error("deadline sweep failed", zap.String("campaign_id", id.String()), zap.Error(err))
			continue
		}
		swept++
	}

	votes, err := s.campaignRepo.ListExpiredVotes(ctx, now, limit)
	if err != nil {
		return swept, fmt.Errorf("list expired votes: %w", err)
	}
	for _, v := range votes {
		approved, err := s.finalize(ctx, v.CampaignID, systemActor, v.MilestoneID)
		if err != nil {
			s.log.Warn("vote finalization failed",
				zap.String("campaign_id", v.CampaignID.String()),
				zap.Int("milestone_id", v.MilestoneID),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("milestone vote finalized",
			zap.String("campaign_id", v.CampaignID.String()),
			zap.Int("milestone_id", v.MilestoneID),
			zap.Bool("approved", approved),
		)
		swept++
	}
	return swept, nil
}
