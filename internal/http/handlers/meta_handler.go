package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/http/dto"
	"github.com/milestone-escrow/backend/internal/middleware"
	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/services"
	"github.com/milestone-escrow/backend/internal/ton"
)

// MetaHandler serves the factory constants and admin settings.
type MetaHandler struct {
	campaignService *services.CampaignService
	cfg             *config.Config
	log             *zap.Logger
}

func NewMetaHandler(campaignService *services.CampaignService, cfg *config.Config, log *zap.Logger) *MetaHandler {
	return &MetaHandler{campaignService: campaignService, cfg: cfg, log: log}
}

type governanceMeta struct {
	QuorumPercent        int      `json:"quorum_percent"`
	ApprovalPercent      int      `json:"approval_percent"`
	MilestonePhase       string   `json:"milestone_phase"`
	DefaultVotingSeconds int64    `json:"default_voting_seconds"`
	MinVotingSeconds     int64    `json:"min_voting_seconds"`
	MaxVotingSeconds     int64    `json:"max_voting_seconds"`
	MaxCampaignSeconds   int64    `json:"max_campaign_seconds"`
	MaxMilestones        int      `json:"max_milestones"`
	CampaignStates       []string `json:"campaign_states"`
	MilestoneStates      []string `json:"milestone_states"`
	Network              string   `json:"network"`
	EscrowWallet         string   `json:"escrow_wallet"`
	FeeBPS               int      `json:"fee_bps"`
	FeeRecipient         string   `json:"fee_recipient"`
}

// GET /meta
func (h *MetaHandler) GetMeta(c *fiber.Ctx) error {
	settings, err := h.campaignService.Settings(c.UserContext())
	if err != nil {
		return fail(c, h.log, err)
	}
	wallet := h.cfg.TONHotWalletAddress
	if raw, err := ton.NormalizeAddress(wallet); err == nil {
		wallet = ton.Friendly(raw, h.cfg.TONNetwork != "mainnet")
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: governanceMeta{
		QuorumPercent:        h.cfg.QuorumPercent,
		ApprovalPercent:      h.cfg.ApprovalPercent,
		MilestonePhase:       h.cfg.MilestonePhase,
		DefaultVotingSeconds: int64(h.cfg.DefaultVotingDuration.Seconds()),
		MinVotingSeconds:     int64(h.cfg.MinVotingDuration.Seconds()),
		MaxVotingSeconds:     int64(h.cfg.MaxVotingDuration.Seconds()),
		MaxCampaignSeconds:   int64(h.cfg.MaxCampaignDuration.Seconds()),
		MaxMilestones:        h.cfg.MaxMilestones,
		CampaignStates: []string{
			models.CampaignStateActive, models.CampaignStateSuccessful, models.CampaignStateFailed,
		},
		MilestoneStates: []string{
			models.MilestoneStatePending, models.MilestoneStateVotingActive, models.MilestoneStateApproved,
			models.MilestoneStateCompleted, models.MilestoneStateRejected,
		},
		Network:      h.cfg.TONNetwork,
		EscrowWallet: wallet,
		FeeBPS:       settings.FeeBPS,
		FeeRecipient: settings.FeeRecipient,
	}})
}

// GET /settings
func (h *MetaHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.campaignService.Settings(c.UserContext())
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: settings})
}

// PUT /admin/settings/fee-percentage
func (h *MetaHandler) SetFeePercentage(c *fiber.Ctx) error {
	var req dto.SetFeePercentageRequest
	if err := c.BodyParser(&req); err != nil || req.FeeBPS == nil {
		return badRequest(c, "fee_bps is required")
	}
	settings, err := h.campaignService.SetFeePercentage(c.UserContext(), middleware.GetAddress(c), *req.FeeBPS)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: settings})
}

// PUT /admin/settings/fee-recipient
func (h *MetaHandler) SetFeeRecipient(c *fiber.Ctx) error {
	var req dto.SetFeeRecipientRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	recipient := ""
	if req.FeeRecipient != "" {
		raw, err := ton.NormalizeAddress(req.FeeRecipient)
		if err != nil {
			return badRequest(c, "invalid fee_recipient address")
		}
		recipient = raw
	}
	settings, err := h.campaignService.SetFeeRecipient(c.UserContext(), middleware.GetAddress(c), recipient)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: settings})
}
