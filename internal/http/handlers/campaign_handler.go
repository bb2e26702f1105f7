package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/http/dto"
	"github.com/milestone-escrow/backend/internal/middleware"
	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/services"
	"github.com/milestone-escrow/backend/internal/ton"
)

type CampaignHandler struct {
	campaignService *services.CampaignService
	cfg             *config.Config
	log             *zap.Logger
}

func NewCampaignHandler(campaignService *services.CampaignService, cfg *config.Config, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService, cfg: cfg, log: log}
}

func campaignID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func milestoneID(c *fiber.Ctx) (int, error) {
	return strconv.Atoi(c.Params("mid"))
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit, offset = 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return limit, offset
}

// CreateCampaign creates a campaign owned by the caller.
// POST /campaigns
func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" || req.GoalTON == "" || req.DurationSeconds <= 0 {
		return badRequest(c, "title, goal_ton and duration_seconds are required")
	}

	goal, err := ton.ParseTON(req.GoalTON)
	if err != nil {
		return badRequest(c, "invalid goal_ton: "+err.Error())
	}
	amounts := make([]uint64, len(req.MilestoneAmountsTON))
	for i, s := range req.MilestoneAmountsTON {
		if amounts[i], err = ton.ParseTON(s); err != nil {
			return badRequest(c, "invalid milestone_amounts_ton["+strconv.Itoa(i)+"]: "+err.Error())
		}
	}

	info, err := h.campaignService.CreateCampaign(c.UserContext(), middleware.GetAddress(c), services.CreateCampaignInput{
		Title:                 req.Title,
		Description:           req.Description,
		Goal:                  goal,
		Duration:              time.Duration(req.DurationSeconds) * time.Second,
		MilestoneDescriptions: req.MilestoneDescriptions,
		MilestoneAmounts:      amounts,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: info})
}

func (h *CampaignHandler) listFilter(c *fiber.Ctx) (creator, state *string, err error) {
	if v := c.Query("creator"); v != "" {
		raw, err := ton.NormalizeAddress(v)
		if err != nil {
			return nil, nil, err
		}
		creator = &raw
	}
	if v := c.Query("state"); v != "" {
		state = &v
	}
	return creator, state, nil
}

// ListCampaigns returns campaigns, optionally by creator and state.
// GET /campaigns?creator=&state=&limit=&offset=
func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	creator, state, err := h.listFilter(c)
	if err != nil {
		return badRequest(c, "invalid creator address")
	}
	limit, offset := pagination(c)

	campaigns, err := h.campaignService.List(c.UserContext(), services.ListCampaignsInput{
		Creator: creator,
		State:   state,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	total, err := h.campaignService.Count(c.UserContext(), creator, state)
	if err != nil {
		return fail(c, h.log, err)
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{
		Items: campaigns, Total: total, Limit: limit, Offset: offset,
	}})
}

// CountCampaigns
// GET /campaigns/count?creator=&state=
func (h *CampaignHandler) CountCampaigns(c *fiber.Ctx) error {
	creator, state, err := h.listFilter(c)
	if err != nil {
		return badRequest(c, "invalid creator address")
	}
	total, err := h.campaignService.Count(c.UserContext(), creator, state)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"count": total}})
}

// GET /campaigns/:id
func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	details, err := h.campaignService.GetCampaign(c.UserContext(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: details})
}

// GET /campaigns/:id/milestones
func (h *CampaignHandler) GetMilestones(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	milestones, err := h.campaignService.GetMilestones(c.UserContext(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: milestones})
}

// GET /campaigns/:id/milestones/:mid
func (h *CampaignHandler) GetMilestone(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	mid, err := milestoneID(c)
	if err != nil {
		return badRequest(c, "invalid milestone id")
	}
	m, err := h.campaignService.GetMilestone(c.UserContext(), id, mid)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: m})
}

// GET /campaigns/:id/milestones/:mid/votes/:address
func (h *CampaignHandler) HasVoted(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	mid, err := milestoneID(c)
	if err != nil {
		return badRequest(c, "invalid milestone id")
	}
	voter, err := ton.NormalizeAddress(c.Params("address"))
	if err != nil {
		return badRequest(c, "invalid address")
	}
	voted, err := h.campaignService.HasVoted(c.UserContext(), id, mid, voter)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.HasVotedResponse{Voted: voted}})
}

// GET /campaigns/:id/contributions/:address
func (h *CampaignHandler) GetContribution(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	addr, err := ton.NormalizeAddress(c.Params("address"))
	if err != nil {
		return badRequest(c, "invalid address")
	}
	amount, err := h.campaignService.ContributionOf(c.UserContext(), id, addr)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ContributionResponse{
		Address: addr, Amount: amount, AmountTON: ton.FormatTON(amount),
	}})
}

// GET /campaigns/:id/events
func (h *CampaignHandler) GetEvents(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	limit, offset := pagination(c)
	logs, err := h.campaignService.Events(c.UserContext(), id, limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}

// GET /campaigns/:id/payouts
func (h *CampaignHandler) GetPayouts(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	limit, offset := pagination(c)
	payouts, err := h.campaignService.Payouts(c.UserContext(), id, limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payouts})
}

// GetPaymentInfo tells contributors where to send TON and which memo to use.
// GET /campaigns/:id/payment
func (h *CampaignHandler) GetPaymentInfo(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	details, err := h.campaignService.GetCampaign(c.UserContext(), id)
	if err != nil {
		return fail(c, h.log, err)
	}

	var remaining uint64
	if details.Goal > details.TotalContributed {
		remaining = details.Goal - details.TotalContributed
	}
	wallet := h.cfg.TONHotWalletAddress
	if raw, err := ton.NormalizeAddress(wallet); err == nil {
		wallet = ton.Friendly(raw, h.cfg.TONNetwork != "mainnet")
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PaymentInfoResponse{
		CampaignID:      id.String(),
		WalletAddress:   wallet,
		Memo:            ton.CampaignMemo(id),
		RemainingNano:   remaining,
		RemainingTON:    ton.FormatTON(remaining),
		State:           details.State,
		AcceptsDeposits: details.State == models.CampaignStateActive,
	}})
}

// POST /campaigns/:id/milestones/submit
func (h *CampaignHandler) SubmitMilestone(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	mid, err := h.campaignService.SubmitMilestone(c.UserContext(), id, middleware.GetAddress(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"milestone_id": mid}})
}

// POST /campaigns/:id/milestones/:mid/start-voting
func (h *CampaignHandler) StartVoting(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	mid, err := milestoneID(c)
	if err != nil {
		return badRequest(c, "invalid milestone id")
	}
	var req dto.StartVotingRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if req.DurationSeconds < 0 {
		return badRequest(c, "duration_seconds must not be negative")
	}

	err = h.campaignService.StartMilestoneVoting(c.UserContext(), id, middleware.GetAddress(c), mid,
		time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// POST /campaigns/:id/milestones/:mid/vote
func (h *CampaignHandler) Vote(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	mid, err := milestoneID(c)
	if err != nil {
		return badRequest(c, "invalid milestone id")
	}
	var req dto.VoteRequest
	if err := c.BodyParser(&req); err != nil || req.Support == nil {
		return badRequest(c, "support is required")
	}

	weight, err := h.campaignService.Vote(c.UserContext(), id, middleware.GetAddress(c), mid, *req.Support)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.VoteResponse{Weight: weight}})
}

// POST /campaigns/:id/milestones/:mid/finalize
func (h *CampaignHandler) Finalize(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	mid, err := milestoneID(c)
	if err != nil {
		return badRequest(c, "invalid milestone id")
	}
	approved, err := h.campaignService.FinalizeMilestoneVoting(c.UserContext(), id, middleware.GetAddress(c), mid)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.FinalizeResponse{Approved: approved}})
}

// POST /campaigns/:id/milestones/:mid/complete
func (h *CampaignHandler) CompleteMilestone(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	mid, err := milestoneID(c)
	if err != nil {
		return badRequest(c, "invalid milestone id")
	}
	r, err := h.campaignService.CompleteMilestone(c.UserContext(), id, middleware.GetAddress(c), mid)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: releaseResponse(r.Gross, r.Fee, r.Net, r.Milestones)})
}

// POST /campaigns/:id/withdraw
func (h *CampaignHandler) Withdraw(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	r, err := h.campaignService.Withdraw(c.UserContext(), id, middleware.GetAddress(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: releaseResponse(r.Gross, r.Fee, r.Net, r.Milestones)})
}

func releaseResponse(gross, fee, net uint64, milestones []int) dto.ReleaseResponse {
	return dto.ReleaseResponse{Gross: gross, Fee: fee, Net: net, NetTON: ton.FormatTON(net), Milestones: milestones}
}

// POST /campaigns/:id/refund
func (h *CampaignHandler) Refund(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return badRequest(c, "invalid campaign id")
	}
	amount, err := h.campaignService.Refund(c.UserContext(), id, middleware.GetAddress(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.RefundResponse{Amount: amount, AmountTON: ton.FormatTON(amount)}})
}
