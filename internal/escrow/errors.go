package escrow

import "errors"

var (
	ErrUnauthorized                  = errors.New("caller is not allowed to perform this action")
	ErrNotAContributor               = errors.New("caller has no contribution in this campaign")
	ErrInvalidMilestoneState         = errors.New("milestone is not in the required state")
	ErrVotingNotActive               = errors.New("milestone voting is not active")
	ErrAlreadyVoted                  = errors.New("caller already voted on this milestone")
	ErrCampaignNotEnded              = errors.New("campaign has not ended")
	ErrDeadlinePassed                = errors.New("campaign deadline has passed")
	ErrGoalReached                   = errors.New("campaign goal already reached")
	ErrGoalNotReached                = errors.New("campaign goal not reached")
	ErrInvalidAmount                 = errors.New("invalid amount")
	ErrInvalidMilestoneConfiguration = errors.New("invalid milestone configuration")
	ErrMilestoneAmountExceedsBalance = errors.New("milestone amount exceeds escrow balance")
	ErrMilestoneNotFound             = errors.New("milestone not found")
	ErrInsufficientFunds             = errors.New("insufficient funds")
	ErrReentrantCall                 = errors.New("ReentrancyGuardReentrantCall")
	ErrInvalidCampaignState          = errors.New("campaign is not in the required state")
	ErrVotingPeriodNotOver           = errors.New("voting period is not over")
	ErrInvalidCampaignParams         = errors.New("invalid campaign parameters")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotAContributor, "NotAContributor"},
	{ErrInvalidMilestoneState, "InvalidMilestoneState"},
	{ErrVotingNotActive, "VotingNotActive"},
	{ErrAlreadyVoted, "AlreadyVoted"},
	{ErrCampaignNotEnded, "CampaignNotEnded"},
	{ErrDeadlinePassed, "DeadlinePassed"},
	{ErrGoalReached, "GoalReached"},
	{ErrGoalNotReached, "GoalNotReached"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidMilestoneConfiguration, "InvalidMilestoneConfiguration"},
	{ErrMilestoneAmountExceedsBalance, "MilestoneAmountExceedsBalance"},
	{ErrMilestoneNotFound, "MilestoneNotFound"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrReentrantCall, "ReentrancyGuardReentrantCall"},
	{ErrInvalidCampaignState, "InvalidCampaignState"},
	{ErrVotingPeriodNotOver, "VotingPeriodNotOver"},
	{ErrInvalidCampaignParams, "InvalidCampaignParams"},
}

// Code returns the stable machine-readable name of a domain error, or ""
// when err does not wrap one.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
