package dto

import "github.com/milestone-escrow/backend/internal/ton"

// TonProofLoginRequest is the ton_proof reply forwarded by the dApp.
type TonProofLoginRequest = ton.ProofData

// CreateCampaignRequest carries amounts as decimal TON strings ("12.5").
type CreateCampaignRequest struct {
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	GoalTON               string   `json:"goal_ton"`
	DurationSeconds       int64    `json:"duration_seconds"`
	MilestoneDescriptions []string `json:"milestone_descriptions"`
	MilestoneAmountsTON   []string `json:"milestone_amounts_ton"`
}

type StartVotingRequest struct {
	// DurationSeconds of 0 selects the campaign default.
	DurationSeconds int64 `json:"duration_seconds"`
}

type VoteRequest struct {
	Support *bool `json:"support"`
}

type SetFeePercentageRequest struct {
	FeeBPS *int `json:"fee_bps"`
}

type SetFeeRecipientRequest struct {
	FeeRecipient string `json:"fee_recipient"`
}
