package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign states
const (
	CampaignStateActive     = "active"
	CampaignStateSuccessful = "successful"
	CampaignStateFailed     = "failed"
)

// Valid state transitions: from -> []to
var ValidCampaignTransitions = map[string][]string{
	CampaignStateActive:     {CampaignStateSuccessful, CampaignStateFailed},
	CampaignStateSuccessful: {},
	CampaignStateFailed:     {},
}

func IsValidCampaignTransition(from, to string) bool {
	return allows(ValidCampaignTransitions, from, to)
}

// Milestone phase policies: which campaign states allow a milestone vote to start.
const (
	MilestonePhaseAny        = "any"
	MilestonePhaseActive     = "active"
	MilestonePhaseSuccessful = "successful"
)

func IsValidMilestonePhase(p string) bool {
	switch p {
	case MilestonePhaseAny, MilestonePhaseActive, MilestonePhaseSuccessful:
		return true
	}
	return false
}

// Campaign is the listing row of a campaign. Amounts are nanoTON.
type Campaign struct {
	ID                   uuid.UUID `json:"id"`
	Creator              string    `json:"creator"` // raw: 0:<hex>
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Goal                 uint64    `json:"goal"`
	Deadline             time.Time `json:"deadline"`
	TotalContributed     uint64    `json:"total_contributed"`
	TotalWithdrawn       uint64    `json:"total_withdrawn"`
	TotalRefunded        uint64    `json:"total_refunded"`
	State                string    `json:"state"`
	FeeRecipient         string    `json:"fee_recipient"`
	FeeBPS               int       `json:"fee_bps"`
	QuorumPercent        int       `json:"quorum_percent"`
	ApprovalPercent      int       `json:"approval_percent"`
	MilestonePhase       string    `json:"milestone_phase"`
	DefaultVotingSeconds int64     `json:"default_voting_seconds"`
	ActiveVotingCount    int       `json:"active_voting_count"`
	MilestoneCount       int       `json:"milestone_count"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// EffectiveState is the state a campaign has at now, including the lazy
// deadline transition that has not been persisted yet.
func (c *Campaign) EffectiveState(now time.Time) string {
	if c.State == CampaignStateActive && now.After(c.Deadline) && c.TotalContributed < c.Goal {
		return CampaignStateFailed
	}
	return c.State
}

func allows(m map[string][]string, from, to string) bool {
	allowed, ok := m[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
