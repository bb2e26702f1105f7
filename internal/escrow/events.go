package escrow

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventCampaignCreated        = "campaign_created"
	EventMilestoneCreated       = "milestone_created"
	EventContributed            = "contributed"
	EventCampaignStateChanged   = "campaign_state_changed"
	EventMilestoneVotingStarted = "milestone_voting_started"
	EventMilestoneVoted         = "milestone_voted"
	EventMilestoneApproved      = "milestone_approved"
	EventMilestoneRejected      = "milestone_rejected"
	EventMilestoneCompleted     = "milestone_completed"
	EventWithdrawn              = "withdrawn"
	EventRefunded               = "refunded"
)

// Event is an observable fact produced by a committed operation. Fields that
// do not apply to Type are left zero; MilestoneID is -1 for campaign events.
type Event struct {
	Type        string
	CampaignID  uuid.UUID
	MilestoneID int
	Account     string
	Amount      uint64
	State       string
	Support     bool
	Deadline    time.Time
	At          time.Time
}

// Payload flattens the event for the pub/sub bus and the audit log. Amounts
// are decimal strings so that JSON consumers keep full precision.
func (e Event) Payload() map[string]any {
	p := map[string]any{
		"campaign_id": e.CampaignID.String(),
		"at":          e.At.UTC().Format(time.RFC3339),
	}
	if e.MilestoneID >= 0 {
		p["milestone_id"] = e.MilestoneID
	}
	if e.Account != "" {
		p["account"] = e.Account
	}
	switch e.Type {
	case EventContributed, EventWithdrawn, EventRefunded, EventMilestoneCompleted, EventMilestoneCreated,
		EventCampaignCreated, EventMilestoneApproved, EventMilestoneRejected:
		p["amount"] = strconv.FormatUint(e.Amount, 10)
	case EventMilestoneVoted:
		p["amount"] = strconv.FormatUint(e.Amount, 10)
		p["support"] = e.Support
	case EventMilestoneVotingStarted:
		p["voting_deadline"] = e.Deadline.UTC().Format(time.RFC3339)
	case EventCampaignStateChanged:
		p["state"] = e.State
	}
	return p
}
