package escrow

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// BPSDenominator is the basis-point scale of the platform fee.
	BPSDenominator = 10000

	// MaxAmount bounds every nanoTON quantity so that it fits a signed BIGINT column.
	MaxAmount = uint64(math.MaxInt64)

	DefaultVotingDuration = 7 * 24 * time.Hour
)

// Rules are the governance constants of a campaign, fixed at construction.
type Rules struct {
	QuorumPercent         uint8
	ApprovalPercent       uint8
	MilestonePhase        string
	DefaultVotingDuration time.Duration
}

type Vote struct {
	Support bool   `json:"support"`
	Weight  uint64 `json:"weight"`
}

type Milestone struct {
	Description    string    `json:"description"`
	Amount         uint64    `json:"amount"`
	VotingDeadline time.Time `json:"voting_deadline"`
	VotesFor       uint64    `json:"votes_for"`
	VotesAgainst   uint64    `json:"votes_against"`
	State          string    `json:"state"`

	Voters map[string]Vote `json:"-"`
}

// Snapshot is the full persisted state of one campaign and its milestones.
type Snapshot struct {
	ID                uuid.UUID
	Creator           string
	Title             string
	Description       string
	Goal              uint64
	Deadline          time.Time
	CreatedAt         time.Time
	TotalContributed  uint64
	TotalWithdrawn    uint64
	TotalRefunded     uint64
	State             string
	FeeRecipient      string
	FeeBPS            uint16
	Rules             Rules
	ActiveVotingCount int
	Contributions     map[string]uint64
	Milestones        []Milestone
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Contributions = make(map[string]uint64, len(s.Contributions))
	for k, v := range s.Contributions {
		out.Contributions[k] = v
	}
	out.Milestones = make([]Milestone, len(s.Milestones))
	for i, m := range s.Milestones {
		voters := make(map[string]Vote, len(m.Voters))
		for k, v := range m.Voters {
			voters[k] = v
		}
		m.Voters = voters
		out.Milestones[i] = m
	}
	return out
}

// Params describe a campaign to be created.
type Params struct {
	ID                    uuid.UUID
	Creator               string
	Title                 string
	Description           string
	Goal                  uint64
	Duration              time.Duration
	MilestoneDescriptions []string
	MilestoneAmounts      []uint64
	FeeRecipient          string
	FeeBPS                uint16
	Rules                 Rules
}

// Payout is a transfer out of escrow authorized by a campaign operation.
type Payout struct {
	CampaignID uuid.UUID
	Kind       string
	Recipient  string
	Amount     uint64
	Milestones []int
}

// Payouts executes or records transfers. An error aborts the operation that
// requested the transfer.
type Payouts interface {
	Transfer(ctx context.Context, p Payout) error
}

type PayoutsFunc func(ctx context.Context, p Payout) error

func (f PayoutsFunc) Transfer(ctx context.Context, p Payout) error { return f(ctx, p) }

type Options struct {
	Payouts Payouts
	// Sink receives the events of an operation after it commits.
	Sink func(Event)
}

// Info is the campaign summary returned by reads.
type Info struct {
	ID                uuid.UUID `json:"id"`
	Creator           string    `json:"creator"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Goal              uint64    `json:"goal"`
	Deadline          time.Time `json:"deadline"`
	TotalContributed  uint64    `json:"total_contributed"`
	TotalWithdrawn    uint64    `json:"total_withdrawn"`
	TotalRefunded     uint64    `json:"total_refunded"`
	State             string    `json:"state"`
	FeeRecipient      string    `json:"fee_recipient"`
	FeeBPS            uint16    `json:"fee_bps"`
	QuorumPercent     uint8     `json:"quorum_percent"`
	ApprovalPercent   uint8     `json:"approval_percent"`
	MilestonePhase    string    `json:"milestone_phase"`
	ActiveVotingCount int       `json:"active_voting_count"`
	MilestoneCount    int       `json:"milestone_count"`
	RefundOpen        bool      `json:"refund_open"`
	Balance           uint64    `json:"balance"`
}

// Release is the outcome of a withdrawal.
type Release struct {
	Gross      uint64 `json:"gross"`
	Fee        uint64 `json:"fee"`
	Net        uint64 `json:"net"`
	Milestones []int  `json:"milestones"`
}
