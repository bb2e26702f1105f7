package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/milestone-escrow/backend/internal/models"
)

// StartMilestoneVoting opens the vote on milestone id for duration.
// Milestones are voted strictly in index order, one at a time.
func (c *Campaign) StartMilestoneVoting(ctx context.Context, now time.Time, by string, id int, duration time.Duration) error {
	return c.run(ctx, now, func(x *call) error {
		return x.startVoting(by, id, duration)
	})
}

// SubmitMilestone opens the vote on the next pending milestone with the
// default voting duration and returns its index.
func (c *Campaign) SubmitMilestone(ctx context.Context, now time.Time, by string) (int, error) {
	id := -1
	err := c.run(ctx, now, func(x *call) error {
		if by == "" || by != x.s.Creator {
			return ErrUnauthorized
		}
		next := x.s.nextPending()
		if next < 0 {
			return fmt.Errorf("%w: no pending milestones", ErrMilestoneNotFound)
		}
		id = next
		return x.startVoting(by, next, x.s.Rules.DefaultVotingDuration)
	})
	if err != nil {
		return -1, err
	}
	return id, nil
}

func (x *call) startVoting(by string, id int, duration time.Duration) error {
	s := x.s
	if by == "" || by != s.Creator {
		return ErrUnauthorized
	}
	m, err := x.milestone(id)
	if err != nil {
		return err
	}
	if err := s.checkVotingPhase(); err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("%w: voting duration must be positive", ErrInvalidAmount)
	}
	if m.State != models.MilestoneStatePending {
		return fmt.Errorf("%w: milestone %d is %s", ErrInvalidMilestoneState, id, m.State)
	}
	if s.ActiveVotingCount > 0 {
		return fmt.Errorf("%w: another milestone vote is active", ErrInvalidMilestoneState)
	}
	if next := s.nextPending(); next != id {
		return fmt.Errorf("%w: milestone %d must be voted first", ErrInvalidMilestoneState, next)
	}
	var cumulative uint64
	for i := 0; i <= id; i++ {
		cumulative += s.Milestones[i].Amount
	}
	if cumulative > s.TotalContributed {
		return fmt.Errorf("%w: milestones up to %d need %d, contributed %d",
			ErrMilestoneAmountExceedsBalance, id, cumulative, s.TotalContributed)
	}

	if err := x.setMilestoneState(id, models.MilestoneStateVotingActive); err != nil {
		return err
	}
	m.VotingDeadline = x.now.Add(duration)
	s.ActiveVotingCount = 1
	x.emit(Event{Type: EventMilestoneVotingStarted, MilestoneID: id, Account: by, Deadline: m.VotingDeadline})
	return nil
}

func (s *Snapshot) checkVotingPhase() error {
	if s.refundOpen() {
		return fmt.Errorf("%w: campaign is refunding", ErrInvalidCampaignState)
	}
	switch {
	case s.State == models.CampaignStateActive && s.Rules.MilestonePhase == models.MilestonePhaseSuccessful:
		return ErrGoalNotReached
	case s.State == models.CampaignStateSuccessful && s.Rules.MilestonePhase == models.MilestonePhaseActive:
		return ErrGoalReached
	}
	return nil
}

func (s *Snapshot) nextPending() int {
	for i, m := range s.Milestones {
		if m.State == models.MilestoneStatePending {
			return i
		}
	}
	return -1
}

// VoteOnMilestone records a one-shot vote weighted by the voter's current
// contribution and returns that weight.
func (c *Campaign) VoteOnMilestone(ctx context.Context, now time.Time, voter string, id int, support bool) (uint64, error) {
	var weight uint64
	err := c.run(ctx, now, func(x *call) error {
		if voter == "" {
			return ErrUnauthorized
		}
		m, err := x.milestone(id)
		if err != nil {
			return err
		}
		if m.State != models.MilestoneStateVotingActive || x.now.After(m.VotingDeadline) {
			return ErrVotingNotActive
		}
		if _, ok := m.Voters[voter]; ok {
			return ErrAlreadyVoted
		}
		weight = x.s.Contributions[voter]
		if weight == 0 {
			return ErrNotAContributor
		}

		if support {
			m.VotesFor += weight
		} else {
			m.VotesAgainst += weight
		}
		m.Voters[voter] = Vote{Support: support, Weight: weight}
		x.emit(Event{Type: EventMilestoneVoted, MilestoneID: id, Account: voter, Amount: weight, Support: support})
		return nil
	})
	return weight, err
}

// FinalizeMilestoneVoting closes the vote on milestone id once its deadline
// has passed. Anyone may finalize.
func (c *Campaign) FinalizeMilestoneVoting(ctx context.Context, now time.Time, id int) (bool, error) {
	var approved bool
	err := c.run(ctx, now, func(x *call) error {
		s := x.s
		m, err := x.milestone(id)
		if err != nil {
			return err
		}
		if m.State != models.MilestoneStateVotingActive {
			return fmt.Errorf("%w: milestone %d is %s", ErrInvalidMilestoneState, id, m.State)
		}
		if !x.now.After(m.VotingDeadline) {
			return ErrVotingPeriodNotOver
		}

		approved = Decide(m.VotesFor, m.VotesAgainst, s.TotalContributed, s.Rules.QuorumPercent, s.Rules.ApprovalPercent)
		to, typ := models.MilestoneStateRejected, EventMilestoneRejected
		if approved {
			to, typ = models.MilestoneStateApproved, EventMilestoneApproved
		}
		if err := x.setMilestoneState(id, to); err != nil {
			return err
		}
		s.ActiveVotingCount = 0
		x.emit(Event{Type: typ, MilestoneID: id, Amount: m.Amount})
		return nil
	})
	return approved, err
}
