package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/milestone-escrow/backend/internal/models"
)

// Contribute credits amount from a contributor. Reaching the goal moves the
// campaign to successful in the same operation.
func (c *Campaign) Contribute(ctx context.Context, now time.Time, from string, amount uint64) error {
	return c.run(ctx, now, func(x *call) error {
		s := x.s
		if from == "" {
			return ErrUnauthorized
		}
		if amount == 0 {
			return fmt.Errorf("%w: contribution must be positive", ErrInvalidAmount)
		}
		switch {
		case s.State == models.CampaignStateSuccessful:
			return ErrGoalReached
		case s.State == models.CampaignStateFailed, x.now.After(s.Deadline):
			return ErrDeadlinePassed
		}
		total, ok := addAmount(s.TotalContributed, amount)
		if !ok {
			return fmt.Errorf("%w: total contributed overflows", ErrInvalidAmount)
		}

		s.TotalContributed = total
		s.Contributions[from] += amount
		x.emit(Event{Type: EventContributed, MilestoneID: -1, Account: from, Amount: amount})

		if s.TotalContributed >= s.Goal {
			return x.setState(models.CampaignStateSuccessful)
		}
		return nil
	})
}

// Withdraw releases every approved milestone to the creator, minus the
// platform fee.
func (c *Campaign) Withdraw(ctx context.Context, now time.Time, by string) (Release, error) {
	var out Release
	err := c.run(ctx, now, func(x *call) error {
		if err := x.checkRelease(by); err != nil {
			return err
		}
		var ids []int
		for i, m := range x.s.Milestones {
			if m.State == models.MilestoneStateApproved {
				ids = append(ids, i)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: no approved milestones", ErrInsufficientFunds)
		}
		var err error
		out, err = x.release(by, ids)
		return err
	})
	return out, err
}

// CompleteMilestone releases exactly one approved milestone.
func (c *Campaign) CompleteMilestone(ctx context.Context, now time.Time, by string, id int) (Release, error) {
	var out Release
	err := c.run(ctx, now, func(x *call) error {
		if err := x.checkRelease(by); err != nil {
			return err
		}
		m, err := x.milestone(id)
		if err != nil {
			return err
		}
		if m.State != models.MilestoneStateApproved {
			return fmt.Errorf("%w: milestone %d is %s", ErrInvalidMilestoneState, id, m.State)
		}
		out, err = x.release(by, []int{id})
		return err
	})
	return out, err
}

func (x *call) checkRelease(by string) error {
	if by == "" || by != x.s.Creator {
		return ErrUnauthorized
	}
	if x.s.State == models.CampaignStateActive {
		return ErrCampaignNotEnded
	}
	return nil
}

func (x *call) release(to string, ids []int) (Release, error) {
	s := x.s
	var gross uint64
	for _, id := range ids {
		gross += s.Milestones[id].Amount
	}
	if gross > s.balance() {
		return Release{}, fmt.Errorf("%w: release %d, balance %d", ErrMilestoneAmountExceedsBalance, gross, s.balance())
	}
	fee := mulDiv(gross, uint64(s.FeeBPS), BPSDenominator)
	if s.FeeRecipient == "" {
		fee = 0
	}
	net := gross - fee

	for _, id := range ids {
		if err := x.setMilestoneState(id, models.MilestoneStateCompleted); err != nil {
			return Release{}, err
		}
		x.emit(Event{Type: EventMilestoneCompleted, MilestoneID: id, Account: to, Amount: s.Milestones[id].Amount})
	}
	s.TotalWithdrawn += gross
	x.emit(Event{Type: EventWithdrawn, MilestoneID: -1, Account: to, Amount: net})

	if err := x.transfer(Payout{Kind: models.PayoutKindWithdrawal, Recipient: to, Amount: net, Milestones: ids}); err != nil {
		return Release{}, err
	}
	if err := x.transfer(Payout{Kind: models.PayoutKindFee, Recipient: s.FeeRecipient, Amount: fee, Milestones: ids}); err != nil {
		return Release{}, err
	}
	return Release{Gross: gross, Fee: fee, Net: net, Milestones: ids}, nil
}

// GetRefund pays a contributor their pro-rata share of the funds not yet
// withdrawn. A successful campaign refunding after a rejection keeps approved
// milestones reserved for the creator; a failed one does not.
func (c *Campaign) GetRefund(ctx context.Context, now time.Time, by string) (uint64, error) {
	var amount uint64
	err := c.run(ctx, now, func(x *call) error {
		s := x.s
		if by == "" {
			return ErrUnauthorized
		}
		if !s.refundOpen() {
			if s.State == models.CampaignStateActive {
				return ErrCampaignNotEnded
			}
			return ErrGoalReached
		}
		if s.ActiveVotingCount > 0 {
			return fmt.Errorf("%w: a milestone vote is in progress", ErrInvalidMilestoneState)
		}
		contributed := s.Contributions[by]
		if contributed == 0 {
			return ErrNotAContributor
		}

		reserve := s.refundReserve()
		pool := subFloor(s.TotalContributed, s.TotalWithdrawn+reserve)
		amount = mulDiv(contributed, pool, s.TotalContributed)
		if amount == 0 {
			return fmt.Errorf("%w: refundable share is zero", ErrInsufficientFunds)
		}
		if amount > subFloor(s.balance(), reserve) {
			return fmt.Errorf("%w: refund %d exceeds refundable balance", ErrInsufficientFunds, amount)
		}

		s.Contributions[by] = 0
		s.TotalRefunded += amount
		x.emit(Event{Type: EventRefunded, MilestoneID: -1, Account: by, Amount: amount})

		return x.transfer(Payout{Kind: models.PayoutKindRefund, Recipient: by, Amount: amount})
	})
	return amount, err
}
