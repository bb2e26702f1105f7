package escrow_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/models"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name                   string
		votesFor, votesAgainst uint64
		total                  uint64
		quorum, threshold      uint8
		want                   bool
	}{
		{"full turnout majority", 60, 40, 100, 50, 50, true},
		{"quorum not met", 10, 5, 100, 50, 50, false},
		{"quorum exactly met", 30, 20, 100, 50, 50, true},
		{"threshold exactly met", 50, 50, 100, 50, 50, true},
		{"threshold missed", 49, 51, 100, 50, 50, false},
		{"no votes", 0, 0, 100, 50, 50, false},
		{"nothing contributed", 0, 0, 0, 50, 50, false},
		{"only against", 0, 100, 100, 50, 50, false},
		{"supermajority required", 65, 35, 100, 50, 66, false},
		{"supermajority met", 66, 34, 100, 50, 66, true},
		{"huge amounts", math.MaxInt64 / 2, math.MaxInt64 / 4, math.MaxInt64, 50, 50, true},
		{"huge amounts below quorum", math.MaxInt64 / 4, math.MaxInt64 / 8, math.MaxInt64, 50, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escrow.Decide(tt.votesFor, tt.votesAgainst, tt.total, tt.quorum, tt.threshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVotingLifecycle(t *testing.T) {
	c, rec := newCampaign(t, params(50, 50))
	require.NoError(t, c.Contribute(bg, t0, alice, 60))
	require.NoError(t, c.Contribute(bg, t0, bob, 40))
	rec.reset()

	require.NoError(t, c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour))
	info, err := c.Info(bg, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, info.ActiveVotingCount)

	w, err := c.VoteOnMilestone(bg, t0.Add(time.Minute), alice, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), w)
	_, err = c.VoteOnMilestone(bg, t0.Add(time.Minute), bob, 0, false)
	require.NoError(t, err)

	voted, err := c.HasVoted(bg, t0, 0, alice)
	require.NoError(t, err)
	assert.True(t, voted)
	voted, err = c.HasVoted(bg, t0, 0, carol)
	require.NoError(t, err)
	assert.False(t, voted)

	_, err = c.FinalizeMilestoneVoting(bg, t0.Add(time.Hour), 0)
	assert.ErrorIs(t, err, escrow.ErrVotingPeriodNotOver, "the deadline itself is still inside the period")

	_, err = c.VoteOnMilestone(bg, t0.Add(time.Hour+time.Second), carol, 0, true)
	assert.ErrorIs(t, err, escrow.ErrVotingNotActive)

	end := t0.Add(2 * time.Hour)
	approved, err := c.FinalizeMilestoneVoting(bg, end, 0)
	require.NoError(t, err)
	assert.True(t, approved)

	m, err := c.MilestoneInfo(bg, end, 0)
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneStateApproved, m.State)
	assert.Equal(t, uint64(60), m.VotesFor)
	assert.Equal(t, uint64(40), m.VotesAgainst)
	assert.Nil(t, m.Voters)

	_, err = c.FinalizeMilestoneVoting(bg, end, 0)
	assert.ErrorIs(t, err, escrow.ErrInvalidMilestoneState, "second finalize fails")

	info, err = c.Info(bg, end)
	require.NoError(t, err)
	assert.Zero(t, info.ActiveVotingCount)

	assert.Equal(t, []string{
		escrow.EventMilestoneVotingStarted,
		escrow.EventMilestoneVoted,
		escrow.EventMilestoneVoted,
		escrow.EventMilestoneApproved,
	}, rec.eventTypes())
}

func TestQuorumNotMetRejectsAndOpensRefunds(t *testing.T) {
	c, _ := newCampaign(t, params(50, 50))
	require.NoError(t, c.Contribute(bg, t0, alice, 10))
	require.NoError(t, c.Contribute(bg, t0, bob, 5))
	require.NoError(t, c.Contribute(bg, t0, carol, 85))

	require.NoError(t, c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour))
	_, err := c.VoteOnMilestone(bg, t0, alice, 0, true)
	require.NoError(t, err)
	_, err = c.VoteOnMilestone(bg, t0, bob, 0, false)
	require.NoError(t, err)

	end := t0.Add(2 * time.Hour)
	approved, err := c.FinalizeMilestoneVoting(bg, end, 0)
	require.NoError(t, err)
	assert.False(t, approved)

	m, err := c.MilestoneInfo(bg, end, 0)
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneStateRejected, m.State)

	info, err := c.Info(bg, end)
	require.NoError(t, err)
	assert.True(t, info.RefundOpen)

	err = c.StartMilestoneVoting(bg, end, creator, 1, time.Hour)
	assert.ErrorIs(t, err, escrow.ErrInvalidCampaignState)

	amount, err := c.GetRefund(bg, end, carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(85), amount)
}

func TestStartMilestoneVotingGuards(t *testing.T) {
	c, _ := newCampaign(t, params(50, 50))
	require.NoError(t, c.Contribute(bg, t0, alice, 30))

	tests := []struct {
		name     string
		by       string
		id       int
		duration time.Duration
		want     error
	}{
		{"not the creator", alice, 0, time.Hour, escrow.ErrUnauthorized},
		{"unknown milestone", creator, 2, time.Hour, escrow.ErrMilestoneNotFound},
		{"negative index", creator, -1, time.Hour, escrow.ErrMilestoneNotFound},
		{"zero duration", creator, 0, 0, escrow.ErrInvalidAmount},
		{"out of order", creator, 1, time.Hour, escrow.ErrInvalidMilestoneState},
		{"not yet funded", creator, 0, time.Hour, escrow.ErrMilestoneAmountExceedsBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.StartMilestoneVoting(bg, t0, tt.by, tt.id, tt.duration)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	require.NoError(t, c.Contribute(bg, t0, alice, 20))
	require.NoError(t, c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour))

	err := c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour)
	assert.ErrorIs(t, err, escrow.ErrInvalidMilestoneState, "already voting")
}

func TestOnlyOneVoteActive(t *testing.T) {
	c, _ := newCampaign(t, params(50, 50))
	require.NoError(t, c.Contribute(bg, t0, alice, 100))
	require.NoError(t, c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour))

	err := c.StartMilestoneVoting(bg, t0, creator, 1, time.Hour)
	assert.ErrorIs(t, err, escrow.ErrInvalidMilestoneState)
}

func TestMilestonePhasePolicy(t *testing.T) {
	t.Run("successful only", func(t *testing.T) {
		p := params(50, 50)
		p.Rules.MilestonePhase = models.MilestonePhaseSuccessful
		c, _ := newCampaign(t, p)
		require.NoError(t, c.Contribute(bg, t0, alice, 60))

		err := c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour)
		assert.ErrorIs(t, err, escrow.ErrGoalNotReached)

		require.NoError(t, c.Contribute(bg, t0, bob, 40))
		require.NoError(t, c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour))
	})

	t.Run("active only", func(t *testing.T) {
		p := params(50, 50)
		p.Rules.MilestonePhase = models.MilestonePhaseActive
		c, _ := newCampaign(t, p)
		require.NoError(t, c.Contribute(bg, t0, alice, 100))

		err := c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour)
		assert.ErrorIs(t, err, escrow.ErrGoalReached)
	})

	t.Run("failed campaign", func(t *testing.T) {
		c, _ := newCampaign(t, params(50, 50))
		require.NoError(t, c.Contribute(bg, t0, alice, 60))

		err := c.StartMilestoneVoting(bg, deadline.Add(time.Second), creator, 0, time.Hour)
		assert.ErrorIs(t, err, escrow.ErrInvalidCampaignState)
	})
}

func TestVoteGuards(t *testing.T) {
	c, _ := newCampaign(t, params(50, 50))
	require.NoError(t, c.Contribute(bg, t0, alice, 100))

	_, err := c.VoteOnMilestone(bg, t0, alice, 0, true)
	assert.ErrorIs(t, err, escrow.ErrVotingNotActive, "pending milestone")

	_, err = c.VoteOnMilestone(bg, t0, alice, 3, true)
	assert.ErrorIs(t, err, escrow.ErrMilestoneNotFound)

	require.NoError(t, c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour))

	_, err = c.VoteOnMilestone(bg, t0, carol, 0, true)
	assert.ErrorIs(t, err, escrow.ErrNotAContributor)

	_, err = c.VoteOnMilestone(bg, t0, alice, 0, true)
	require.NoError(t, err)
	_, err = c.VoteOnMilestone(bg, t0, alice, 0, false)
	assert.ErrorIs(t, err, escrow.ErrAlreadyVoted)

	m, err := c.MilestoneInfo(bg, t0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), m.VotesFor)
	assert.Zero(t, m.VotesAgainst)
}

func TestSubmitMilestone(t *testing.T) {
	p := params(50, 50)
	p.Rules.DefaultVotingDuration = 48 * time.Hour
	c, _ := newCampaign(t, p)
	require.NoError(t, c.Contribute(bg, t0, alice, 100))

	_, err := c.SubmitMilestone(bg, t0, bob)
	assert.ErrorIs(t, err, escrow.ErrUnauthorized)

	id, err := c.SubmitMilestone(bg, t0, creator)
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	m, err := c.MilestoneInfo(bg, t0, 0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(48*time.Hour), m.VotingDeadline)

	_, err = c.VoteOnMilestone(bg, t0, alice, 0, true)
	require.NoError(t, err)
	end := t0.Add(49 * time.Hour)
	_, err = c.FinalizeMilestoneVoting(bg, end, 0)
	require.NoError(t, err)

	id, err = c.SubmitMilestone(bg, end, creator)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	_, err = c.VoteOnMilestone(bg, end, alice, 1, true)
	require.NoError(t, err)
	_, err = c.FinalizeMilestoneVoting(bg, end.Add(49*time.Hour), 1)
	require.NoError(t, err)

	_, err = c.SubmitMilestone(bg, end.Add(50*time.Hour), creator)
	assert.ErrorIs(t, err, escrow.ErrMilestoneNotFound)

	rel, err := c.Withdraw(bg, end.Add(50*time.Hour), creator)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), rel.Gross)
	assert.Equal(t, []int{0, 1}, rel.Milestones)
}

func TestFinalizeGuards(t *testing.T) {
	c, _ := newCampaign(t, params(50, 50))

	_, err := c.FinalizeMilestoneVoting(bg, t0, 7)
	assert.ErrorIs(t, err, escrow.ErrMilestoneNotFound)

	_, err = c.FinalizeMilestoneVoting(bg, t0, 0)
	assert.ErrorIs(t, err, escrow.ErrInvalidMilestoneState)
}
