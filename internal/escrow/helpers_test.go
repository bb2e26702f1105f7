package escrow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/models"
)

const (
	creator  = "0:c4ea7042"
	alice    = "0:a11ce000"
	bob      = "0:b0b00000"
	carol    = "0:ca401000"
	platform = "0:fee00000"
)

var (
	t0       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	duration = 30 * 24 * time.Hour
	deadline = t0.Add(duration)
	bg       = context.Background()
)

type recorder struct {
	payouts []escrow.Payout
	events  []escrow.Event
	fail    error
	hook    func(ctx context.Context, p escrow.Payout)
}

func (r *recorder) Transfer(ctx context.Context, p escrow.Payout) error {
	if r.hook != nil {
		r.hook(ctx, p)
	}
	if r.fail != nil {
		return r.fail
	}
	r.payouts = append(r.payouts, p)
	return nil
}

func (r *recorder) sink(e escrow.Event) { r.events = append(r.events, e) }

func (r *recorder) eventTypes() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.payouts = nil
	r.events = nil
}

func params(amounts ...uint64) escrow.Params {
	var goal uint64
	descs := make([]string, len(amounts))
	for i, a := range amounts {
		goal += a
		descs[i] = "milestone"
	}
	return escrow.Params{
		Creator:               creator,
		Title:                 "Community garden",
		Description:           "Raised beds and irrigation for the east lot",
		Goal:                  goal,
		Duration:              duration,
		MilestoneDescriptions: descs,
		MilestoneAmounts:      amounts,
		FeeRecipient:          platform,
		FeeBPS:                250,
		Rules: escrow.Rules{
			QuorumPercent:         50,
			ApprovalPercent:       50,
			MilestonePhase:        models.MilestonePhaseAny,
			DefaultVotingDuration: 7 * 24 * time.Hour,
		},
	}
}

func newCampaign(t *testing.T, p escrow.Params) (*escrow.Campaign, *recorder) {
	t.Helper()
	rec := &recorder{}
	c, err := escrow.New(t0, p, escrow.Options{Payouts: rec, Sink: rec.sink})
	require.NoError(t, err)
	rec.reset()
	return c, rec
}

// approvedCampaign returns a successful campaign (alice 60, bob 40 of 100)
// whose first milestone was approved.
func approvedCampaign(t *testing.T) (*escrow.Campaign, *recorder) {
	t.Helper()
	c, rec := newCampaign(t, params(40, 60))
	require.NoError(t, c.Contribute(bg, t0, alice, 60))
	require.NoError(t, c.Contribute(bg, t0, bob, 40))
	require.NoError(t, c.StartMilestoneVoting(bg, t0, creator, 0, time.Hour))
	_, err := c.VoteOnMilestone(bg, t0, alice, 0, true)
	require.NoError(t, err)
	approved, err := c.FinalizeMilestoneVoting(bg, t0.Add(2*time.Hour), 0)
	require.NoError(t, err)
	require.True(t, approved)
	rec.reset()
	return c, rec
}
