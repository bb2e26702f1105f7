package escrow_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/models"
)

var campaignRank = map[string]int{
	models.CampaignStateActive:     0,
	models.CampaignStateSuccessful: 1,
	models.CampaignStateFailed:     1,
}

var milestoneRank = map[string]int{
	models.MilestoneStatePending:      0,
	models.MilestoneStateVotingActive: 1,
	models.MilestoneStateApproved:     2,
	models.MilestoneStateRejected:     2,
	models.MilestoneStateCompleted:    3,
}

// applyOp decodes v into one operation and runs it, ignoring domain errors.
func applyOp(c *escrow.Campaign, now time.Time, v uint32) {
	actors := []string{alice, bob, carol, creator}
	actor := actors[(v/8)%4]
	amount := uint64(v/32%50) + 1
	id := int(v/1600) % 3

	switch v % 8 {
	case 0, 1:
		_ = c.Contribute(bg, now, actor, amount)
	case 2:
		_ = c.StartMilestoneVoting(bg, now, creator, id, 2*time.Hour)
	case 3:
		_, _ = c.VoteOnMilestone(bg, now, actor, id, v%3 != 0)
	case 4:
		_, _ = c.FinalizeMilestoneVoting(bg, now, id)
	case 5:
		_, _ = c.Withdraw(bg, now, creator)
	case 6:
		_, _ = c.GetRefund(bg, now, actor)
	case 7:
		_, _ = c.SubmitMilestone(bg, now, creator)
	}
}

func TestLedgerInvariantsUnderRandomOperations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("accounting and state machines hold after every operation", prop.ForAll(
		func(ops []uint32) bool {
			p := params(30, 30, 40)
			p.Duration = 24 * time.Hour
			rec := &recorder{}
			c, err := escrow.New(t0, p, escrow.Options{Payouts: rec, Sink: rec.sink})
			if err != nil {
				return false
			}

			prev := c.Snapshot()
			now := t0
			for _, v := range ops {
				now = now.Add(time.Duration(v%7) * time.Hour)
				applyOp(c, now, v)
				s := c.Snapshot()

				if s.TotalContributed < s.TotalWithdrawn+s.TotalRefunded {
					return false
				}
				if campaignRank[s.State] < campaignRank[prev.State] {
					return false
				}
				if prev.State != models.CampaignStateActive && s.State != prev.State {
					return false
				}

				var held, voting, completed uint64
				for _, amount := range s.Contributions {
					held += amount
				}
				if held > s.TotalContributed {
					return false
				}
				for i, m := range s.Milestones {
					if milestoneRank[m.State] < milestoneRank[prev.Milestones[i].State] {
						return false
					}
					if prev.Milestones[i].State == models.MilestoneStateRejected && m.State != models.MilestoneStateRejected {
						return false
					}
					if m.State == models.MilestoneStateVotingActive {
						voting++
					}
					if m.State == models.MilestoneStateCompleted {
						completed += m.Amount
					}
					var weights uint64
					for _, vote := range m.Voters {
						weights += vote.Weight
					}
					if weights != m.VotesFor+m.VotesAgainst || weights > s.TotalContributed {
						return false
					}
				}
				if voting > 1 || int(voting) != s.ActiveVotingCount {
					return false
				}
				if completed != s.TotalWithdrawn {
					return false
				}

				var paid uint64
				for _, po := range rec.payouts {
					paid += po.Amount
				}
				if paid != s.TotalWithdrawn+s.TotalRefunded {
					return false
				}
				prev = s
			}
			return true
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.TestingRun(t)
}

func TestFailedCampaignRefundsEveryContribution(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("refunds after failure return exactly what was contributed", prop.ForAll(
		func(a, b, c uint64) bool {
			camp, err := escrow.New(t0, params(1_000_000), escrow.Options{})
			if err != nil {
				return false
			}
			contributed := map[string]uint64{alice: a, bob: b, carol: c}
			for who, amount := range contributed {
				if camp.Contribute(bg, t0, who, amount) != nil {
					return false
				}
			}
			after := deadline.Add(time.Second)
			var refunded uint64
			for who, amount := range contributed {
				got, err := camp.GetRefund(bg, after, who)
				if err != nil || got != amount {
					return false
				}
				refunded += got
			}
			info, err := camp.Info(bg, after)
			return err == nil && info.Balance == 0 && refunded == info.TotalContributed
		},
		gen.UInt64Range(1, 333_333),
		gen.UInt64Range(1, 333_333),
		gen.UInt64Range(1, 333_333),
	))

	properties.TestingRun(t)
}

func TestRefundAfterRejectionIsProRata(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("refund equals c*(T-W)/T and never exceeds the escrow", prop.ForAll(
		func(first, c1, extra uint64) bool {
			camp, err := escrow.New(t0, params(first, 1000-first), escrow.Options{})
			if err != nil {
				return false
			}
			c2 := 1000 - c1 + extra
			if camp.Contribute(bg, t0, alice, c1) != nil || camp.Contribute(bg, t0, bob, c2) != nil {
				return false
			}
			if camp.StartMilestoneVoting(bg, t0, creator, 0, time.Hour) != nil {
				return false
			}
			_, _ = camp.VoteOnMilestone(bg, t0, alice, 0, true)
			_, _ = camp.VoteOnMilestone(bg, t0, bob, 0, true)
			t1 := t0.Add(2 * time.Hour)
			if ok, err := camp.FinalizeMilestoneVoting(bg, t1, 0); err != nil || !ok {
				return false
			}
			if _, err := camp.Withdraw(bg, t1, creator); err != nil {
				return false
			}
			if camp.StartMilestoneVoting(bg, t1, creator, 1, time.Hour) != nil {
				return false
			}
			_, _ = camp.VoteOnMilestone(bg, t1, alice, 1, false)
			_, _ = camp.VoteOnMilestone(bg, t1, bob, 1, false)
			t2 := t1.Add(2 * time.Hour)
			if ok, err := camp.FinalizeMilestoneVoting(bg, t2, 1); err != nil || ok {
				return false
			}

			total, withdrawn := c1+c2, first
			var refunded uint64
			for who, c := range map[string]uint64{alice: c1, bob: c2} {
				got, err := camp.GetRefund(bg, t2, who)
				if err != nil || got != c*(total-withdrawn)/total {
					return false
				}
				refunded += got
			}
			return refunded <= total-withdrawn
		},
		gen.UInt64Range(1, 999),
		gen.UInt64Range(1, 999),
		gen.UInt64Range(0, 500),
	))

	properties.TestingRun(t)
}

func TestDecideMatchesExactArithmetic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("Decide agrees with arbitrary-precision evaluation", prop.ForAll(
		func(votesFor, votesAgainst, rest uint64, quorum, threshold uint8) bool {
			total := votesFor + votesAgainst + rest
			votes := new(big.Int).SetUint64(votesFor + votesAgainst)
			lhsQ := new(big.Int).Mul(votes, big.NewInt(100))
			rhsQ := new(big.Int).Mul(new(big.Int).SetUint64(total), big.NewInt(int64(quorum)))
			lhsT := new(big.Int).Mul(new(big.Int).SetUint64(votesFor), big.NewInt(100))
			rhsT := new(big.Int).Mul(votes, big.NewInt(int64(threshold)))

			want := total > 0 && votes.Sign() > 0 && lhsQ.Cmp(rhsQ) >= 0 && lhsT.Cmp(rhsT) >= 0
			return escrow.Decide(votesFor, votesAgainst, total, quorum, threshold) == want
		},
		gen.UInt64Range(0, escrow.MaxAmount/3),
		gen.UInt64Range(0, escrow.MaxAmount/3),
		gen.UInt64Range(0, escrow.MaxAmount/3),
		gen.UInt8Range(1, 100),
		gen.UInt8Range(1, 100),
	))

	properties.TestingRun(t)
}
