package escrow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/milestone-escrow/backend/internal/models"
)

// Campaign is one escrow ledger together with its milestone governance.
// Every operation holds the campaign lock for its whole duration, evaluates
// the deadline first and works on a copy of the state that is committed only
// when the operation succeeds.
type Campaign struct {
	id uuid.UUID

	mu      sync.Mutex
	data    Snapshot
	payouts Payouts
	sink    func(Event)

	// inHook is set while payout or event hooks run under the lock.
	inHook atomic.Bool
}

type guardKey struct{ id uuid.UUID }

// call is the scope of a single operation.
type call struct {
	ctx     context.Context
	now     time.Time
	s       *Snapshot
	payouts Payouts
	events  []Event
	inHook  *atomic.Bool
}

// New validates p and creates an active campaign whose deadline is
// now+p.Duration. No campaign exists when an error is returned.
func New(now time.Time, p Params, opts Options) (*Campaign, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	rules := p.Rules
	if rules.MilestonePhase == "" {
		rules.MilestonePhase = models.MilestonePhaseAny
	}
	if rules.DefaultVotingDuration <= 0 {
		rules.DefaultVotingDuration = DefaultVotingDuration
	}

	s := Snapshot{
		ID:            id,
		Creator:       p.Creator,
		Title:         p.Title,
		Description:   p.Description,
		Goal:          p.Goal,
		Deadline:      now.Add(p.Duration),
		CreatedAt:     now,
		State:         models.CampaignStateActive,
		FeeRecipient:  p.FeeRecipient,
		FeeBPS:        p.FeeBPS,
		Rules:         rules,
		Contributions: map[string]uint64{},
		Milestones:    make([]Milestone, len(p.MilestoneAmounts)),
	}
	if s.FeeRecipient == "" {
		s.FeeBPS = 0
	}
	for i, amount := range p.MilestoneAmounts {
		s.Milestones[i] = Milestone{
			Description: p.MilestoneDescriptions[i],
			Amount:      amount,
			State:       models.MilestoneStatePending,
			Voters:      map[string]Vote{},
		}
	}

	c := Restore(s, opts)
	if c.sink != nil {
		c.sink(Event{Type: EventCampaignCreated, CampaignID: id, MilestoneID: -1, Account: p.Creator, Amount: p.Goal, At: now})
		for i, m := range s.Milestones {
			c.sink(Event{Type: EventMilestoneCreated, CampaignID: id, MilestoneID: i, Amount: m.Amount, At: now})
		}
	}
	return c, nil
}

func validateParams(p Params) error {
	switch {
	case p.Creator == "":
		return fmt.Errorf("%w: creator is required", ErrInvalidCampaignParams)
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidCampaignParams)
	case strings.TrimSpace(p.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalidCampaignParams)
	case p.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidCampaignParams)
	case p.FeeBPS > BPSDenominator:
		return fmt.Errorf("%w: fee %d bps exceeds %d", ErrInvalidCampaignParams, p.FeeBPS, BPSDenominator)
	case p.Rules.QuorumPercent == 0 || p.Rules.QuorumPercent > 100:
		return fmt.Errorf("%w: quorum must be 1..100", ErrInvalidCampaignParams)
	case p.Rules.ApprovalPercent == 0 || p.Rules.ApprovalPercent > 100:
		return fmt.Errorf("%w: approval threshold must be 1..100", ErrInvalidCampaignParams)
	case p.Rules.MilestonePhase != "" && !models.IsValidMilestonePhase(p.Rules.MilestonePhase):
		return fmt.Errorf("%w: unknown milestone phase %q", ErrInvalidCampaignParams, p.Rules.MilestonePhase)
	}
	if p.Goal == 0 || p.Goal > MaxAmount {
		return fmt.Errorf("%w: goal out of range", ErrInvalidAmount)
	}

	if len(p.MilestoneAmounts) == 0 {
		return fmt.Errorf("%w: at least one milestone is required", ErrInvalidMilestoneConfiguration)
	}
	if len(p.MilestoneDescriptions) != len(p.MilestoneAmounts) {
		return fmt.Errorf("%w: %d descriptions for %d amounts",
			ErrInvalidMilestoneConfiguration, len(p.MilestoneDescriptions), len(p.MilestoneAmounts))
	}
	var sum uint64
	for i, amount := range p.MilestoneAmounts {
		if amount == 0 {
			return fmt.Errorf("%w: milestone %d has zero amount", ErrInvalidMilestoneConfiguration, i)
		}
		if strings.TrimSpace(p.MilestoneDescriptions[i]) == "" {
			return fmt.Errorf("%w: milestone %d has no description", ErrInvalidMilestoneConfiguration, i)
		}
		var ok bool
		if sum, ok = addAmount(sum, amount); !ok {
			return fmt.Errorf("%w: milestone amounts overflow", ErrInvalidMilestoneConfiguration)
		}
	}
	if sum != p.Goal {
		return fmt.Errorf("%w: milestones sum to %d, goal is %d", ErrInvalidMilestoneConfiguration, sum, p.Goal)
	}
	return nil
}

// Restore rebuilds a campaign from persisted state. s is copied.
func Restore(s Snapshot, opts Options) *Campaign {
	s = s.clone()
	if s.Contributions == nil {
		s.Contributions = map[string]uint64{}
	}
	return &Campaign{
		id:      s.ID,
		data:    s,
		payouts: opts.Payouts,
		sink:    opts.Sink,
	}
}

func (c *Campaign) ID() uuid.UUID { return c.id }

// Snapshot returns a copy of the committed state. It must not be called from
// a payout hook of the same campaign.
func (c *Campaign) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.clone()
}

// run executes fn under the campaign lock. A context that already carries the
// marker of this campaign, or any call made while a hook is running, was
// reached from inside one of the campaign's own operations and is rejected
// before the lock is touched.
func (c *Campaign) run(ctx context.Context, now time.Time, fn func(*call) error) error {
	if ctx.Value(guardKey{c.id}) != nil || c.inHook.Load() {
		return ErrReentrantCall
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.data.clone()
	x := &call{
		ctx:     context.WithValue(ctx, guardKey{c.id}, struct{}{}),
		now:     now,
		s:       &next,
		payouts: c.payouts,
		inHook:  &c.inHook,
	}
	if err := x.evaluateDeadline(); err != nil {
		return err
	}
	if err := fn(x); err != nil {
		return err
	}

	c.data = next
	if c.sink != nil && len(x.events) > 0 {
		c.inHook.Store(true)
		defer c.inHook.Store(false)
		for _, e := range x.events {
			c.sink(e)
		}
	}
	return nil
}

func (x *call) emit(e Event) {
	e.CampaignID = x.s.ID
	e.At = x.now
	x.events = append(x.events, e)
}

func (x *call) setState(to string) error {
	if !models.IsValidCampaignTransition(x.s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidCampaignState, x.s.State, to)
	}
	x.s.State = to
	x.emit(Event{Type: EventCampaignStateChanged, MilestoneID: -1, State: to})
	return nil
}

func (x *call) setMilestoneState(id int, to string) error {
	m := &x.s.Milestones[id]
	if !models.IsValidMilestoneTransition(m.State, to) {
		return fmt.Errorf("%w: milestone %d %s -> %s", ErrInvalidMilestoneState, id, m.State, to)
	}
	m.State = to
	return nil
}

func (x *call) evaluateDeadline() error {
	s := x.s
	if s.State == models.CampaignStateActive && x.now.After(s.Deadline) && s.TotalContributed < s.Goal {
		return x.setState(models.CampaignStateFailed)
	}
	return nil
}

func (x *call) transfer(p Payout) error {
	if p.Amount == 0 {
		return nil
	}
	if x.payouts == nil {
		return nil
	}
	p.CampaignID = x.s.ID
	if err := x.hook(func() error { return x.payouts.Transfer(x.ctx, p) }); err != nil {
		return fmt.Errorf("%s payout to %s: %w", p.Kind, p.Recipient, err)
	}
	return nil
}

func (x *call) hook(fn func() error) error {
	x.inHook.Store(true)
	defer x.inHook.Store(false)
	return fn()
}

func (x *call) milestone(id int) (*Milestone, error) {
	if id < 0 || id >= len(x.s.Milestones) {
		return nil, fmt.Errorf("%w: %d", ErrMilestoneNotFound, id)
	}
	return &x.s.Milestones[id], nil
}

// balance is what the escrow still holds for this campaign.
func (s *Snapshot) balance() uint64 {
	return subFloor(s.TotalContributed, s.TotalWithdrawn+s.TotalRefunded)
}

// refundReserve is what refunds must leave in escrow: approved but unwithdrawn
// milestones of a campaign that reached its goal. A failed campaign reserves
// nothing.
func (s *Snapshot) refundReserve() uint64 {
	if s.State == models.CampaignStateFailed {
		return 0
	}
	return s.reservedApproved()
}

// reservedApproved is the sum of approved milestones not yet withdrawn.
func (s *Snapshot) reservedApproved() uint64 {
	var sum uint64
	for _, m := range s.Milestones {
		if m.State == models.MilestoneStateApproved {
			sum += m.Amount
		}
	}
	return sum
}

// refundOpen reports whether contributors may reclaim their share: the
// campaign failed or a milestone was rejected by vote.
func (s *Snapshot) refundOpen() bool {
	if s.State == models.CampaignStateFailed {
		return true
	}
	for _, m := range s.Milestones {
		if m.State == models.MilestoneStateRejected {
			return true
		}
	}
	return false
}

func (s *Snapshot) info() Info {
	return Info{
		ID:                s.ID,
		Creator:           s.Creator,
		Title:             s.Title,
		Description:       s.Description,
		Goal:              s.Goal,
		Deadline:          s.Deadline,
		TotalContributed:  s.TotalContributed,
		TotalWithdrawn:    s.TotalWithdrawn,
		TotalRefunded:     s.TotalRefunded,
		State:             s.State,
		FeeRecipient:      s.FeeRecipient,
		FeeBPS:            s.FeeBPS,
		QuorumPercent:     s.Rules.QuorumPercent,
		ApprovalPercent:   s.Rules.ApprovalPercent,
		MilestonePhase:    s.Rules.MilestonePhase,
		ActiveVotingCount: s.ActiveVotingCount,
		MilestoneCount:    len(s.Milestones),
		RefundOpen:        s.refundOpen(),
		Balance:           s.balance(),
	}
}

// Info returns the campaign summary as of now.
func (c *Campaign) Info(ctx context.Context, now time.Time) (Info, error) {
	var out Info
	err := c.run(ctx, now, func(x *call) error {
		out = x.s.info()
		return nil
	})
	return out, err
}

func (c *Campaign) MilestoneCount(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := c.run(ctx, now, func(x *call) error {
		n = len(x.s.Milestones)
		return nil
	})
	return n, err
}

// MilestoneInfo returns milestone id without its voter set.
func (c *Campaign) MilestoneInfo(ctx context.Context, now time.Time, id int) (Milestone, error) {
	var out Milestone
	err := c.run(ctx, now, func(x *call) error {
		m, err := x.milestone(id)
		if err != nil {
			return err
		}
		out = *m
		out.Voters = nil
		return nil
	})
	return out, err
}

// Milestones returns every milestone without voter sets.
func (c *Campaign) Milestones(ctx context.Context, now time.Time) ([]Milestone, error) {
	var out []Milestone
	err := c.run(ctx, now, func(x *call) error {
		out = make([]Milestone, len(x.s.Milestones))
		for i, m := range x.s.Milestones {
			m.Voters = nil
			out[i] = m
		}
		return nil
	})
	return out, err
}

func (c *Campaign) HasVoted(ctx context.Context, now time.Time, id int, voter string) (bool, error) {
	var voted bool
	err := c.run(ctx, now, func(x *call) error {
		m, err := x.milestone(id)
		if err != nil {
			return err
		}
		_, voted = m.Voters[voter]
		return nil
	})
	return voted, err
}

func (c *Campaign) ContributionOf(ctx context.Context, now time.Time, addr string) (uint64, error) {
	var amount uint64
	err := c.run(ctx, now, func(x *call) error {
		amount = x.s.Contributions[addr]
		return nil
	})
	return amount, err
}

// TotalMilestoneAmount is the sum of all milestone amounts, equal to the goal.
func (c *Campaign) TotalMilestoneAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum uint64
	for _, m := range c.data.Milestones {
		sum += m.Amount
	}
	return sum
}
