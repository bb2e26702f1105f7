package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/models"
)

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

// Create inserts a new campaign with its milestones.
func (r *CampaignRepo) Create(ctx context.Context, tx pgx.Tx, s *escrow.Snapshot) error {
	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO campaigns (
			id, creator, title, description, goal, deadline, state,
			fee_recipient, fee_bps, quorum_percent, approval_percent,
			milestone_phase, default_voting_seconds, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, s.ID, s.Creator, s.Title, s.Description, i64(s.Goal), s.Deadline, s.State,
		s.FeeRecipient, int(s.FeeBPS), int(s.Rules.QuorumPercent), int(s.Rules.ApprovalPercent),
		s.Rules.MilestonePhase, int64(s.Rules.DefaultVotingDuration/time.Second), s.CreatedAt)

	for i, m := range s.Milestones {
		b.Queue(`
			INSERT INTO milestones (campaign_id, idx, description, amount, state)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, i, m.Description, i64(m.Amount), m.State)
	}
	return sendBatch(ctx, tx, b)
}

// LoadForUpdate locks the campaign row until tx ends and loads the full
// aggregate. pgx.ErrNoRows is returned for an unknown id.
func (r *CampaignRepo) LoadForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*escrow.Snapshot, error) {
	s := &escrow.Snapshot{
		Contributions: map[string]uint64{},
	}
	var (
		goal, contributed, withdrawn, refunded int64
		feeBPS, quorum, approval               int
		votingSeconds                          int64
	)
	err := tx.QueryRow(ctx, `
		SELECT id, creator, title, description, goal, deadline, created_at,
		       total_contributed, total_withdrawn, total_refunded, state,
		       fee_recipient, fee_bps, quorum_percent, approval_percent,
		       milestone_phase, default_voting_seconds, active_voting_count
		FROM campaigns WHERE id = $1
		FOR UPDATE
	`, id).Scan(&s.ID, &s.Creator, &s.Title, &s.Description, &goal, &s.Deadline, &s.CreatedAt,
		&contributed, &withdrawn, &refunded, &s.State,
		&s.FeeRecipient, &feeBPS, &quorum, &approval,
		&s.Rules.MilestonePhase, &votingSeconds, &s.ActiveVotingCount)
	if err != nil {
		return nil, err
	}
	s.Goal, s.TotalContributed, s.TotalWithdrawn, s.TotalRefunded = u64(goal), u64(contributed), u64(withdrawn), u64(refunded)
	s.FeeBPS = uint16(feeBPS)
	s.Rules.QuorumPercent, s.Rules.ApprovalPercent = uint8(quorum), uint8(approval)
	s.Rules.DefaultVotingDuration = time.Duration(votingSeconds) * time.Second

	rows, err := tx.Query(ctx, `
		SELECT description, amount, voting_deadline, votes_for, votes_against, state
		FROM milestones WHERE campaign_id = $1 ORDER BY idx
	`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			m                   escrow.Milestone
			amount, vFor, vAgst int64
			votingDeadline      *time.Time
		)
		if err := rows.Scan(&m.Description, &amount, &votingDeadline, &vFor, &vAgst, &m.State); err != nil {
			rows.Close()
			return nil, err
		}
		m.Amount, m.VotesFor, m.VotesAgainst = u64(amount), u64(vFor), u64(vAgst)
		m.VotingDeadline = timeOrZero(votingDeadline)
		m.Voters = map[string]escrow.Vote{}
		s.Milestones = append(s.Milestones, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT contributor, amount FROM contributions WHERE campaign_id = $1`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			addr   string
			amount int64
		)
		if err := rows.Scan(&addr, &amount); err != nil {
			rows.Close()
			return nil, err
		}
		s.Contributions[addr] = u64(amount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT idx, voter, support, weight FROM milestone_votes WHERE campaign_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			idx    int
			voter  string
			v      escrow.Vote
			weight int64
		)
		if err := rows.Scan(&idx, &voter, &v.Support, &weight); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(s.Milestones) {
			return nil, fmt.Errorf("vote for unknown milestone %d of campaign %s", idx, id)
		}
		v.Weight = u64(weight)
		s.Milestones[idx].Voters[voter] = v
	}
	return s, rows.Err()
}

// Save writes the difference between before and after. Milestones are fixed
// at creation, votes are only ever added.
func (r *CampaignRepo) Save(ctx context.Context, tx pgx.Tx, before, after *escrow.Snapshot) error {
	b := &pgx.Batch{}
	b.Queue(`
		UPDATE campaigns SET total_contributed = $1, total_withdrawn = $2, total_refunded = $3,
		       state = $4, active_voting_count = $5, updated_at = now()
		WHERE id = $6
	`, i64(after.TotalContributed), i64(after.TotalWithdrawn), i64(after.TotalRefunded),
		after.State, after.ActiveVotingCount, after.ID)

	for i, m := range after.Milestones {
		prev := before.Milestones[i]
		if m.State != prev.State || m.VotesFor != prev.VotesFor || m.VotesAgainst != prev.VotesAgainst ||
			!m.VotingDeadline.Equal(prev.VotingDeadline) {
			b.Queue(`
				UPDATE milestones SET state = $1, votes_for = $2, votes_against = $3, voting_deadline = $4
				WHERE campaign_id = $5 AND idx = $6
			`, m.State, i64(m.VotesFor), i64(m.VotesAgainst), nullTime(m.VotingDeadline), after.ID, i)
		}
		for voter, v := range m.Voters {
			if _, ok := prev.Voters[voter]; ok {
				continue
			}
			b.Queue(`
				INSERT INTO milestone_votes (campaign_id, idx, voter, support, weight)
				VALUES ($1, $2, $3, $4, $5)
			`, after.ID, i, voter, v.Support, i64(v.Weight))
		}
	}

	for addr, amount := range after.Contributions {
		if prev, ok := before.Contributions[addr]; ok && prev == amount {
			continue
		}
		b.Queue(`
			INSERT INTO contributions (campaign_id, contributor, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (campaign_id, contributor) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
		`, after.ID, addr, i64(amount))
	}
	return sendBatch(ctx, tx, b)
}

func sendBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch) error {
	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

type CampaignFilter struct {
	Creator *string
	State   *string
	Limit   int
	Offset  int
}

// effectiveState mirrors models.Campaign.EffectiveState for filtering; $1 is now.
const effectiveState = `CASE WHEN state = 'active' AND deadline < $1 AND total_contributed < goal
	THEN 'failed' ELSE state END`

func (f CampaignFilter) where(now time.Time) (string, []any) {
	args := []any{now}
	var where []string
	if f.Creator != nil {
		args = append(args, *f.Creator)
		where = append(where, fmt.Sprintf("creator = $%d", len(args)))
	}
	if f.State != nil {
		args = append(args, *f.State)
		where = append(where, fmt.Sprintf("(%s) = $%d", effectiveState, len(args)))
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// List returns campaigns newest first with their effective state at now.
func (r *CampaignRepo) List(ctx context.Context, f CampaignFilter, now time.Time) ([]models.Campaign, error) {
	where, args := f.where(now)

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, `
		SELECT id, creator, title, description, goal, deadline,
		       total_contributed, total_withdrawn, total_refunded, `+effectiveState+`,
		       fee_recipient, fee_bps, quorum_percent, approval_percent, milestone_phase,
		       default_voting_seconds, active_voting_count,
		       (SELECT count(*) FROM milestones m WHERE m.campaign_id = campaigns.id),
		       created_at, updated_at
		FROM campaigns`+where+fmt.Sprintf(`
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var (
			c                                      models.Campaign
			goal, contributed, withdrawn, refunded int64
		)
		if err := rows.Scan(&c.ID, &c.Creator, &c.Title, &c.Description, &goal, &c.Deadline,
			&contributed, &withdrawn, &refunded, &c.State,
			&c.FeeRecipient, &c.FeeBPS, &c.QuorumPercent, &c.ApprovalPercent, &c.MilestonePhase,
			&c.DefaultVotingSeconds, &c.ActiveVotingCount, &c.MilestoneCount,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Goal, c.TotalContributed, c.TotalWithdrawn, c.TotalRefunded = u64(goal), u64(contributed), u64(withdrawn), u64(refunded)
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepo) Count(ctx context.Context, f CampaignFilter, now time.Time) (int, error) {
	where, args := f.where(now)
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM campaigns`+where, args...).Scan(&n)
	return n, err
}

// ListExpiredActive returns active campaigns whose deadline passed short of
// the goal; their stored state is stale until the next locked load.
func (r *CampaignRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM campaigns
		WHERE state = $1 AND deadline < $2 AND total_contributed < goal
		ORDER BY deadline LIMIT $3
	`, models.CampaignStateActive, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ListExpiredVotes returns campaigns with a milestone vote whose deadline
// has passed and that nobody has finalized yet.
func (r *CampaignRepo) ListExpiredVotes(ctx context.Context, now time.Time, limit int) ([]ExpiredVote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT campaign_id, idx FROM milestones
		WHERE state = $1 AND voting_deadline < $2
		ORDER BY voting_deadline LIMIT $3
	`, models.MilestoneStateVotingActive, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[ExpiredVote])
}

type ExpiredVote struct {
	CampaignID  uuid.UUID
	MilestoneID int
}
