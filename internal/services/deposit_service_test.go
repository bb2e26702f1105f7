package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/events"
	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/ton"
)

func TestDepositOutcome(t *testing.T) {
	infra := errors.New("connection reset")

	tests := []struct {
		name       string
		err        error
		wantStatus string
		wantReason string
		wantRetry  bool
	}{
		{"accepted", nil, models.DepositStatusAccepted, "", false},
		{"unknown campaign", ErrCampaignNotFound, models.DepositStatusBounced, reasonUnknownCampaign, false},
		{"deadline passed", fmt.Errorf("contribute: %w", escrow.ErrDeadlinePassed), models.DepositStatusBounced, "DeadlinePassed", false},
		{"goal reached", escrow.ErrGoalReached, models.DepositStatusBounced, "GoalReached", false},
		{"overflow", escrow.ErrInvalidAmount, models.DepositStatusBounced, "InvalidAmount", false},
		{"database", infra, "", "", true},
		{"reentrant", escrow.ErrReentrantCall, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason, retry := depositOutcome(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, reason)
			assert.Equal(t, tt.wantRetry, retry != nil)
		})
	}
}

func TestAppliedSkipsDuplicates(t *testing.T) {
	assert.True(t, applied(nil))
	assert.True(t, applied(ErrDuplicateDeposit))
	assert.True(t, applied(fmt.Errorf("apply: %w", ErrDuplicateDeposit)))
	assert.False(t, applied(errors.New("connection reset")))
	assert.False(t, applied(escrow.ErrReentrantCall))
}

type failingPublisher struct {
	published []events.Event
	err       error
}

func (p *failingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.published = append(p.published, e)
	return p.err
}

func TestPublishBounceLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := &failingPublisher{err: errors.New("redis down")}
	s := &CampaignService{publisher: pub, log: zap.New(core)}

	id := uuid.New()
	in := ton.IncomingTransfer{Hash: "ab12", Sender: "0:a11ce000", Amount: 5}
	s.publishBounce(context.Background(), id, in, "DeadlinePassed")

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.EventDepositBounced, pub.published[0].Type)
	assert.Equal(t, id.String(), pub.published[0].CampaignID())
	assert.Equal(t, "5", pub.published[0].Payload["amount"])

	entries := logs.FilterMessage("failed to publish bounced deposit").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ab12", entries[0].ContextMap()["tx_hash"])

	pub.err = nil
	s.publishBounce(context.Background(), id, in, "DeadlinePassed")
	assert.Equal(t, 1, logs.Len())
}
