package events

import (
	"context"

	"github.com/milestone-escrow/backend/internal/escrow"
)

// Streams
const (
	StreamCampaign = "events:campaign"
	StreamPayout   = "events:payout"
)

// Event types beyond the campaign events emitted by the escrow engine.
const (
	EventDepositBounced = "deposit_bounced"
	EventPayoutSent     = "payout_sent"
	EventPayoutFailed   = "payout_failed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// CampaignID returns the campaign the event belongs to, or "".
func (e Event) CampaignID() string {
	id, _ := e.Payload["campaign_id"].(string)
	return id
}

// FromEscrow converts a committed campaign event for the bus.
func FromEscrow(e escrow.Event) Event {
	return Event{Type: e.Type, Payload: e.Payload()}
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// History serves the latest events of a campaign, oldest first.
type History interface {
	Recent(ctx context.Context, campaignID string, n int64) ([]Event, error)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
