package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milestone-escrow/backend/internal/escrow"
)

func TestFromEscrowRoundTripsThroughJSON(t *testing.T) {
	id := uuid.New()
	e := FromEscrow(escrow.Event{
		Type:        escrow.EventMilestoneVoted,
		CampaignID:  id,
		MilestoneID: 1,
		Account:     "0:ab",
		Amount:      escrow.MaxAmount,
		Support:     true,
		At:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, escrow.EventMilestoneVoted, got.Type)
	assert.Equal(t, id.String(), got.CampaignID())
	assert.Equal(t, "9223372036854775807", got.Payload["amount"])
	assert.Equal(t, true, got.Payload["support"])
}

func TestCampaignIDMissing(t *testing.T) {
	assert.Empty(t, Event{Type: EventPayoutSent}.CampaignID())
}

func TestDecode(t *testing.T) {
	e, err := decode(`{"type":"refunded","payload":{"campaign_id":"c1","amount":"5"}}`)
	require.NoError(t, err)
	assert.Equal(t, "refunded", e.Type)
	assert.Equal(t, "c1", e.CampaignID())

	_, err = decode(`{"payload":{}}`)
	assert.Error(t, err)

	_, err = decode(`not json`)
	assert.Error(t, err)
}

func TestRecentKey(t *testing.T) {
	assert.Equal(t, "events:recent:abc", recentKey("abc"))
}
