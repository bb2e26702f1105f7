package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PayoutKindWithdrawal = "withdrawal"
	PayoutKindFee        = "fee"
	PayoutKindRefund     = "refund"
	PayoutKindBounce     = "bounce"
)

const (
	PayoutStatusPending = "pending"
	PayoutStatusSending = "sending"
	PayoutStatusSent    = "sent"
	PayoutStatusFailed  = "failed"
)

// Payout is an outgoing transfer from the escrow hot wallet, recorded in the
// same transaction as the ledger change that authorized it.
type Payout struct {
	ID           uuid.UUID  `json:"id"`
	CampaignID   *uuid.UUID `json:"campaign_id,omitempty"`
	Kind         string     `json:"kind"`
	Recipient    string     `json:"recipient"`
	Amount       uint64     `json:"amount"`
	MilestoneIDs []int      `json:"milestone_ids,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	TxHash       *string    `json:"tx_hash,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}
