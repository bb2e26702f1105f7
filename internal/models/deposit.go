package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DepositStatusAccepted = "accepted"
	DepositStatusBounced  = "bounced"
	DepositStatusIgnored  = "ignored"
)

// Deposit is an incoming transfer observed on the escrow hot wallet.
type Deposit struct {
	ID         uuid.UUID  `json:"id"`
	TxHash     string     `json:"tx_hash"`
	TxLT       uint64     `json:"tx_lt"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	Sender     string     `json:"sender"`
	Amount     uint64     `json:"amount"`
	Memo       string     `json:"memo"`
	Status     string     `json:"status"`
	Reason     *string    `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
