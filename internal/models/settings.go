package models

import "time"

// PlatformSettings are the factory parameters applied to newly created campaigns.
type PlatformSettings struct {
	FeeBPS       int       `json:"fee_bps"`
	FeeRecipient string    `json:"fee_recipient"`
	UpdatedBy    *string   `json:"updated_by,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
