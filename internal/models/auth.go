package models

import (
	"time"

	"github.com/google/uuid"
)

type TonProofPayload struct {
	ID        uuid.UUID `json:"id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
	Used      bool      `json:"-"`
}
