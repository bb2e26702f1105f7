package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor types
const (
	ActorTypeUser   = "user"
	ActorTypeAdmin  = "admin"
	ActorTypeSystem = "system"
)

type AuditLog struct {
	ID           uuid.UUID  `json:"id"`
	ActorAddress *string    `json:"actor_address,omitempty"`
	ActorType    string     `json:"actor_type"`
	Action       string     `json:"action"`
	EntityType   string     `json:"entity_type"`
	EntityID     *uuid.UUID `json:"entity_id,omitempty"`
	Meta         any        `json:"meta,omitempty"`
	RequestID    *string    `json:"request_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
