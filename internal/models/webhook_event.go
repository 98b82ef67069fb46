package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEventStatus tracks processing of an inbound gateway callback.
type WebhookEventStatus string

// WebhookEventStatus constants define audit row states.
const (
	// WebhookReceived marks a callback logged but not yet processed.
	WebhookReceived WebhookEventStatus = "received"
	// WebhookProcessed marks a callback handled successfully.
	WebhookProcessed WebhookEventStatus = "processed"
	// WebhookError marks a callback whose processing failed.
	WebhookError WebhookEventStatus = "error"
)

// WebhookEvent is an immutable audit record of an inbound gateway callback.
// Every verified delivery is logged before processing so silently failed
// webhooks stay discoverable.
type WebhookEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Event           string `gorm:"type:varchar(64);not null"`  // Gateway event name.
	MerchantOrderID string `gorm:"type:varchar(64);not null;index"` // Referenced merchant order id.

	Payload datatypes.JSON `gorm:"type:jsonb;not null"` // Raw callback body.

	Status WebhookEventStatus `gorm:"type:varchar(16);not null;default:'received';index"` // Processing outcome.
	Error  string             `gorm:"type:text"`                                          // Failure detail, if any.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Receipt timestamp.
	ProcessedAt *time.Time // Set once processing finishes.
}
