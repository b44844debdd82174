package models

import "github.com/google/uuid"

// Webhook trigger events
const (
	TriggerBookingCreated   = "booking.created"
	TriggerBookingCancelled = "booking.cancelled"
	TriggerOrgCreated       = "organization.created"
)

// WebhookSubscription registers a subscriber URL for event fan-out.
// Payloads are signed with the per-subscription secret.
type WebhookSubscription struct {
	Base
	TeamID        *uuid.UUID  `gorm:"type:uuid;index" json:"team_id,omitempty"`
	UserID        *uuid.UUID  `gorm:"type:uuid;index" json:"user_id,omitempty"`
	SubscriberURL string      `gorm:"not null" json:"subscriber_url"`
	Secret        string      `json:"-"`
	EventTriggers StringArray `gorm:"type:text" json:"event_triggers"`
	Active        bool        `gorm:"default:true" json:"active"`
}

func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}
