package models

import "github.com/google/uuid"

// Billing periods
const (
	BillingMonthly  = "monthly"
	BillingAnnually = "annually"
)

// OrganizationOnboarding tracks a pending organization purchase from intent
// through payment confirmation. The payment webhook may redeliver, so the
// row doubles as the idempotency anchor: OrganizationID is written back as
// soon as the organization exists and every later retry short-circuits on it.
type OrganizationOnboarding struct {
	Base
	Name          string `gorm:"not null" json:"name"`
	Slug          string `gorm:"index;not null" json:"slug"`
	OrgOwnerEmail string `gorm:"index;not null" json:"org_owner_email"`

	Seats         int    `gorm:"default:1" json:"seats"`
	PricePerSeat  int    `json:"price_per_seat"` // cents
	BillingPeriod string `gorm:"default:'monthly'" json:"billing_period"`

	IsPlatform bool   `gorm:"default:false" json:"is_platform"`
	LogoURL    string `json:"logo_url,omitempty"`
	Bio        string `json:"bio,omitempty"`

	// Serialized JSON payloads, schema-checked at finalization time.
	InvitedMembers string `gorm:"type:text" json:"-"`
	Teams          string `gorm:"type:text" json:"-"`

	// Set once the organization entity exists.
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`

	// Billing linkage and lifecycle.
	PaymentSubscriptionID string `gorm:"index" json:"payment_subscription_id,omitempty"`
	IsComplete            bool   `gorm:"default:false;index" json:"is_complete"`
	Error                 string `json:"error,omitempty"`

	Organization *Team `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (OrganizationOnboarding) TableName() string {
	return "organization_onboardings"
}
