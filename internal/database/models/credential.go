package models

import "github.com/google/uuid"

// Credential types
const (
	CredentialGoogleCalendar = "google_calendar"
)

// CalendarCredential stores a user's calendar integration token,
// age-encrypted at rest.
type CalendarCredential struct {
	Base
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Type           string    `gorm:"not null" json:"type"`
	AccountEmail   string    `json:"account_email"`
	EncryptedToken string    `gorm:"type:text;not null" json:"-"`
	IsValid        bool      `gorm:"default:true" json:"is_valid"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (CalendarCredential) TableName() string {
	return "calendar_credentials"
}
