package models

import "github.com/google/uuid"

type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`
	Username     string `gorm:"index" json:"username"`
	TimeZone     string `gorm:"default:'UTC'" json:"time_zone"`
	Locale       string `gorm:"default:'en'" json:"locale"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`

	DefaultScheduleID *uuid.UUID `gorm:"type:uuid" json:"default_schedule_id,omitempty"`

	// Relationships
	Memberships []Membership `gorm:"foreignKey:UserID" json:"-"`
	Schedules   []Schedule   `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Profile links a user to an organization under a per-org username.
type Profile struct {
	Base
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Username       string    `gorm:"not null" json:"username"`

	User         *User `gorm:"foreignKey:UserID" json:"-"`
	Organization *Team `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Profile) TableName() string {
	return "profiles"
}
