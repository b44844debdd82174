package models

import "github.com/google/uuid"

// Team is the tenancy unit. An organization is a team with IsOrganization
// set; regular teams hang off an organization via ParentID.
//
// Slug is a pointer: an organization created while a conflicting team slug
// still exists gets a nil slug, backfilled once the conflicting teams have
// been migrated under it.
type Team struct {
	Base
	Name           string     `gorm:"not null" json:"name"`
	Slug           *string    `gorm:"uniqueIndex" json:"slug,omitempty"`
	IsOrganization bool       `gorm:"default:false;index" json:"is_organization"`
	IsPlatform     bool       `gorm:"default:false" json:"is_platform"`
	ParentID       *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	LogoURL        string     `json:"logo_url,omitempty"`
	Bio            string     `json:"bio,omitempty"`

	// Relationships
	Parent      *Team        `gorm:"foreignKey:ParentID" json:"-"`
	Children    []Team       `gorm:"foreignKey:ParentID" json:"-"`
	Memberships []Membership `gorm:"foreignKey:TeamID" json:"-"`
}

func (Team) TableName() string {
	return "teams"
}

// Membership roles
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Membership struct {
	Base
	UserID   uuid.UUID `gorm:"type:uuid;index:idx_membership_user_team,unique;not null" json:"user_id"`
	TeamID   uuid.UUID `gorm:"type:uuid;index:idx_membership_user_team,unique;not null" json:"team_id"`
	Role     string    `gorm:"not null;default:'member'" json:"role"`
	Accepted bool      `gorm:"default:false" json:"accepted"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Team *Team `gorm:"foreignKey:TeamID" json:"-"`
}

func (Membership) TableName() string {
	return "memberships"
}
