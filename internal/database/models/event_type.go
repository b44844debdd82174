package models

import "github.com/google/uuid"

// Scheduling types
const (
	SchedulingRoundRobin = "round_robin"
	SchedulingCollective = "collective"
)

type EventType struct {
	Base
	Title          string     `gorm:"not null" json:"title"`
	Slug           string     `gorm:"index;not null" json:"slug"`
	Description    string     `json:"description,omitempty"`
	LengthMinutes  int        `gorm:"default:30" json:"length_minutes"`
	TeamID         *uuid.UUID `gorm:"type:uuid;index" json:"team_id,omitempty"`
	OwnerID        *uuid.UUID `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	SchedulingType string     `gorm:"default:'round_robin'" json:"scheduling_type"`

	// Round-robin fairness knobs. MaxLeadThreshold is nullable: nil
	// disables the lead filter entirely.
	IsRRWeightsEnabled bool `gorm:"default:false" json:"is_rr_weights_enabled"`
	MaxLeadThreshold   *int `json:"max_lead_threshold,omitempty"`

	// Relationships
	Team  *Team  `gorm:"foreignKey:TeamID" json:"-"`
	Hosts []Host `gorm:"foreignKey:EventTypeID" json:"hosts,omitempty"`
}

func (EventType) TableName() string {
	return "event_types"
}

// Host assigns a user to an event type's round-robin pool. Weight is a
// percentage (100 = one fair share); WeightAdjustment compensates hosts
// that joined mid-period.
type Host struct {
	Base
	EventTypeID      uuid.UUID `gorm:"type:uuid;index:idx_host_event_user,unique;not null" json:"event_type_id"`
	UserID           uuid.UUID `gorm:"type:uuid;index:idx_host_event_user,unique;not null" json:"user_id"`
	IsFixed          bool      `gorm:"default:false" json:"is_fixed"`
	Priority         *int      `json:"priority,omitempty"`
	Weight           *int      `json:"weight,omitempty"`
	WeightAdjustment *int      `json:"weight_adjustment,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Host) TableName() string {
	return "hosts"
}
