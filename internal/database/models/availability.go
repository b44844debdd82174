package models

import "github.com/google/uuid"

type Schedule struct {
	Base
	UserID   uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Name     string    `gorm:"not null" json:"name"`
	TimeZone string    `gorm:"default:'UTC'" json:"time_zone"`

	Availability []Availability `gorm:"foreignKey:ScheduleID" json:"availability,omitempty"`
}

func (Schedule) TableName() string {
	return "schedules"
}

// Availability is a weekly recurring window. Days uses time.Weekday
// numbering (0 = Sunday). Start/End are "HH:MM" wall-clock strings in the
// schedule's time zone.
type Availability struct {
	Base
	ScheduleID uuid.UUID `gorm:"type:uuid;index;not null" json:"schedule_id"`
	Days       IntArray  `gorm:"type:text" json:"days"`
	StartTime  string    `gorm:"not null" json:"start_time"`
	EndTime    string    `gorm:"not null" json:"end_time"`
}

func (Availability) TableName() string {
	return "availabilities"
}
