package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking statuses
const (
	BookingStatusPending   = "pending"
	BookingStatusAccepted  = "accepted"
	BookingStatusCancelled = "cancelled"
)

type Booking struct {
	Base
	UID         string     `gorm:"uniqueIndex;not null" json:"uid"`
	EventTypeID uuid.UUID  `gorm:"type:uuid;index;not null" json:"event_type_id"`
	UserID      *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"` // assigned host
	Title       string     `json:"title"`
	Status      string     `gorm:"default:'accepted';index" json:"status"`
	StartTime   time.Time  `gorm:"index;not null" json:"start_time"`
	EndTime     time.Time  `gorm:"not null" json:"end_time"`
	NoShowHost  bool       `gorm:"default:false" json:"no_show_host"`

	CancellationReason string `json:"cancellation_reason,omitempty"`

	// Relationships
	EventType  *EventType         `gorm:"foreignKey:EventTypeID" json:"-"`
	User       *User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Attendees  []Attendee         `gorm:"foreignKey:BookingID" json:"attendees,omitempty"`
	References []BookingReference `gorm:"foreignKey:BookingID" json:"references,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}

type Attendee struct {
	Base
	BookingID uuid.UUID `gorm:"type:uuid;index;not null" json:"booking_id"`
	Email     string    `gorm:"not null" json:"email"`
	Name      string    `json:"name"`
	TimeZone  string    `gorm:"default:'UTC'" json:"time_zone"`
	NoShow    bool      `gorm:"default:false" json:"no_show"`
}

func (Attendee) TableName() string {
	return "attendees"
}

// Booking reference types
const (
	ReferenceGoogleCalendar = "google_calendar"
	ReferenceVideoMeeting   = "video_meeting"
)

// BookingReference tracks an external artifact (calendar event, video room)
// created for a booking, so cancellations can clean it up.
type BookingReference struct {
	Base
	BookingID  uuid.UUID `gorm:"type:uuid;index;not null" json:"booking_id"`
	Type       string    `gorm:"not null" json:"type"`
	UID        string    `gorm:"not null" json:"uid"`
	ExternalID string    `json:"external_id,omitempty"`
	Deleted    bool      `gorm:"default:false" json:"deleted"`
}

func (BookingReference) TableName() string {
	return "booking_references"
}
