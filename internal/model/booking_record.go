package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the outcome of one slot booking attempt.
type BookingStatus string

const (
	BookingStatusBooked BookingStatus = "booked"
	BookingStatusFailed BookingStatus = "failed"
)

// BookingRecord is the persisted outcome of booking one slot.
type BookingRecord struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey"`
	FlowID          string        `gorm:"index;size:64"`
	UserID          string        `gorm:"index;size:64;not null"`
	MentorID        string        `gorm:"size:64;not null"`
	PackageID       string        `gorm:"size:64"`
	SlotID          string        `gorm:"size:64"`
	Date            string        `gorm:"size:16"`
	Time            string        `gorm:"size:16"`
	CallType        string        `gorm:"size:16"`
	Kind            string        `gorm:"size:16;not null"`
	Status          BookingStatus `gorm:"size:16;not null"`
	Reason          string
	RemoteBookingID string `gorm:"size:64"`
	MeetingLink     string
	CreatedAt       time.Time `gorm:"not null;index"`
}
