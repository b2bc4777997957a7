package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TimeEntryStatus string

const (
	TimeEntryDraft     TimeEntryStatus = "draft"
	TimeEntrySubmitted TimeEntryStatus = "submitted"
	TimeEntryApproved  TimeEntryStatus = "approved"
	TimeEntryRejected  TimeEntryStatus = "rejected"
)

func IsValidTimeEntryStatus(status TimeEntryStatus) bool {
	switch status {
	case TimeEntryDraft, TimeEntrySubmitted, TimeEntryApproved, TimeEntryRejected:
		return true
	default:
		return false
	}
}

type TimeEntry struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID"`
	ProjectID      uuid.UUID     `gorm:"type:uuid;not null;index"`
	Project        *Project      `gorm:"foreignKey:ProjectID"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;index"`
	User           *User         `gorm:"foreignKey:UserID"`
	EntryDate      time.Time     `gorm:"type:date;not null;index"`
	Hours          float64       `gorm:"not null"`
	Description    string
	Billable       bool    `gorm:"default:true"`
	HourlyRate     float64
	Notes          string
	Status         TimeEntryStatus `gorm:"type:varchar(50);default:'draft';index"`
	SubmittedAt    *time.Time
	ReviewedAt     *time.Time
	ReviewedByID   *uuid.UUID `gorm:"type:uuid"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// Editable reports whether the entry's fields may still be changed or the
// entry deleted. Submitted and approved entries are immutable outside the
// explicit transition operations.
func (e *TimeEntry) Editable() bool {
	return e.Status == TimeEntryDraft || e.Status == TimeEntryRejected
}

// Submittable reports whether the entry can move to submitted. Resubmission
// after rejection is allowed.
func (e *TimeEntry) Submittable() bool {
	return e.Status == TimeEntryDraft || e.Status == TimeEntryRejected
}

// Reviewable reports whether the entry can be approved or rejected.
func (e *TimeEntry) Reviewable() bool {
	return e.Status == TimeEntrySubmitted
}
