package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TimesheetStatus string

const (
	TimesheetDraft     TimesheetStatus = "draft"
	TimesheetSubmitted TimesheetStatus = "submitted"
	TimesheetApproved  TimesheetStatus = "approved"
	TimesheetRejected  TimesheetStatus = "rejected"
)

// Timesheet is a weekly aggregate of one user's time, broken down per day
// and project through TimesheetEntries. TotalHours is derived from the
// entries at creation time.
type Timesheet struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;index"`
	User           *User         `gorm:"foreignKey:UserID"`
	WeekStart      time.Time     `gorm:"type:date;not null;index"`
	WeekEnd        time.Time     `gorm:"type:date;not null"`
	TotalHours     float64
	Status         TimesheetStatus `gorm:"type:varchar(50);default:'draft';index"`
	SubmittedAt    *time.Time
	ReviewedAt     *time.Time
	ReviewedByID   *uuid.UUID       `gorm:"type:uuid"`
	Entries        []TimesheetEntry `gorm:"foreignKey:TimesheetID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

type TimesheetEntry struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TimesheetID uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProjectID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Project     *Project   `gorm:"foreignKey:ProjectID"`
	EntryDate   time.Time  `gorm:"type:date;not null"`
	Hours       float64    `gorm:"not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t *Timesheet) Submittable() bool {
	return t.Status == TimesheetDraft || t.Status == TimesheetRejected
}

func (t *Timesheet) Reviewable() bool {
	return t.Status == TimesheetSubmitted
}

// TimesheetHours sums the per-day hours of a week's entries.
func TimesheetHours(entries []TimesheetEntry) float64 {
	var total float64
	for _, entry := range entries {
		total += entry.Hours
	}
	return total
}
