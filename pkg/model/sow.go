package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SOWStatus string

const (
	SOWDraft     SOWStatus = "draft"
	SOWActive    SOWStatus = "active"
	SOWCompleted SOWStatus = "completed"
	SOWCancelled SOWStatus = "cancelled"
)

func IsValidSOWStatus(status SOWStatus) bool {
	switch status {
	case SOWDraft, SOWActive, SOWCompleted, SOWCancelled:
		return true
	default:
		return false
	}
}

// SOW is a statement of work scoping one or more projects for a customer.
// It is never hard-deleted; cancellation is refused while any owned project
// is still in planning or active status.
type SOW struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID"`
	CustomerID     uuid.UUID     `gorm:"type:uuid;not null;index"`
	Customer       *Customer     `gorm:"foreignKey:CustomerID"`
	Title          string        `gorm:"not null"`
	Description    string
	Scope          string
	Deliverables   StringList `gorm:"type:jsonb;default:'[]'"`
	BillingTerms   string
	HourlyRate     float64
	TotalBudget    float64
	StartDate      *time.Time
	EndDate        *time.Time
	Status         SOWStatus `gorm:"type:varchar(50);default:'draft';index"`
	Projects       []Project `gorm:"foreignKey:SOWID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}
