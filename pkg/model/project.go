package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BillingModel string

const (
	// BillingTimesheet projects collect time through weekly timesheets.
	BillingTimesheet BillingModel = "timesheet"
	// BillingTaskBased projects collect discrete per-task time entries.
	BillingTaskBased BillingModel = "task_based"
)

func IsValidBillingModel(model BillingModel) bool {
	return model == BillingTimesheet || model == BillingTaskBased
}

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

func IsValidProjectStatus(status ProjectStatus) bool {
	switch status {
	case ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	default:
		return false
	}
}

type Project struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID"`
	CustomerID     uuid.UUID     `gorm:"type:uuid;not null;index"`
	Customer       *Customer     `gorm:"foreignKey:CustomerID"`
	SOWID          *uuid.UUID    `gorm:"type:uuid;index"`
	SOW            *SOW          `gorm:"foreignKey:SOWID"`
	Name           string        `gorm:"not null"`
	Description    string
	BillingModel   BillingModel  `gorm:"type:varchar(50);not null;default:'task_based'"`
	Status         ProjectStatus `gorm:"type:varchar(50);default:'planning';index"`
	IsActive       bool          `gorm:"default:true"`
	StartDate      *time.Time
	EndDate        *time.Time
	HourlyRate     float64
	BudgetHours    float64
	Memberships    []ProjectMembership `gorm:"foreignKey:ProjectID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// ProjectMembership grants a user access to a project, optionally with an
// hourly rate override. At most one active membership exists per
// (project, user) pair; removal is a soft deactivation so the row can be
// reactivated later with its history intact.
type ProjectMembership struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProjectID      uuid.UUID  `gorm:"type:uuid;not null;index:idx_memberships_project_user"`
	Project        *Project   `gorm:"foreignKey:ProjectID"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_memberships_project_user"`
	User           *User      `gorm:"foreignKey:UserID"`
	HourlyRate     *float64
	IsActive       bool       `gorm:"default:true"`
	JoinedAt       time.Time
	LeftAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectiveRate resolves the rate charged for a member's time on a project.
func (m *ProjectMembership) EffectiveRate(project *Project) float64 {
	if m != nil && m.HourlyRate != nil {
		return *m.HourlyRate
	}
	if project != nil {
		return project.HourlyRate
	}
	return 0
}
