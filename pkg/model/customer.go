package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Customer struct {
	ID             uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID"`
	Name           string        `gorm:"not null"`
	Email          string
	Phone          string
	AddressLine1   string
	AddressLine2   string
	City           string
	State          string
	PostalCode     string
	Country        string
	BillingSettings JSONB `gorm:"type:jsonb;default:'{}'"`
	IsActive       bool  `gorm:"default:true"`
	Projects       []Project `gorm:"foreignKey:CustomerID"`
	SOWs           []SOW     `gorm:"foreignKey:CustomerID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}
