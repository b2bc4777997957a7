package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	// RoleClient is reserved for customer-facing read access and grants no
	// capabilities yet.
	RoleClient Role = "client"
)

func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleEmployee, RoleClient:
		return true
	default:
		return false
	}
}

// ProvisioningStatus tracks how far identity-provider provisioning got for a
// user. Anything other than synced is picked up by the reconciler job.
type ProvisioningStatus string

const (
	ProvisioningSynced           ProvisioningStatus = "synced"
	ProvisioningPendingRoleSync  ProvisioningStatus = "pending_role_sync"
	ProvisioningPendingGroupSync ProvisioningStatus = "pending_group_sync"
)

type User struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID     uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_users_org_email"`
	Organization       *Organization `gorm:"foreignKey:OrganizationID"`
	ExternalID         string        `gorm:"uniqueIndex;not null"`
	Email              string        `gorm:"uniqueIndex:idx_users_org_email;not null"`
	FirstName          string
	LastName           string
	Role               Role               `gorm:"type:varchar(50);not null;default:'employee'"`
	IsActive           bool               `gorm:"default:true"`
	ProvisioningStatus ProvisioningStatus `gorm:"type:varchar(50);default:'synced';index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

func (u *User) CanManage() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}
