package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// Organization is the tenant root. Every other entity is owned by exactly
// one organization and every query is scoped to it.
type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name      string    `gorm:"not null"`
	Domain    string    `gorm:"uniqueIndex;not null"`
	Settings  JSONB     `gorm:"type:jsonb;default:'{}'"`
	Plan      Plan      `gorm:"type:varchar(50);default:'starter'"`
	IsActive  bool      `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) GormDataType() string {
	return "jsonb"
}

// StringList stores an ordered list of strings as a jsonb array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan StringList: %v", value)
	}
	return json.Unmarshal(bytes, l)
}

func (l StringList) GormDataType() string {
	return "jsonb"
}
