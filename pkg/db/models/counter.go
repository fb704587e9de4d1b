package models

import (
	"time"

	"github.com/google/uuid"
)

// Counter is a named monotonic sequence owned by an organization.
type Counter struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null;uniqueIndex:counters_org_name_key"`
	Name           string    `gorm:"column:name;not null;uniqueIndex:counters_org_name_key"`
	Value          int64     `gorm:"column:value;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
