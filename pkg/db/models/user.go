package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// User is a member of exactly one organization. Authentication lives with the
// identity provider; ID matches the provider's subject claim.
type User struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrganizationID uuid.UUID      `gorm:"column:organization_id;type:uuid;not null"`
	Email          string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name           string         `gorm:"column:name;not null"`
	Role           enums.UserRole `gorm:"column:role;not null"`
	IsActive       bool           `gorm:"column:is_active;not null;default:true"`
	InvitedBy      *uuid.UUID     `gorm:"column:invited_by;type:uuid"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
