package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// UserDTO is the transport shape of an organization member.
type UserDTO struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	Role           enums.UserRole `json:"role"`
	IsActive       bool           `json:"is_active"`
	InvitedBy      *uuid.UUID     `json:"invited_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Email          string
	Name           string
	Role           enums.UserRole
	InvitedBy      *uuid.UUID
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		IsActive:       u.IsActive,
		InvitedBy:      u.InvitedBy,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &models.User{
		ID:             id,
		OrganizationID: c.OrganizationID,
		Email:          c.Email,
		Name:           c.Name,
		Role:           c.Role,
		IsActive:       true,
		InvitedBy:      c.InvitedBy,
	}
}
