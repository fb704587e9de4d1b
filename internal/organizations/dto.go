package organizations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// OrganizationDTO exposes the tenant and its approval policy.
type OrganizationDTO struct {
	ID                uuid.UUID      `json:"id"`
	Name              string         `json:"name"`
	ApprovalThreshold string         `json:"approval_threshold"`
	AutoApproveAdmin  bool           `json:"auto_approve_admin"`
	DefaultTaxMode    enums.TaxMode  `json:"default_tax_mode"`
	DefaultTaxRate    string         `json:"default_tax_rate"`
	Currency          enums.Currency `json:"currency"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// SettingsInput updates organization settings. Nil fields are left unchanged.
type SettingsInput struct {
	Name              *string
	ApprovalThreshold *decimal.Decimal
	AutoApproveAdmin  *bool
	DefaultTaxMode    *enums.TaxMode
	DefaultTaxRate    *decimal.Decimal
	Currency          *enums.Currency
}

// InviteInput describes a member to add to the actor's organization.
type InviteInput struct {
	Email string
	Name  string
	Role  enums.UserRole
}

func FromModel(org *models.Organization) *OrganizationDTO {
	if org == nil {
		return nil
	}
	return &OrganizationDTO{
		ID:                org.ID,
		Name:              org.Name,
		ApprovalThreshold: org.ApprovalThreshold.StringFixed(2),
		AutoApproveAdmin:  org.AutoApproveAdmin,
		DefaultTaxMode:    org.DefaultTaxMode,
		DefaultTaxRate:    org.DefaultTaxRate.StringFixed(2),
		Currency:          org.Currency,
		CreatedAt:         org.CreatedAt,
		UpdatedAt:         org.UpdatedAt,
	}
}
