package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// Organization is the tenant boundary and carries approval policy.
type Organization struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string          `gorm:"column:name;not null"`
	ApprovalThreshold decimal.Decimal `gorm:"column:approval_threshold;type:numeric(18,2);not null"`
	AutoApproveAdmin  bool            `gorm:"column:auto_approve_admin;not null;default:false"`
	DefaultTaxMode    enums.TaxMode   `gorm:"column:default_tax_mode;not null"`
	DefaultTaxRate    decimal.Decimal `gorm:"column:default_tax_rate;type:numeric(5,2);not null"`
	Currency          enums.Currency  `gorm:"column:currency;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
