package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// ApprovalRequest gates a purchase order above the organization threshold.
// Decided requests are soft-deleted when the order is resubmitted.
type ApprovalRequest struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID  uuid.UUID            `gorm:"column:organization_id;type:uuid;not null"`
	PurchaseOrderID uuid.UUID            `gorm:"column:purchase_order_id;type:uuid;not null"`
	RequesterID     uuid.UUID            `gorm:"column:requester_id;type:uuid;not null"`
	ApproverID      uuid.UUID            `gorm:"column:approver_id;type:uuid;not null"`
	Status          enums.ApprovalStatus `gorm:"column:status;not null"`
	Amount          decimal.Decimal      `gorm:"column:amount;type:numeric(18,2);not null"`
	Reason          *string              `gorm:"column:reason"`
	DecidedAt       *time.Time           `gorm:"column:decided_at"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt       `gorm:"column:deleted_at;index"`
}
