package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// ApprovalAction is an append-only audit row. Rows are never updated.
type ApprovalAction struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ApprovalRequestID uuid.UUID                `gorm:"column:approval_request_id;type:uuid;not null"`
	PurchaseOrderID   uuid.UUID                `gorm:"column:purchase_order_id;type:uuid;not null"`
	ActorID           uuid.UUID                `gorm:"column:actor_id;type:uuid;not null"`
	Action            enums.ApprovalActionType `gorm:"column:action;not null"`
	Reason            *string                  `gorm:"column:reason"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
}
