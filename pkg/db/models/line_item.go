package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is a single priced row on a purchase order.
type LineItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PurchaseOrderID uuid.UUID       `gorm:"column:purchase_order_id;type:uuid;not null"`
	Position        int             `gorm:"column:position;not null"`
	Description     string          `gorm:"column:description;not null"`
	Quantity        decimal.Decimal `gorm:"column:quantity;type:numeric(18,4);not null"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(18,4);not null"`
	TotalPrice      decimal.Decimal `gorm:"column:total_price;type:numeric(18,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
