package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// PurchaseOrder is an organization's order to a supplier. TaxMode and TaxRate
// are snapshotted at creation and never recomputed from organization settings.
type PurchaseOrder struct {
	ID                          uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID              uuid.UUID                 `gorm:"column:organization_id;type:uuid;not null"`
	CreatedBy                   uuid.UUID                 `gorm:"column:created_by;type:uuid;not null"`
	Number                      string                    `gorm:"column:number;not null"`
	Status                      enums.PurchaseOrderStatus `gorm:"column:status;not null"`
	SupplierName                string                    `gorm:"column:supplier_name;not null"`
	SupplierEmail               *string                   `gorm:"column:supplier_email"`
	Currency                    enums.Currency            `gorm:"column:currency;not null"`
	Notes                       *string                   `gorm:"column:notes"`
	TaxMode                     enums.TaxMode             `gorm:"column:tax_mode;not null"`
	TaxRate                     decimal.Decimal           `gorm:"column:tax_rate;type:numeric(5,2);not null"`
	SubtotalAmount              decimal.Decimal           `gorm:"column:subtotal_amount;type:numeric(18,2);not null"`
	TaxAmount                   decimal.Decimal           `gorm:"column:tax_amount;type:numeric(18,2);not null"`
	TotalAmount                 decimal.Decimal           `gorm:"column:total_amount;type:numeric(18,2);not null"`
	InvoiceUploadToken          *string                   `gorm:"column:invoice_upload_token"`
	InvoiceUploadTokenExpiresAt *time.Time                `gorm:"column:invoice_upload_token_expires_at"`
	InvoiceURL                  *string                   `gorm:"column:invoice_url"`
	InvoiceReceivedAt           *time.Time                `gorm:"column:invoice_received_at"`
	SentAt                      *time.Time                `gorm:"column:sent_at"`
	ReceivedAt                  *time.Time                `gorm:"column:received_at"`
	CancelledAt                 *time.Time                `gorm:"column:cancelled_at"`
	CreatedAt                   time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                   time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
	LineItems                   []LineItem                `gorm:"foreignKey:PurchaseOrderID"`
}
