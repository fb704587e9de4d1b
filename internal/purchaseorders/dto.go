package purchaseorders

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/internal/tax"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// LineItemInput is a line item as submitted by a client.
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// DraftInput carries the editable fields of a purchase order. TaxMode and
// TaxRate default to the organization settings and are frozen on creation;
// Number is allocated from the organization counter when empty.
type DraftInput struct {
	Number        string
	SupplierName  string
	SupplierEmail *string
	Currency      enums.Currency
	Notes         *string
	TaxMode       *enums.TaxMode
	TaxRate       *decimal.Decimal
	LineItems     []LineItemInput
}

// ListParams filters and paginates purchase orders of the actor's organization.
type ListParams struct {
	Status *enums.PurchaseOrderStatus
	Limit  int
	Cursor string
}

// ListResult wraps a page of purchase orders.
type ListResult struct {
	Items  []PurchaseOrderDTO `json:"items"`
	Cursor string             `json:"cursor"`
}

// DraftResult is returned by draft creation and edits.
type DraftResult struct {
	PurchaseOrder    *PurchaseOrderDTO `json:"purchase_order"`
	RequiresApproval bool              `json:"requires_approval"`
}

type LineItemDTO struct {
	ID          uuid.UUID `json:"id"`
	Position    int       `json:"position"`
	Description string    `json:"description"`
	Quantity    string    `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	TotalPrice  string    `json:"total_price"`
}

// PurchaseOrderDTO is the API shape of a purchase order. The upload token is
// never exposed; only whether a link is outstanding.
type PurchaseOrderDTO struct {
	ID                  uuid.UUID                 `json:"id"`
	OrganizationID      uuid.UUID                 `json:"organization_id"`
	CreatedBy           uuid.UUID                 `json:"created_by"`
	Number              string                    `json:"number"`
	Status              enums.PurchaseOrderStatus `json:"status"`
	SupplierName        string                    `json:"supplier_name"`
	SupplierEmail       *string                   `json:"supplier_email,omitempty"`
	Currency            enums.Currency            `json:"currency"`
	Notes               *string                   `json:"notes,omitempty"`
	TaxMode             enums.TaxMode             `json:"tax_mode"`
	TaxRate             string                    `json:"tax_rate"`
	SubtotalAmount      string                    `json:"subtotal_amount"`
	TaxAmount           string                    `json:"tax_amount"`
	TotalAmount         string                    `json:"total_amount"`
	UploadLinkExpiresAt *time.Time                `json:"upload_link_expires_at,omitempty"`
	InvoiceURL          *string                   `json:"invoice_url,omitempty"`
	InvoiceReceivedAt   *time.Time                `json:"invoice_received_at,omitempty"`
	SentAt              *time.Time                `json:"sent_at,omitempty"`
	ReceivedAt          *time.Time                `json:"received_at,omitempty"`
	CancelledAt         *time.Time                `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
	LineItems           []LineItemDTO             `json:"line_items,omitempty"`
}

func FromModel(po *models.PurchaseOrder) *PurchaseOrderDTO {
	if po == nil {
		return nil
	}
	return &PurchaseOrderDTO{
		ID:                  po.ID,
		OrganizationID:      po.OrganizationID,
		CreatedBy:           po.CreatedBy,
		Number:              po.Number,
		Status:              po.Status,
		SupplierName:        po.SupplierName,
		SupplierEmail:       po.SupplierEmail,
		Currency:            po.Currency,
		Notes:               po.Notes,
		TaxMode:             po.TaxMode,
		TaxRate:             po.TaxRate.StringFixed(2),
		SubtotalAmount:      money(po.SubtotalAmount),
		TaxAmount:           money(po.TaxAmount),
		TotalAmount:         money(po.TotalAmount),
		UploadLinkExpiresAt: po.InvoiceUploadTokenExpiresAt,
		InvoiceURL:          po.InvoiceURL,
		InvoiceReceivedAt:   po.InvoiceReceivedAt,
		SentAt:              po.SentAt,
		ReceivedAt:          po.ReceivedAt,
		CancelledAt:         po.CancelledAt,
		CreatedAt:           po.CreatedAt,
		UpdatedAt:           po.UpdatedAt,
		LineItems: lo.Map(po.LineItems, func(item models.LineItem, _ int) LineItemDTO {
			return LineItemDTO{
				ID:          item.ID,
				Position:    item.Position,
				Description: item.Description,
				Quantity:    item.Quantity.String(),
				UnitPrice:   item.UnitPrice.String(),
				TotalPrice:  money(item.TotalPrice),
			}
		}),
	}
}

// FromModels maps a slice of purchase orders.
func FromModels(rows []models.PurchaseOrder) []PurchaseOrderDTO {
	return lo.Map(rows, func(po models.PurchaseOrder, _ int) PurchaseOrderDTO {
		return *FromModel(&po)
	})
}

func money(d decimal.Decimal) string {
	return d.StringFixed(tax.MoneyPlaces)
}
