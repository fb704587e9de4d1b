package purchaseorders

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/internal/tax"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
)

const (
	maxLineItems      = 200
	maxDescriptionLen = 500
)

var maxTaxRate = decimal.NewFromInt(100)

// BuildDraft validates input and returns an unsaved DRAFT order owned by
// createdBy, with the tax snapshot taken from input or org defaults and all
// amounts computed. Number is copied from input and may be empty.
func BuildDraft(org *models.Organization, createdBy uuid.UUID, input DraftInput) (*models.PurchaseOrder, error) {
	if org == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}

	mode := org.DefaultTaxMode
	if input.TaxMode != nil {
		mode = *input.TaxMode
	}
	rate := org.DefaultTaxRate
	if input.TaxRate != nil {
		rate = *input.TaxRate
	}
	if mode == enums.TaxModeNone {
		rate = decimal.Zero
	}
	currency := org.Currency
	if input.Currency != "" {
		currency = input.Currency
	}

	fields := validateDraft(input, mode, rate, currency)
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase order").WithDetails(fields)
	}

	po := &models.PurchaseOrder{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		CreatedBy:      createdBy,
		Number:         strings.TrimSpace(input.Number),
		Status:         enums.PurchaseOrderStatusDraft,
		SupplierName:   strings.TrimSpace(input.SupplierName),
		SupplierEmail:  trimmed(input.SupplierEmail),
		Currency:       currency,
		Notes:          trimmed(input.Notes),
		TaxMode:        mode,
		TaxRate:        rate,
	}
	applyLineItems(po, input.LineItems)
	return po, nil
}

// applyLineItems replaces po's line items and recomputes its amounts with
// the order's own tax snapshot.
func applyLineItems(po *models.PurchaseOrder, inputs []LineItemInput) {
	items := make([]models.LineItem, 0, len(inputs))
	lines := make([]tax.LineInput, 0, len(inputs))
	for i, in := range inputs {
		items = append(items, models.LineItem{
			ID:              uuid.New(),
			PurchaseOrderID: po.ID,
			Position:        i + 1,
			Description:     strings.TrimSpace(in.Description),
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			TotalPrice:      tax.LineTotal(in.Quantity, in.UnitPrice),
		})
		lines = append(lines, tax.LineInput{Quantity: in.Quantity, UnitPrice: in.UnitPrice})
	}

	amounts := tax.Calculate(lines, po.TaxMode, po.TaxRate)
	po.LineItems = items
	po.SubtotalAmount = amounts.SubtotalAmount
	po.TaxAmount = amounts.TaxAmount
	po.TotalAmount = amounts.TotalAmount
}

func validateDraft(input DraftInput, mode enums.TaxMode, rate decimal.Decimal, currency enums.Currency) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(input.SupplierName) == "" {
		fields["supplier_name"] = "required"
	}
	if input.SupplierEmail != nil && strings.TrimSpace(*input.SupplierEmail) != "" {
		if _, err := mail.ParseAddress(strings.TrimSpace(*input.SupplierEmail)); err != nil {
			fields["supplier_email"] = "invalid email"
		}
	}
	if !currency.IsValid() {
		fields["currency"] = "unsupported currency"
	}
	if !mode.IsValid() {
		fields["tax_mode"] = "must be NONE, EXCLUSIVE or INCLUSIVE"
	}
	if rate.IsNegative() || rate.GreaterThan(maxTaxRate) {
		fields["tax_rate"] = "must be between 0 and 100"
	}
	for field, msg := range validateLineItems(input.LineItems) {
		fields[field] = msg
	}
	return fields
}

func validateLineItems(items []LineItemInput) map[string]string {
	fields := map[string]string{}
	if len(items) == 0 {
		fields["line_items"] = "at least one line item required"
		return fields
	}
	if len(items) > maxLineItems {
		fields["line_items"] = fmt.Sprintf("at most %d line items", maxLineItems)
		return fields
	}
	for i, item := range items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			fields[prefix+".description"] = "required"
		} else if len(desc) > maxDescriptionLen {
			fields[prefix+".description"] = "too long"
		}
		if !item.Quantity.IsPositive() {
			fields[prefix+".quantity"] = "must be greater than zero"
		}
		if item.UnitPrice.IsNegative() {
			fields[prefix+".unit_price"] = "must not be negative"
		}
	}
	return fields
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
