package purchaseorders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/api/middleware"
	"github.com/angelmondragon/poflow-backend/api/responses"
	"github.com/angelmondragon/poflow-backend/api/validators"
	internalpo "github.com/angelmondragon/poflow-backend/internal/purchaseorders"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/pagination"
)

// LineItemRequest is one line of a draft body.
type LineItemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// DraftRequest is the JSON body accepted when creating or editing an order.
type DraftRequest struct {
	Number        string            `json:"number" validate:"max=64"`
	SupplierName  string            `json:"supplier_name" validate:"required,max=255"`
	SupplierEmail *string           `json:"supplier_email" validate:"omitempty,email"`
	Currency      string            `json:"currency"`
	Notes         *string           `json:"notes" validate:"omitempty,max=2000"`
	TaxMode       *string           `json:"tax_mode"`
	TaxRate       *decimal.Decimal  `json:"tax_rate"`
	LineItems     []LineItemRequest `json:"line_items" validate:"required,min=1,dive"`
}

// ToInput converts the body into the service input.
func (d DraftRequest) ToInput() internalpo.DraftInput {
	input := internalpo.DraftInput{
		Number:        strings.TrimSpace(d.Number),
		SupplierName:  validators.SanitizeString(d.SupplierName, 255),
		SupplierEmail: d.SupplierEmail,
		Currency:      enums.Currency(strings.ToUpper(strings.TrimSpace(d.Currency))),
		Notes:         d.Notes,
		TaxRate:       d.TaxRate,
	}
	if d.TaxMode != nil {
		mode := enums.TaxMode(strings.ToUpper(*d.TaxMode))
		input.TaxMode = &mode
	}
	for _, item := range d.LineItems {
		input.LineItems = append(input.LineItems, internalpo.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return input
}

// Create stores a new DRAFT purchase order.
func Create(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body DraftRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.CreateDraft(r.Context(), actor, body.ToInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

// Update replaces the editable fields of a DRAFT order.
func Update(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		poID, err := validators.ParseUUIDParam(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body DraftRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.UpdateDraft(r.Context(), actor, poID, body.ToInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func Get(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		poID, err := validators.ParseUUIDParam(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		po, err := svc.Get(r.Context(), actor, poID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, po)
	}
}

// List pages through the organization's orders, newest first.
func List(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internalpo.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.ParsePurchaseOrderStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Status = status
		res, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// Send moves an order that skipped approval from DRAFT to SENT.
func Send(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, svc.Send)
}

func Receive(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, svc.MarkReceived)
}

func Cancel(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(logg, svc.Cancel)
}

type transitionFunc func(ctx context.Context, actor users.Actor, poID uuid.UUID) (*internalpo.PurchaseOrderDTO, error)

func transitionHandler(logg *logger.Logger, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		poID, err := validators.ParseUUIDParam(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithResource(ctx, "purchase_order", poID.String())
		}
		po, err := fn(ctx, actor, poID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, po)
	}
}
