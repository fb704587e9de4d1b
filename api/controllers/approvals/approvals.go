package approvals

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/poflow-backend/api/controllers/purchaseorders"
	"github.com/angelmondragon/poflow-backend/api/middleware"
	"github.com/angelmondragon/poflow-backend/api/responses"
	"github.com/angelmondragon/poflow-backend/api/validators"
	internalapprovals "github.com/angelmondragon/poflow-backend/internal/approvals"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/types"
)

type submitRequest struct {
	purchaseorders.DraftRequest
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
}

type resubmitRequest struct {
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
}

type denyRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// Submit creates a purchase order directly in PENDING_APPROVAL and routes it
// to the chosen approver.
func Submit(svc internalapprovals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body submitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Submit(r.Context(), actor, internalapprovals.SubmitInput{
			PurchaseOrder: body.ToInput(),
			ApproverID:    body.ApproverID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

// Resubmit reopens approval for a DRAFT order previously denied.
func Resubmit(svc internalapprovals.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body resubmitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Resubmit(r.Context(), actor, poID, body.ApproverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

func Approve(svc internalapprovals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "approvalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Approve(r.Context(), actor, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// Deny accepts an optional reason. An empty body is treated as no reason.
func Deny(svc internalapprovals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "approvalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body denyRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Deny(r.Context(), actor, requestID, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// Pending lists the requests awaiting a decision in the actor's organization.
func Pending(svc internalapprovals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListPending(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.Items(items))
	}
}

func History(svc internalapprovals.Service, logg *logger.Logger) http.HandlerFunc {
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
		trail, err := svc.AuditTrail(r.Context(), actor, poID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, trail)
	}
}
