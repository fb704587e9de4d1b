package approvals

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/angelmondragon/poflow-backend/internal/purchaseorders"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// SubmitInput creates a purchase order directly in PENDING_APPROVAL.
type SubmitInput struct {
	PurchaseOrder purchaseorders.DraftInput
	ApproverID    uuid.UUID
}

type ApprovalRequestDTO struct {
	ID              uuid.UUID            `json:"id"`
	PurchaseOrderID uuid.UUID            `json:"purchase_order_id"`
	RequesterID     uuid.UUID            `json:"requester_id"`
	ApproverID      uuid.UUID            `json:"approver_id"`
	Status          enums.ApprovalStatus `json:"status"`
	Amount          string               `json:"amount"`
	Reason          *string              `json:"reason,omitempty"`
	DecidedAt       *time.Time           `json:"decided_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// SubmitResult is returned by Submit and Resubmit.
type SubmitResult struct {
	PurchaseOrder   *purchaseorders.PurchaseOrderDTO `json:"purchase_order"`
	ApprovalRequest *ApprovalRequestDTO              `json:"approval_request"`
}

// DecisionResult is returned by Approve and Deny.
type DecisionResult struct {
	ApprovalRequest *ApprovalRequestDTO              `json:"approval_request"`
	PurchaseOrder   *purchaseorders.PurchaseOrderDTO `json:"purchase_order"`
}

// PendingApproval pairs a pending request with its order.
type PendingApproval struct {
	ApprovalRequest *ApprovalRequestDTO              `json:"approval_request"`
	PurchaseOrder   *purchaseorders.PurchaseOrderDTO `json:"purchase_order,omitempty"`
}

type ActorDTO struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email,omitempty"`
}

type ActionDTO struct {
	ID                uuid.UUID                `json:"id"`
	ApprovalRequestID uuid.UUID                `json:"approval_request_id"`
	Action            enums.ApprovalActionType `json:"action"`
	Reason            *string                  `json:"reason,omitempty"`
	Actor             ActorDTO                 `json:"actor"`
	CreatedAt         time.Time                `json:"created_at"`
}

// AuditTrail is the approval history of a purchase order.
type AuditTrail struct {
	HasApprovalRequest bool                `json:"has_approval_request"`
	ApprovalRequest    *ApprovalRequestDTO `json:"approval_request,omitempty"`
	Actions            []ActionDTO         `json:"actions"`
}

func FromModel(req *models.ApprovalRequest) *ApprovalRequestDTO {
	if req == nil {
		return nil
	}
	return &ApprovalRequestDTO{
		ID:              req.ID,
		PurchaseOrderID: req.PurchaseOrderID,
		RequesterID:     req.RequesterID,
		ApproverID:      req.ApproverID,
		Status:          req.Status,
		Amount:          req.Amount.StringFixed(2),
		Reason:          req.Reason,
		DecidedAt:       req.DecidedAt,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
}

func actionsFromModels(rows []models.ApprovalAction, actors map[uuid.UUID]models.User) []ActionDTO {
	return lo.Map(rows, func(a models.ApprovalAction, _ int) ActionDTO {
		actor := ActorDTO{ID: a.ActorID}
		if u, ok := actors[a.ActorID]; ok {
			actor.Name = u.Name
			actor.Email = u.Email
		}
		return ActionDTO{
			ID:                a.ID,
			ApprovalRequestID: a.ApprovalRequestID,
			Action:            a.Action,
			Reason:            a.Reason,
			Actor:             actor,
			CreatedAt:         a.CreatedAt,
		}
	})
}
