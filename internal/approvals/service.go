package approvals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/internal/counters"
	"github.com/angelmondragon/poflow-backend/internal/notifications"
	"github.com/angelmondragon/poflow-backend/internal/purchaseorders"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/metrics"
	"github.com/angelmondragon/poflow-backend/pkg/permissions"
	"github.com/angelmondragon/poflow-backend/pkg/postcommit"
)

const maxReasonLen = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orgLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

type userLookup interface {
	FindInOrganization(ctx context.Context, orgID, id uuid.UUID) (*models.User, error)
	FindManyByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
}

// Service drives purchase orders through PENDING_APPROVAL.
type Service interface {
	Submit(ctx context.Context, actor users.Actor, input SubmitInput) (*SubmitResult, error)
	Resubmit(ctx context.Context, actor users.Actor, poID, approverID uuid.UUID) (*SubmitResult, error)
	Approve(ctx context.Context, actor users.Actor, requestID uuid.UUID) (*DecisionResult, error)
	Deny(ctx context.Context, actor users.Actor, requestID uuid.UUID, reason string) (*DecisionResult, error)
	AuditTrail(ctx context.Context, actor users.Actor, poID uuid.UUID) (*AuditTrail, error)
	ListPending(ctx context.Context, actor users.Actor) ([]PendingApproval, error)
}

// Deps groups the collaborators of the approval service.
type Deps struct {
	Requests       Repository
	PurchaseOrders purchaseorders.Repository
	Organizations  orgLookup
	Users          userLookup
	Numbers        purchaseorders.NumberAllocator
	Numbering      purchaseorders.Numbering
	Tx             txRunner
	Notifier       notifications.Notifier
	Hooks          postcommit.Dispatcher
	Metrics        *metrics.Metrics
}

type service struct {
	Deps
	now func() time.Time
}

// NewService builds the approval workflow service.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Requests == nil:
		return nil, fmt.Errorf("approvals repository required")
	case deps.PurchaseOrders == nil:
		return nil, fmt.Errorf("purchase orders repository required")
	case deps.Organizations == nil:
		return nil, fmt.Errorf("organization lookup required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user lookup required")
	case deps.Numbers == nil:
		return nil, fmt.Errorf("number allocator required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case deps.Hooks == nil:
		return nil, fmt.Errorf("post-commit dispatcher required")
	}
	return &service{Deps: deps, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) Submit(ctx context.Context, actor users.Actor, input SubmitInput) (*SubmitResult, error) {
	if err := actor.Require(permissions.POCreate); err != nil {
		return nil, err
	}
	org, err := purchaseorders.LoadOrganization(ctx, s.Organizations, actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	approver, err := s.resolveApprover(ctx, actor.OrganizationID, input.ApproverID)
	if err != nil {
		return nil, err
	}
	po, err := purchaseorders.BuildDraft(org, actor.UserID, input.PurchaseOrder)
	if err != nil {
		return nil, err
	}
	po.Status = enums.PurchaseOrderStatusPendingApproval

	var req *models.ApprovalRequest
	manual := po.Number
	err = s.Numbers.RunWithRetry(ctx, counters.PurchaseOrderCounter, func() error {
		po.Number = manual
		return s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := purchaseorders.Persist(ctx, tx, s.PurchaseOrders, s.Numbers, s.Numbering, po); err != nil {
				return err
			}
			created, err := s.openRequest(ctx, s.Requests.WithTx(tx), actor, po, approver.ID)
			req = created
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.IncApprovalTransition("submitted")
	s.notifyApprover(ctx, req, po, actor)
	return &SubmitResult{PurchaseOrder: purchaseorders.FromModel(po), ApprovalRequest: FromModel(req)}, nil
}

func (s *service) Resubmit(ctx context.Context, actor users.Actor, poID, approverID uuid.UUID) (*SubmitResult, error) {
	if err := actor.Require(permissions.POCreate); err != nil {
		return nil, err
	}
	approver, err := s.resolveApprover(ctx, actor.OrganizationID, approverID)
	if err != nil {
		return nil, err
	}

	var (
		req *models.ApprovalRequest
		po  *models.PurchaseOrder
	)
	err = s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		pos := s.PurchaseOrders.WithTx(tx)
		requests := s.Requests.WithTx(tx)

		locked, err := pos.LockByID(ctx, actor.OrganizationID, poID)
		if err != nil {
			return db.LookupError(err, "purchase order not found")
		}
		active, err := requests.FindActiveByPurchaseOrder(ctx, actor.OrganizationID, locked.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approval request")
		}
		if active != nil && active.Status == enums.ApprovalStatusPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "approval request already pending").
				WithDetails(map[string]any{"approval_request_id": active.ID})
		}
		if locked.Status != enums.PurchaseOrderStatusDraft {
			return pkgerrors.New(pkgerrors.CodeConflict, "only draft purchase orders can be submitted for approval").
				WithDetails(map[string]any{"status": locked.Status})
		}
		if active != nil {
			if err := requests.SoftDeleteForPurchaseOrder(ctx, locked.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire previous approval request")
			}
		}

		rows, err := pos.TransitionStatus(ctx, locked.ID, []enums.PurchaseOrderStatus{enums.PurchaseOrderStatusDraft}, map[string]any{
			"status":     enums.PurchaseOrderStatusPendingApproval,
			"updated_at": s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchase order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "purchase order changed concurrently")
		}

		req, err = s.openRequest(ctx, requests, actor, locked, approver.ID)
		if err != nil {
			return err
		}
		po, err = pos.FindByID(ctx, actor.OrganizationID, locked.ID)
		return db.LookupError(err, "purchase order not found")
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.IncApprovalTransition("resubmitted")
	s.notifyApprover(ctx, req, po, actor)
	return &SubmitResult{PurchaseOrder: purchaseorders.FromModel(po), ApprovalRequest: FromModel(req)}, nil
}

func (s *service) Approve(ctx context.Context, actor users.Actor, requestID uuid.UUID) (*DecisionResult, error) {
	return s.decide(ctx, actor, requestID, enums.ApprovalStatusApproved, nil)
}

func (s *service) Deny(ctx context.Context, actor users.Actor, requestID uuid.UUID, reason string) (*DecisionResult, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason too long").
			WithDetails(map[string]string{"reason": fmt.Sprintf("at most %d characters", maxReasonLen)})
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	return s.decide(ctx, actor, requestID, enums.ApprovalStatusDenied, reasonPtr)
}

// decide applies a terminal status to a pending request and moves the order
// to SENT on approval or back to DRAFT on denial, in one transaction.
func (s *service) decide(ctx context.Context, actor users.Actor, requestID uuid.UUID, status enums.ApprovalStatus, reason *string) (*DecisionResult, error) {
	if err := actor.Require(permissions.POApprove); err != nil {
		return nil, err
	}

	action := enums.ApprovalActionApproved
	poFields := map[string]any{"status": enums.PurchaseOrderStatusSent}
	if status == enums.ApprovalStatusDenied {
		action = enums.ApprovalActionDenied
		poFields = map[string]any{"status": enums.PurchaseOrderStatusDraft}
	}

	var (
		req *models.ApprovalRequest
		po  *models.PurchaseOrder
	)
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		requests := s.Requests.WithTx(tx)
		pos := s.PurchaseOrders.WithTx(tx)

		locked, err := requests.LockRequest(ctx, actor.OrganizationID, requestID)
		if err != nil {
			return db.LookupError(err, "approval request not found")
		}
		if locked.Status.IsTerminal() {
			return alreadyDecided(locked)
		}

		now := s.now()
		fields := map[string]any{
			"status":      status,
			"approver_id": actor.UserID,
			"decided_at":  now,
			"updated_at":  now,
		}
		if reason != nil {
			fields["reason"] = *reason
		}
		rows, err := requests.DecideRequest(ctx, locked.ID, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update approval request")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "approval request already decided")
		}

		poFields["updated_at"] = now
		if status == enums.ApprovalStatusApproved {
			poFields["sent_at"] = now
		}
		rows, err = pos.TransitionStatus(ctx, locked.PurchaseOrderID, []enums.PurchaseOrderStatus{enums.PurchaseOrderStatusPendingApproval}, poFields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchase order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "purchase order is no longer awaiting approval")
		}

		if err := requests.AppendAction(ctx, &models.ApprovalAction{
			ApprovalRequestID: locked.ID,
			PurchaseOrderID:   locked.PurchaseOrderID,
			ActorID:           actor.UserID,
			Action:            action,
			Reason:            reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append approval action")
		}

		if req, err = requests.FindRequest(ctx, actor.OrganizationID, locked.ID); err != nil {
			return db.LookupError(err, "approval request not found")
		}
		po, err = pos.FindByID(ctx, actor.OrganizationID, locked.PurchaseOrderID)
		return db.LookupError(err, "purchase order not found")
	})
	if err != nil {
		return nil, err
	}

	eventType := enums.NotificationApprovalApproved
	if status == enums.ApprovalStatusDenied {
		eventType = enums.NotificationApprovalDenied
	}
	s.Metrics.IncApprovalTransition(strings.ToLower(status.String()))
	s.dispatch(ctx, notifications.Event{
		Type:              eventType,
		OrganizationID:    actor.OrganizationID,
		RecipientID:       req.RequesterID,
		PurchaseOrderID:   &po.ID,
		ApprovalRequestID: &req.ID,
		Data: map[string]any{
			"po_number":  po.Number,
			"decided_by": actor.Name,
			"reason":     lo.FromPtr(reason),
		},
	})
	return &DecisionResult{ApprovalRequest: FromModel(req), PurchaseOrder: purchaseorders.FromModel(po)}, nil
}

func (s *service) AuditTrail(ctx context.Context, actor users.Actor, poID uuid.UUID) (*AuditTrail, error) {
	if err := actor.Require(permissions.POView); err != nil {
		return nil, err
	}
	if _, err := s.PurchaseOrders.FindByID(ctx, actor.OrganizationID, poID); err != nil {
		return nil, db.LookupError(err, "purchase order not found")
	}

	trail := &AuditTrail{Actions: []ActionDTO{}}
	active, err := s.Requests.FindActiveByPurchaseOrder(ctx, actor.OrganizationID, poID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approval request")
	default:
		trail.HasApprovalRequest = true
		trail.ApprovalRequest = FromModel(active)
	}

	rows, err := s.Requests.ListActions(ctx, poID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approval actions")
	}
	actorIDs := lo.Uniq(lo.Map(rows, func(a models.ApprovalAction, _ int) uuid.UUID { return a.ActorID }))
	actors, err := s.Users.FindManyByIDs(ctx, actorIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load approval actors")
	}
	trail.Actions = actionsFromModels(rows, actors)
	return trail, nil
}

func (s *service) ListPending(ctx context.Context, actor users.Actor) ([]PendingApproval, error) {
	if err := actor.Require(permissions.POView); err != nil {
		return nil, err
	}
	rows, err := s.Requests.ListPendingForApprover(ctx, actor.OrganizationID, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending approvals")
	}
	poIDs := lo.Map(rows, func(r models.ApprovalRequest, _ int) uuid.UUID { return r.PurchaseOrderID })
	orders, err := s.PurchaseOrders.FindManyByIDs(ctx, actor.OrganizationID, poIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase orders")
	}
	return lo.Map(rows, func(r models.ApprovalRequest, _ int) PendingApproval {
		out := PendingApproval{ApprovalRequest: FromModel(&r)}
		if po, ok := orders[r.PurchaseOrderID]; ok {
			out.PurchaseOrder = purchaseorders.FromModel(&po)
		}
		return out
	}), nil
}

// openRequest creates the PENDING request for po and its SUBMITTED action.
func (s *service) openRequest(ctx context.Context, requests Repository, actor users.Actor, po *models.PurchaseOrder, approverID uuid.UUID) (*models.ApprovalRequest, error) {
	req := &models.ApprovalRequest{
		ID:              uuid.New(),
		OrganizationID:  actor.OrganizationID,
		PurchaseOrderID: po.ID,
		RequesterID:     actor.UserID,
		ApproverID:      approverID,
		Status:          enums.ApprovalStatusPending,
		Amount:          po.SubtotalAmount,
	}
	if err := requests.CreateRequest(ctx, req); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "approval request already pending")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create approval request")
	}
	if err := requests.AppendAction(ctx, &models.ApprovalAction{
		ApprovalRequestID: req.ID,
		PurchaseOrderID:   po.ID,
		ActorID:           actor.UserID,
		Action:            enums.ApprovalActionSubmitted,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append approval action")
	}
	return req, nil
}

func (s *service) resolveApprover(ctx context.Context, orgID, approverID uuid.UUID) (*models.User, error) {
	if approverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "approver id required").
			WithDetails(map[string]string{"approver_id": "required"})
	}
	approver, err := s.Users.FindInOrganization(ctx, orgID, approverID)
	if err != nil {
		return nil, db.LookupError(err, "approver not found")
	}
	if !approver.Role.IsApprover() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "approver must be an ADMIN or SUPER_ADMIN").
			WithDetails(map[string]string{"approver_id": "not an approver"})
	}
	return approver, nil
}

func (s *service) notifyApprover(ctx context.Context, req *models.ApprovalRequest, po *models.PurchaseOrder, requester users.Actor) {
	s.dispatch(ctx, notifications.Event{
		Type:              enums.NotificationApprovalRequested,
		OrganizationID:    req.OrganizationID,
		RecipientID:       req.ApproverID,
		PurchaseOrderID:   &po.ID,
		ApprovalRequestID: &req.ID,
		Data: map[string]any{
			"po_number":      po.Number,
			"supplier_name":  po.SupplierName,
			"amount":         req.Amount.StringFixed(2),
			"amount_display": po.Currency.FormatAmount(req.Amount),
			"currency":       po.Currency,
			"requested_by":   requester.Name,
			"requester_mail": requester.Email,
		},
	})
}

func (s *service) dispatch(ctx context.Context, event notifications.Event) {
	s.Hooks.Dispatch(ctx, notifications.Hook(s.Notifier, event))
}

func alreadyDecided(req *models.ApprovalRequest) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("approval request already %s", strings.ToLower(req.Status.String()))).
		WithDetails(map[string]any{"status": req.Status, "decided_at": req.DecidedAt})
}

