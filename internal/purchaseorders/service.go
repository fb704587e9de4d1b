package purchaseorders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/internal/approvals/policy"
	"github.com/angelmondragon/poflow-backend/internal/counters"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/pagination"
	"github.com/angelmondragon/poflow-backend/pkg/permissions"
)

// maxNumberSkips bounds how many allocated numbers may collide with
// manually chosen ones before giving up.
const maxNumberSkips = 10

// CancelledApprovalReason is recorded on a pending approval request closed by
// cancelling its order.
const CancelledApprovalReason = "purchase order cancelled"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orgLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// NumberAllocator hands out purchase order numbers inside a caller's transaction.
type NumberAllocator interface {
	GeneratePONumberTx(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, prefix string, padding int) (string, error)
	RunWithRetry(ctx context.Context, name string, fn func() error) error
}

// Numbering is the organization-independent number format.
type Numbering struct {
	Prefix  string
	Padding int
}

// Service manages the purchase order lifecycle outside the approval path.
type Service interface {
	CreateDraft(ctx context.Context, actor users.Actor, input DraftInput) (*DraftResult, error)
	UpdateDraft(ctx context.Context, actor users.Actor, poID uuid.UUID, input DraftInput) (*DraftResult, error)
	Get(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error)
	List(ctx context.Context, actor users.Actor, params ListParams) (*ListResult, error)
	Send(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error)
	MarkReceived(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error)
	Cancel(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	orgs      orgLookup
	numbers   NumberAllocator
	numbering Numbering
	now       func() time.Time
}

// NewService builds a purchase order service with the required dependencies.
func NewService(repo Repository, tx txRunner, orgs orgLookup, numbers NumberAllocator, numbering Numbering) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("purchase orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orgs == nil {
		return nil, fmt.Errorf("organization lookup required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("number allocator required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		orgs:      orgs,
		numbers:   numbers,
		numbering: numbering,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateDraft(ctx context.Context, actor users.Actor, input DraftInput) (*DraftResult, error) {
	if err := actor.Require(permissions.POCreate); err != nil {
		return nil, err
	}
	org, err := LoadOrganization(ctx, s.orgs, actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	po, err := BuildDraft(org, actor.UserID, input)
	if err != nil {
		return nil, err
	}

	manual := po.Number
	err = s.numbers.RunWithRetry(ctx, counters.PurchaseOrderCounter, func() error {
		po.Number = manual
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return Persist(ctx, tx, s.repo, s.numbers, s.numbering, po)
		})
	})
	if err != nil {
		return nil, err
	}

	return &DraftResult{
		PurchaseOrder:    FromModel(po),
		RequiresApproval: policy.RequiresApproval(org, po.SubtotalAmount, actor.Role),
	}, nil
}

func (s *service) UpdateDraft(ctx context.Context, actor users.Actor, poID uuid.UUID, input DraftInput) (*DraftResult, error) {
	if err := actor.Require(permissions.POCreate); err != nil {
		return nil, err
	}
	org, err := LoadOrganization(ctx, s.orgs, actor.OrganizationID)
	if err != nil {
		return nil, err
	}

	var updated *models.PurchaseOrder
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		po, err := repo.LockByID(ctx, actor.OrganizationID, poID)
		if err != nil {
			return db.LookupError(err, "purchase order not found")
		}
		if po.Status != enums.PurchaseOrderStatusDraft {
			return statusConflict(po, "only draft purchase orders can be edited")
		}

		currency := po.Currency
		if input.Currency != "" {
			currency = input.Currency
		}
		if fields := validateDraft(input, po.TaxMode, po.TaxRate, currency); len(fields) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase order").WithDetails(fields)
		}

		applyLineItems(po, input.LineItems)
		err = repo.Update(ctx, po.ID, map[string]any{
			"supplier_name":   strings.TrimSpace(input.SupplierName),
			"supplier_email":  trimmed(input.SupplierEmail),
			"currency":        currency,
			"notes":           trimmed(input.Notes),
			"subtotal_amount": po.SubtotalAmount,
			"tax_amount":      po.TaxAmount,
			"total_amount":    po.TotalAmount,
			"updated_at":      s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchase order")
		}
		if err := repo.ReplaceLineItems(ctx, po.ID, po.LineItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace line items")
		}
		updated, err = repo.FindByID(ctx, actor.OrganizationID, po.ID)
		return db.LookupError(err, "purchase order not found")
	})
	if err != nil {
		return nil, err
	}

	return &DraftResult{
		PurchaseOrder:    FromModel(updated),
		RequiresApproval: policy.RequiresApproval(org, updated.SubtotalAmount, actor.Role),
	}, nil
}

func (s *service) Get(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error) {
	if err := actor.Require(permissions.POView); err != nil {
		return nil, err
	}
	po, err := s.repo.FindByID(ctx, actor.OrganizationID, poID)
	if err != nil {
		return nil, db.LookupError(err, "purchase order not found")
	}
	return FromModel(po), nil
}

func (s *service) List(ctx context.Context, actor users.Actor, params ListParams) (*ListResult, error) {
	if err := actor.Require(permissions.POView); err != nil {
		return nil, err
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, actor.OrganizationID, params.Status, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchase orders")
	}
	page, next := pagination.TrimPage(rows, params.Limit, func(po models.PurchaseOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: po.CreatedAt, ID: po.ID}
	})
	return &ListResult{Items: FromModels(page), Cursor: next}, nil
}

func (s *service) Send(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error) {
	if err := actor.Require(permissions.POCreate); err != nil {
		return nil, err
	}
	org, err := LoadOrganization(ctx, s.orgs, actor.OrganizationID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, poID, func(po *models.PurchaseOrder) ([]enums.PurchaseOrderStatus, map[string]any, error) {
		switch po.Status {
		case enums.PurchaseOrderStatusApproved:
		case enums.PurchaseOrderStatusDraft:
			if policy.RequiresApproval(org, po.SubtotalAmount, actor.Role) {
				return nil, nil, statusConflict(po, "purchase order requires approval before sending")
			}
		default:
			return nil, nil, statusConflict(po, "purchase order cannot be sent")
		}
		now := s.now()
		return []enums.PurchaseOrderStatus{po.Status}, map[string]any{
			"status":     enums.PurchaseOrderStatusSent,
			"sent_at":    now,
			"updated_at": now,
		}, nil
	})
}

func (s *service) MarkReceived(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error) {
	if err := actor.Require(permissions.POReceive); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, poID, func(po *models.PurchaseOrder) ([]enums.PurchaseOrderStatus, map[string]any, error) {
		if po.Status != enums.PurchaseOrderStatusSent {
			return nil, nil, statusConflict(po, "only sent purchase orders can be received")
		}
		now := s.now()
		return []enums.PurchaseOrderStatus{enums.PurchaseOrderStatusSent}, map[string]any{
			"status":      enums.PurchaseOrderStatusReceived,
			"received_at": now,
			"updated_at":  now,
		}, nil
	})
}

func (s *service) Cancel(ctx context.Context, actor users.Actor, poID uuid.UUID) (*PurchaseOrderDTO, error) {
	if err := actor.Require(permissions.POView); err != nil {
		return nil, err
	}
	now := s.now()
	closePending := func(ctx context.Context, repo Repository, po *models.PurchaseOrder) error {
		if po.Status != enums.PurchaseOrderStatusPendingApproval {
			return nil
		}
		if _, err := repo.CloseActiveApproval(ctx, po.ID, actor.UserID, CancelledApprovalReason, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close pending approval request")
		}
		return nil
	}
	return s.transition(ctx, actor, poID, func(po *models.PurchaseOrder) ([]enums.PurchaseOrderStatus, map[string]any, error) {
		if po.Status.IsTerminal() {
			return nil, nil, statusConflict(po, "purchase order is already closed")
		}
		ownDraft := po.CreatedBy == actor.UserID && po.Status == enums.PurchaseOrderStatusDraft &&
			permissions.Has(actor.Role, permissions.POCreate)
		if !ownDraft && !permissions.Has(actor.Role, permissions.POCancel) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role").
				WithDetails(map[string]any{"required_permission": string(permissions.POCancel)})
		}
		return []enums.PurchaseOrderStatus{po.Status}, map[string]any{
			"status":                          enums.PurchaseOrderStatusCancelled,
			"cancelled_at":                    now,
			"invoice_upload_token":            nil,
			"invoice_upload_token_expires_at": nil,
			"updated_at":                      now,
		}, nil
	}, closePending)
}

type transitionFn func(po *models.PurchaseOrder) (from []enums.PurchaseOrderStatus, fields map[string]any, err error)

// sideEffectFn runs inside the transition transaction against the order as it
// was before the update.
type sideEffectFn func(ctx context.Context, repo Repository, before *models.PurchaseOrder) error

// transition locks the order, lets decide pick the update, applies it
// conditionally on the observed status and then runs effects in the same
// transaction.
func (s *service) transition(ctx context.Context, actor users.Actor, poID uuid.UUID, decide transitionFn, effects ...sideEffectFn) (*PurchaseOrderDTO, error) {
	var out *models.PurchaseOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		po, err := repo.LockByID(ctx, actor.OrganizationID, poID)
		if err != nil {
			return db.LookupError(err, "purchase order not found")
		}
		from, fields, err := decide(po)
		if err != nil {
			return err
		}
		rows, err := repo.TransitionStatus(ctx, po.ID, from, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchase order status")
		}
		if rows == 0 {
			return statusConflict(po, "purchase order changed concurrently")
		}
		for _, effect := range effects {
			if err := effect(ctx, repo, po); err != nil {
				return err
			}
		}
		out, err = repo.FindByID(ctx, actor.OrganizationID, po.ID)
		return db.LookupError(err, "purchase order not found")
	})
	if err != nil {
		return nil, err
	}
	return FromModel(out), nil
}

// Persist allocates a number when po has none and inserts the order with its
// line items inside tx. Allocated numbers already taken by a manually
// numbered order are skipped.
func Persist(ctx context.Context, tx *gorm.DB, repo Repository, numbers NumberAllocator, numbering Numbering, po *models.PurchaseOrder) error {
	repo = repo.WithTx(tx)
	if po.Number == "" {
		for attempt := 0; ; attempt++ {
			if attempt == maxNumberSkips {
				return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a free purchase order number")
			}
			number, err := numbers.GeneratePONumberTx(ctx, tx, po.OrganizationID, numbering.Prefix, numbering.Padding)
			if err != nil {
				return err
			}
			taken, err := repo.NumberExists(ctx, po.OrganizationID, number)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check purchase order number")
			}
			if !taken {
				po.Number = number
				break
			}
		}
	}

	if err := repo.Create(ctx, po); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "purchase order number already in use").
				WithDetails(map[string]any{"number": po.Number})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase order")
	}
	return nil
}

// LoadOrganization resolves the actor's organization.
func LoadOrganization(ctx context.Context, orgs orgLookup, id uuid.UUID) (*models.Organization, error) {
	org, err := orgs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
	}
	return org, nil
}

func statusConflict(po *models.PurchaseOrder, msg string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, msg).
		WithDetails(map[string]any{"status": po.Status})
}
