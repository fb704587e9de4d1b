package approvals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// Repository persists approval requests and their append-only audit trail.
// Soft-deleted requests are invisible to every read except the action log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRequest(ctx context.Context, req *models.ApprovalRequest) error
	FindRequest(ctx context.Context, orgID, id uuid.UUID) (*models.ApprovalRequest, error)
	LockRequest(ctx context.Context, orgID, id uuid.UUID) (*models.ApprovalRequest, error)
	FindActiveByPurchaseOrder(ctx context.Context, orgID, poID uuid.UUID) (*models.ApprovalRequest, error)
	ListPendingForApprover(ctx context.Context, orgID, approverID uuid.UUID) ([]models.ApprovalRequest, error)
	// DecideRequest applies fields only while the request is still PENDING.
	DecideRequest(ctx context.Context, id uuid.UUID, fields map[string]any) (int64, error)
	SoftDeleteForPurchaseOrder(ctx context.Context, poID uuid.UUID) error
	AppendAction(ctx context.Context, action *models.ApprovalAction) error
	ListActions(ctx context.Context, poID uuid.UUID) ([]models.ApprovalAction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an approvals repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRequest(ctx context.Context, req *models.ApprovalRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindRequest(ctx context.Context, orgID, id uuid.UUID) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) LockRequest(ctx context.Context, orgID, id uuid.UUID) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindActiveByPurchaseOrder(ctx context.Context, orgID, poID uuid.UUID) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("purchase_order_id = ? AND organization_id = ?", poID, orgID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListPendingForApprover(ctx context.Context, orgID, approverID uuid.UUID) ([]models.ApprovalRequest, error) {
	var rows []models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND approver_id = ? AND status = ?", orgID, approverID, enums.ApprovalStatusPending).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) DecideRequest(ctx context.Context, id uuid.UUID, fields map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, enums.ApprovalStatusPending).
		Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *repository) SoftDeleteForPurchaseOrder(ctx context.Context, poID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("purchase_order_id = ?", poID).
		Delete(&models.ApprovalRequest{}).Error
}

func (r *repository) AppendAction(ctx context.Context, action *models.ApprovalAction) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(action).Error
}

// ListActions returns every action recorded for the order, oldest first,
// including those of superseded requests.
func (r *repository) ListActions(ctx context.Context, poID uuid.UUID) ([]models.ApprovalAction, error) {
	var rows []models.ApprovalAction
	err := r.db.WithContext(ctx).
		Where("purchase_order_id = ?", poID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
