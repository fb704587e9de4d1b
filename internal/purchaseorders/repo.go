package purchaseorders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	"github.com/angelmondragon/poflow-backend/pkg/pagination"
)

// NumberConstraint is the per-organization unique key on purchase order numbers.
const NumberConstraint = "purchase_orders_org_number_key"

// Repository persists purchase orders and their line items. Every read is
// scoped by organization.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, po *models.PurchaseOrder) error
	ReplaceLineItems(ctx context.Context, poID uuid.UUID, items []models.LineItem) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.PurchaseOrder, error)
	LockByID(ctx context.Context, orgID, id uuid.UUID) (*models.PurchaseOrder, error)
	NumberExists(ctx context.Context, orgID uuid.UUID, number string) (bool, error)
	FindManyByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.PurchaseOrder, error)
	List(ctx context.Context, orgID uuid.UUID, status *enums.PurchaseOrderStatus, cursor *pagination.Cursor, limit int) ([]models.PurchaseOrder, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	// TransitionStatus applies fields only while the order is in one of from.
	// Zero rows means another writer moved it first.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.PurchaseOrderStatus, fields map[string]any) (int64, error)
	// CloseActiveApproval denies the order's pending approval request on behalf
	// of actorID and appends the matching audit action. It reports whether a
	// pending request existed.
	CloseActiveApproval(ctx context.Context, poID, actorID uuid.UUID, reason string, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchase orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order, then its line items.
func (r *repository) Create(ctx context.Context, po *models.PurchaseOrder) error {
	if po.ID == uuid.Nil {
		po.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(po).Error; err != nil {
		return err
	}
	return r.insertLineItems(ctx, po.ID, po.LineItems)
}

func (r *repository) ReplaceLineItems(ctx context.Context, poID uuid.UUID, items []models.LineItem) error {
	if err := r.db.WithContext(ctx).Where("purchase_order_id = ?", poID).Delete(&models.LineItem{}).Error; err != nil {
		return err
	}
	return r.insertLineItems(ctx, poID, items)
}

func (r *repository) insertLineItems(ctx context.Context, poID uuid.UUID, items []models.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].PurchaseOrderID = poID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) LockByID(ctx context.Context, orgID, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) NumberExists(ctx context.Context, orgID uuid.UUID, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("organization_id = ? AND number = ?", orgID, number).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindManyByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.PurchaseOrder, error) {
	out := make(map[uuid.UUID]models.PurchaseOrder, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) List(ctx context.Context, orgID uuid.UUID, status *enums.PurchaseOrderStatus, cursor *pagination.Cursor, limit int) ([]models.PurchaseOrder, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("organization_id = ?", orgID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var rows []models.PurchaseOrder
	if err := pagination.Keyset(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.PurchaseOrderStatus, fields map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *repository) CloseActiveApproval(ctx context.Context, poID, actorID uuid.UUID, reason string, at time.Time) (bool, error) {
	var req models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("purchase_order_id = ? AND status = ?", poID, enums.ApprovalStatusPending).
		Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).
		Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", req.ID, enums.ApprovalStatusPending).
		Updates(map[string]any{
			"status":      enums.ApprovalStatusDenied,
			"approver_id": actorID,
			"reason":      reason,
			"decided_at":  at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	action := &models.ApprovalAction{
		ID:                uuid.New(),
		ApprovalRequestID: req.ID,
		PurchaseOrderID:   poID,
		ActorID:           actorID,
		Action:            enums.ApprovalActionDenied,
		Reason:            &reason,
		CreatedAt:         at,
	}
	return true, r.db.WithContext(ctx).Create(action).Error
}
