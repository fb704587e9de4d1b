package invoiceupload

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// Repository reads and writes the token columns of purchase orders.
type Repository interface {
	FindPurchaseOrder(ctx context.Context, orgID, id uuid.UUID) (*models.PurchaseOrder, error)
	FindByToken(ctx context.Context, token string) (*models.PurchaseOrder, error)
	// AssignToken stores token only while the order still accepts an invoice.
	AssignToken(ctx context.Context, id uuid.UUID, token string, fields map[string]any) (int64, error)
	// AttachInvoice applies fields only while token is still the order's live token.
	AttachInvoice(ctx context.Context, id uuid.UUID, token string, fields map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an invoice upload repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindPurchaseOrder(ctx context.Context, orgID, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Where("invoice_upload_token = ?", token).
		First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) AssignToken(ctx context.Context, id uuid.UUID, token string, fields map[string]any) (int64, error) {
	fields["invoice_upload_token"] = token
	result := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND invoice_url IS NULL AND status IN ?", id, []enums.PurchaseOrderStatus{
			enums.PurchaseOrderStatusSent,
			enums.PurchaseOrderStatusReceived,
		}).
		Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *repository) AttachInvoice(ctx context.Context, id uuid.UUID, token string, fields map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND invoice_upload_token = ? AND invoice_url IS NULL", id, token).
		Updates(fields)
	return result.RowsAffected, result.Error
}
