package counters

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
)

// Repository persists named counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockByName(ctx context.Context, orgID uuid.UUID, name string) (*models.Counter, error)
	Insert(ctx context.Context, counter *models.Counter) error
	UpdateValue(ctx context.Context, id uuid.UUID, value int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a counters repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockByName selects the counter row FOR UPDATE. Returns gorm.ErrRecordNotFound
// when the counter has not been created yet.
func (r *repository) LockByName(ctx context.Context, orgID uuid.UUID, name string) (*models.Counter, error) {
	var counter models.Counter
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND name = ?", orgID, name).
		First(&counter).Error
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func (r *repository) Insert(ctx context.Context, counter *models.Counter) error {
	if counter.ID == uuid.Nil {
		counter.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(counter).Error
}

func (r *repository) UpdateValue(ctx context.Context, id uuid.UUID, value int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Counter{}).
		Where("id = ?", id).
		Update("value", value).Error
}
