package organizations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
)

// Repository persists organizations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the organizations repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// LockByID takes a row lock on the organization for the rest of the
// transaction. Membership changes that must see a stable member set hold it.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&org, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// UpdateSettings applies the non-nil approval and tax settings.
func (r *Repository) UpdateSettings(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", id).
		Updates(fields).Error
}
