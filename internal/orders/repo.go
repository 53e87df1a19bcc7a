package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
)

// Repository reads marketplace orders. Orders are owned by checkout; this
// service only needs the seller and buyer contact on them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return gormRepository{db: db}
}

func (r gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return gormRepository{db: tx}
}

func (r gormRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order := new(models.Order)
	if err := r.db.WithContext(ctx).Take(order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return order, nil
}
