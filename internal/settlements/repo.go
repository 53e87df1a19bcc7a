package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

// Repository persists seller settlements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.SellerSettlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.SellerSettlement, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus) error
	MarkPaid(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) error
	List(ctx context.Context, status *enums.SettlementStatus, cursor *pagination.Cursor, limit int) ([]models.SellerSettlement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.SellerSettlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error) {
	var row models.SellerSettlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error) {
	var row models.SellerSettlement
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.SellerSettlement, error) {
	var row models.SellerSettlement
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// TransitionStatus moves a settlement from one status to another and fails
// with gorm.ErrRecordNotFound when the row is not in from.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.SellerSettlement{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.SellerSettlement{}).
		Where("id = ? AND status = ?", id, enums.SettlementStatusReady).
		Updates(map[string]any{
			"status":          enums.SettlementStatusPaid,
			"transaction_ref": ref,
			"paid_at":         paidAt,
			"updated_at":      paidAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, status *enums.SettlementStatus, cursor *pagination.Cursor, limit int) ([]models.SellerSettlement, error) {
	var rows []models.SellerSettlement
	query := r.db.WithContext(ctx).Model(&models.SellerSettlement{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := pagination.ApplyCursor(query, cursor).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
