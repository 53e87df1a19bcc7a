package deliveryotp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
)

// Repository persists delivery OTP rows. Rows are never deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, otp *models.DeliveryOtp) error
	Latest(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOtp, error)
	LatestForUpdate(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOtp, error)
	SupersedeOthers(ctx context.Context, orderID, keepID uuid.UUID, at time.Time) error
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an OTP repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, otp *models.DeliveryOtp) error {
	return r.db.WithContext(ctx).Create(otp).Error
}

func (r *repository) Latest(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOtp, error) {
	return r.latest(r.db.WithContext(ctx), orderID)
}

func (r *repository) LatestForUpdate(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOtp, error) {
	return r.latest(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *repository) latest(query *gorm.DB, orderID uuid.UUID) (*models.DeliveryOtp, error) {
	var otp models.DeliveryOtp
	if err := query.
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		First(&otp).Error; err != nil {
		return nil, err
	}
	return &otp, nil
}

// SupersedeOthers stamps every older unverified code for the order.
func (r *repository) SupersedeOthers(ctx context.Context, orderID, keepID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryOtp{}).
		Where("order_id = ? AND id <> ? AND verified = ? AND superseded_at IS NULL", orderID, keepID, false).
		Update("superseded_at", at).Error
}

func (r *repository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryOtp{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

// MarkVerified only flips unverified rows; verified never goes back.
func (r *repository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryOtp{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]any{"verified": true, "verified_at": at}).Error
}
