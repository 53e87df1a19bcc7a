package completion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

// Step names the post-delivery posting a completion row tracks.
type Step string

const (
	StepEarning    Step = "earning"
	StepSettlement Step = "settlement"
)

func (s Step) column() string {
	return string(s) + "_status"
}

var openStatuses = []enums.CompletionStepStatus{enums.CompletionStepPending, enums.CompletionStepFailed}

// Repository persists delivery completion rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.DeliveryCompletion) error
	FindByShipmentID(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error)
	SetStep(ctx context.Context, shipmentID uuid.UUID, step Step, status enums.CompletionStepStatus) error
	RecordFailure(ctx context.Context, shipmentID uuid.UUID, lastError string) error
	MarkCompleted(ctx context.Context, shipmentID uuid.UUID, at time.Time) error
	ListOpen(ctx context.Context, maxAttempts, limit int) ([]models.DeliveryCompletion, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a completion repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the row once; later calls for the same shipment are no-ops.
func (r *repository) Create(ctx context.Context, row *models.DeliveryCompletion) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "shipment_id"}}, DoNothing: true}).
		Create(row).Error
}

func (r *repository) FindByShipmentID(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error) {
	var row models.DeliveryCompletion
	if err := r.db.WithContext(ctx).Where("shipment_id = ?", shipmentID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) SetStep(ctx context.Context, shipmentID uuid.UUID, step Step, status enums.CompletionStepStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryCompletion{}).
		Where("shipment_id = ?", shipmentID).
		Update(step.column(), status).Error
}

func (r *repository) RecordFailure(ctx context.Context, shipmentID uuid.UUID, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryCompletion{}).
		Where("shipment_id = ?", shipmentID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}

func (r *repository) MarkCompleted(ctx context.Context, shipmentID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryCompletion{}).
		Where("shipment_id = ? AND earning_status = ? AND settlement_status = ?", shipmentID, enums.CompletionStepDone, enums.CompletionStepDone).
		Updates(map[string]any{"completed_at": at, "last_error": nil}).Error
}

// ListOpen returns rows with a step still owed, oldest first.
func (r *repository) ListOpen(ctx context.Context, maxAttempts, limit int) ([]models.DeliveryCompletion, error) {
	query := r.db.WithContext(ctx).
		Where("(earning_status IN ? OR settlement_status IN ?)", openStatuses, openStatuses)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.DeliveryCompletion
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
