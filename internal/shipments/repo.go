package shipments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

// ErrStaleVersion means the row changed after it was read.
var ErrStaleVersion = errors.New("shipment version changed")

// Repository persists shipments and their append-only history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, shipment *models.Shipment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error)
	UpdateVersioned(ctx context.Context, id uuid.UUID, version int, fields map[string]any) error
	UpdateLocation(ctx context.Context, id uuid.UUID, point types.GeographyPoint) error
	AppendEvent(ctx context.Context, event *models.ShipmentEvent) error
	AppendFailure(ctx context.Context, failure *models.ShipmentFailure) error
	ListByAgent(ctx context.Context, agentID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Shipment, error)
	ListEvents(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a shipment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shipment).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&shipment).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&shipment).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

// UpdateVersioned applies fields when the stored version still equals
// version and bumps it.
func (r *repository) UpdateVersioned(ctx context.Context, id uuid.UUID, version int, fields map[string]any) error {
	updates := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (r *repository) UpdateLocation(ctx context.Context, id uuid.UUID, point types.GeographyPoint) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_location": point,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.ShipmentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) AppendFailure(ctx context.Context, failure *models.ShipmentFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

func (r *repository) ListByAgent(ctx context.Context, agentID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Shipment, error) {
	var rows []models.Shipment
	query := r.db.WithContext(ctx).Where("agent_id = ?", agentID)
	if err := pagination.ApplyCursor(query, cursor).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListEvents(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentEvent, error) {
	var rows []models.ShipmentEvent
	if err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
