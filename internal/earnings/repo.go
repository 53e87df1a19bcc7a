package earnings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

// Repository manages persistence for agent earnings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, earning *models.AgentEarning) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.AgentEarning, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.AgentEarning, error)
	FindByShipmentID(ctx context.Context, shipmentID uuid.UUID) (*models.AgentEarning, error)
	MarkPaid(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) error
	ListByAgent(ctx context.Context, agentID uuid.UUID, status *enums.EarningStatus, cursor *pagination.Cursor, limit int) ([]models.AgentEarning, error)
	Totals(ctx context.Context, agentID uuid.UUID, since time.Time) (Totals, error)
}

// Totals aggregates an agent's deliveries and earnings.
type Totals struct {
	TotalOrders     int64
	CompletedOrders int64
	EarningsSince   decimal.Decimal
	TotalEarnings   decimal.Decimal
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an earnings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, earning *models.AgentEarning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.AgentEarning, error) {
	var earning models.AgentEarning
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&earning).Error; err != nil {
		return nil, err
	}
	return &earning, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.AgentEarning, error) {
	var earning models.AgentEarning
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&earning).Error; err != nil {
		return nil, err
	}
	return &earning, nil
}

func (r *repository) FindByShipmentID(ctx context.Context, shipmentID uuid.UUID) (*models.AgentEarning, error) {
	var earning models.AgentEarning
	if err := r.db.WithContext(ctx).Where("shipment_id = ?", shipmentID).First(&earning).Error; err != nil {
		return nil, err
	}
	return &earning, nil
}

// MarkPaid flips a PENDING earning to PAID. It affects nothing when the
// earning is already paid.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, ref string, paidAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.AgentEarning{}).
		Where("id = ? AND status = ?", id, enums.EarningStatusPending).
		Updates(map[string]any{
			"status":          enums.EarningStatusPaid,
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

func (r *repository) ListByAgent(ctx context.Context, agentID uuid.UUID, status *enums.EarningStatus, cursor *pagination.Cursor, limit int) ([]models.AgentEarning, error) {
	var rows []models.AgentEarning
	query := r.db.WithContext(ctx).Where("agent_id = ?", agentID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := pagination.ApplyCursor(query, cursor).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Totals(ctx context.Context, agentID uuid.UUID, since time.Time) (Totals, error) {
	var totals Totals
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Shipment{}).
		Where("agent_id = ?", agentID).
		Count(&totals.TotalOrders).Error; err != nil {
		return Totals{}, err
	}
	if err := db.Model(&models.Shipment{}).
		Where("agent_id = ? AND status = ?", agentID, enums.ShipmentStatusDelivered).
		Count(&totals.CompletedOrders).Error; err != nil {
		return Totals{}, err
	}

	var total, today decimal.NullDecimal
	if err := db.Model(&models.AgentEarning{}).
		Where("agent_id = ?", agentID).
		Select("SUM(amount)").
		Scan(&total).Error; err != nil {
		return Totals{}, err
	}
	if err := db.Model(&models.AgentEarning{}).
		Where("agent_id = ? AND created_at >= ?", agentID, since).
		Select("SUM(amount)").
		Scan(&today).Error; err != nil {
		return Totals{}, err
	}
	totals.TotalEarnings = total.Decimal.Round(2)
	totals.EarningsSince = today.Decimal.Round(2)
	return totals, nil
}
