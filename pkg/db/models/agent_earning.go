package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

// AgentEarning is what an agent is owed for one delivered shipment.
type AgentEarning struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AgentID        uuid.UUID           `gorm:"column:agent_id;type:uuid;not null;index" json:"agent_id"`
	ShipmentID     uuid.UUID           `gorm:"column:shipment_id;type:uuid;not null;uniqueIndex" json:"shipment_id"`
	DistanceKM     decimal.Decimal     `gorm:"column:distance_km;type:numeric(10,2);not null" json:"distance_km"`
	RatePerKM      decimal.Decimal     `gorm:"column:rate_per_km;type:numeric(10,2);not null" json:"rate_per_km"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Status         enums.EarningStatus `gorm:"column:status;type:earning_status;not null" json:"status"`
	PaidAt         *time.Time          `gorm:"column:paid_at" json:"paid_at,omitempty"`
	TransactionRef *string             `gorm:"column:transaction_ref" json:"transaction_ref,omitempty"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (e *AgentEarning) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

func (e AgentEarning) CursorKey() pagination.Cursor {
	return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}
