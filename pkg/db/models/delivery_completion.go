package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

// DeliveryCompletion tracks the postings owed after a shipment is delivered.
// The row is written in the same transaction as the DELIVERED transition.
type DeliveryCompletion struct {
	ShipmentID       uuid.UUID                  `gorm:"column:shipment_id;type:uuid;primaryKey" json:"shipment_id"`
	OrderID          uuid.UUID                  `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	AgentID          uuid.UUID                  `gorm:"column:agent_id;type:uuid;not null" json:"agent_id"`
	EarningStatus    enums.CompletionStepStatus `gorm:"column:earning_status;type:completion_step_status;not null" json:"earning_status"`
	SettlementStatus enums.CompletionStepStatus `gorm:"column:settlement_status;type:completion_step_status;not null" json:"settlement_status"`
	Attempts         int                        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError        *string                    `gorm:"column:last_error" json:"last_error,omitempty"`
	CompletedAt      *time.Time                 `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Done reports whether both postings landed.
func (c *DeliveryCompletion) Done() bool {
	return c.EarningStatus == enums.CompletionStepDone && c.SettlementStatus == enums.CompletionStepDone
}
