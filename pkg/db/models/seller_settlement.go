package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

// SellerSettlement is the net amount owed to the seller of a delivered order.
type SellerSettlement struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	SellerID       uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	OrderAmount    decimal.Decimal        `gorm:"column:order_amount;type:numeric(14,2);not null" json:"order_amount"`
	PlatformFee    decimal.Decimal        `gorm:"column:platform_fee;type:numeric(14,2);not null" json:"platform_fee"`
	Tax            decimal.Decimal        `gorm:"column:tax;type:numeric(14,2);not null" json:"tax"`
	NetAmount      decimal.Decimal        `gorm:"column:net_amount;type:numeric(14,2);not null" json:"net_amount"`
	Status         enums.SettlementStatus `gorm:"column:status;type:settlement_status;not null" json:"status"`
	TransactionRef *string                `gorm:"column:transaction_ref" json:"transaction_ref,omitempty"`
	PaidAt         *time.Time             `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (s *SellerSettlement) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (s SellerSettlement) CursorKey() pagination.Cursor {
	return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
}
