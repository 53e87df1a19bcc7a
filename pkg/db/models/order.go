package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the marketplace order a shipment fulfils. Orders are owned by
// the checkout service; this service only reads them.
type Order struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    *uuid.UUID      `gorm:"column:seller_id;type:uuid"`
	BuyerEmail  string          `gorm:"column:buyer_email;not null"`
	BuyerPhone  *string         `gorm:"column:buyer_phone"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
