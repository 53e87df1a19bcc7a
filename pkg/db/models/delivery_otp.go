package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryOtp holds the hash of a one-time code sent to the order contact.
// The newest row per order is the active one.
type DeliveryOtp struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index:idx_delivery_otps_order_created,priority:1"`
	ShipmentID   uuid.UUID  `gorm:"column:shipment_id;type:uuid;not null"`
	Recipient    string     `gorm:"column:recipient;not null"`
	CodeHash     string     `gorm:"column:code_hash;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	Verified     bool       `gorm:"column:verified;not null;default:false"`
	VerifiedAt   *time.Time `gorm:"column:verified_at"`
	Attempts     int        `gorm:"column:attempts;not null;default:0"`
	SupersededAt *time.Time `gorm:"column:superseded_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_delivery_otps_order_created,priority:2"`
}

func (o *DeliveryOtp) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// Expired reports whether the code is past its window at now.
func (o *DeliveryOtp) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
