package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

// Shipment is the physical delivery of one order.
type Shipment struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID             uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	AgentID             *uuid.UUID            `gorm:"column:agent_id;type:uuid;index" json:"agent_id,omitempty"`
	Status              enums.ShipmentStatus  `gorm:"column:status;type:shipment_status;not null" json:"status"`
	Barcode             *string               `gorm:"column:barcode" json:"barcode,omitempty"`
	TrackingID          string                `gorm:"column:tracking_id;not null;uniqueIndex" json:"tracking_id"`
	BarcodeVerified     bool                  `gorm:"column:barcode_verified;not null;default:false" json:"barcode_verified"`
	CurrentLocation     *types.GeographyPoint `gorm:"column:current_location;type:geography" json:"current_location,omitempty"`
	SellerLocation      *types.GeographyPoint `gorm:"column:seller_location;type:geography" json:"seller_location,omitempty"`
	ShippingLocation    *types.GeographyPoint `gorm:"column:shipping_location;type:geography" json:"shipping_location,omitempty"`
	DistanceKM          *decimal.Decimal      `gorm:"column:distance_km;type:numeric(10,2)" json:"distance_km,omitempty"`
	EstimatedDeliveryAt *time.Time            `gorm:"column:estimated_delivery_at" json:"estimated_delivery_at,omitempty"`
	DeliveredAt         *time.Time            `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	Version             int                   `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (s *Shipment) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// HasBarcode reports whether a seller label barcode was recorded.
func (s *Shipment) HasBarcode() bool {
	return s.Barcode != nil && strings.TrimSpace(*s.Barcode) != ""
}

// IsAssignedTo reports whether agentID holds the shipment.
func (s *Shipment) IsAssignedTo(agentID uuid.UUID) bool {
	return s.AgentID != nil && *s.AgentID == agentID
}

func (s Shipment) CursorKey() pagination.Cursor {
	return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
}

// ShipmentEvent is one row of the append-only status history.
type ShipmentEvent struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShipmentID uuid.UUID             `gorm:"column:shipment_id;type:uuid;not null;index" json:"shipment_id"`
	FromStatus *enums.ShipmentStatus `gorm:"column:from_status;type:shipment_status" json:"from_status,omitempty"`
	ToStatus   enums.ShipmentStatus  `gorm:"column:to_status;type:shipment_status;not null" json:"to_status"`
	ActorID    *uuid.UUID            `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	Note       *string               `gorm:"column:note" json:"note,omitempty"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (e *ShipmentEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// ShipmentFailure records an agent-reported failed delivery attempt.
type ShipmentFailure struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShipmentID uuid.UUID `gorm:"column:shipment_id;type:uuid;not null;index" json:"shipment_id"`
	AgentID    uuid.UUID `gorm:"column:agent_id;type:uuid;not null" json:"agent_id"`
	Reason     string    `gorm:"column:reason;not null" json:"reason"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (f *ShipmentFailure) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
