package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

// DeliveryProof is the photo evidence for a shipment; one row per shipment.
type DeliveryProof struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShipmentID    uuid.UUID  `gorm:"column:shipment_id;type:uuid;not null;uniqueIndex" json:"shipment_id"`
	OrderID       uuid.UUID  `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	AgentID       uuid.UUID  `gorm:"column:agent_id;type:uuid;not null" json:"agent_id"`
	ImageURL      string     `gorm:"column:image_url;not null" json:"image_url"`
	ObjectKey     string     `gorm:"column:object_key;not null" json:"-"`
	ContentType   string     `gorm:"column:content_type;not null" json:"content_type"`
	Remarks       *string    `gorm:"column:remarks" json:"remarks,omitempty"`
	AdminVerified bool       `gorm:"column:admin_verified;not null;default:false" json:"admin_verified"`
	VerifiedBy    *uuid.UUID `gorm:"column:verified_by;type:uuid" json:"verified_by,omitempty"`
	VerifiedAt    *time.Time `gorm:"column:verified_at" json:"verified_at,omitempty"`
	UploadedAt    time.Time  `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
}

func (p *DeliveryProof) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// SellerProofRequest is a seller asking to see the proof for a shipment.
type SellerProofRequest struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SellerID     uuid.UUID                `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_seller_proof_requests_seller_shipment,priority:1" json:"seller_id"`
	ShipmentID   uuid.UUID                `gorm:"column:shipment_id;type:uuid;not null;uniqueIndex:ux_seller_proof_requests_seller_shipment,priority:2" json:"shipment_id"`
	OrderID      uuid.UUID                `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	Status       enums.ProofRequestStatus `gorm:"column:status;type:proof_request_status;not null" json:"status"`
	Reason       string                   `gorm:"column:reason;not null" json:"reason"`
	AdminComment *string                  `gorm:"column:admin_comment" json:"admin_comment,omitempty"`
	RequestedAt  time.Time                `gorm:"column:requested_at;not null" json:"requested_at"`
	ProcessedAt  *time.Time               `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessedBy  *uuid.UUID               `gorm:"column:processed_by;type:uuid" json:"processed_by,omitempty"`
}

func (r *SellerProofRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
