package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

// ShipmentStatusEvent is emitted on every shipment transition.
type ShipmentStatusEvent struct {
	ShipmentID uuid.UUID            `json:"shipment_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	AgentID    *uuid.UUID           `json:"agent_id,omitempty"`
	From       enums.ShipmentStatus `json:"from"`
	To         enums.ShipmentStatus `json:"to"`
	Reason     string               `json:"reason,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// SettlementEvent covers settlement creation and payout.
type SettlementEvent struct {
	SettlementID   uuid.UUID              `json:"settlement_id"`
	OrderID        uuid.UUID              `json:"order_id"`
	SellerID       uuid.UUID              `json:"seller_id"`
	NetAmount      decimal.Decimal        `json:"net_amount"`
	Status         enums.SettlementStatus `json:"status"`
	TransactionRef string                 `json:"transaction_ref,omitempty"`
}

// EarningEvent covers earning creation and payout.
type EarningEvent struct {
	EarningID      uuid.UUID           `json:"earning_id"`
	AgentID        uuid.UUID           `json:"agent_id"`
	ShipmentID     uuid.UUID           `json:"shipment_id"`
	Amount         decimal.Decimal     `json:"amount"`
	Status         enums.EarningStatus `json:"status"`
	TransactionRef string              `json:"transaction_ref,omitempty"`
}

// ProofRequestDecidedEvent tells the seller an admin processed their request.
type ProofRequestDecidedEvent struct {
	RequestID  uuid.UUID                `json:"request_id"`
	SellerID   uuid.UUID                `json:"seller_id"`
	ShipmentID uuid.UUID                `json:"shipment_id"`
	Status     enums.ProofRequestStatus `json:"status"`
	Comment    string                   `json:"comment,omitempty"`
}
