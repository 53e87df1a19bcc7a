package enums

// OutboxAggregateType mirrors aggregate_type_enum.
type OutboxAggregateType string

const (
	AggregateShipment     OutboxAggregateType = "shipment"
	AggregateSettlement   OutboxAggregateType = "seller_settlement"
	AggregateEarning      OutboxAggregateType = "agent_earning"
	AggregateProofRequest OutboxAggregateType = "proof_request"
	AggregateWallet       OutboxAggregateType = "platform_wallet"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateShipment, AggregateSettlement, AggregateEarning, AggregateProofRequest, AggregateWallet:
		return true
	}
	return false
}

// OutboxEventType mirrors event_type_enum.
type OutboxEventType string

const (
	EventShipmentAssigned       OutboxEventType = "shipment_assigned"
	EventShipmentDispatched     OutboxEventType = "shipment_dispatched"
	EventShipmentOutForDelivery OutboxEventType = "shipment_out_for_delivery"
	EventShipmentDelivered      OutboxEventType = "shipment_delivered"
	EventShipmentFailed         OutboxEventType = "shipment_failed"
	EventSettlementCreated      OutboxEventType = "settlement_created"
	EventSettlementPaid         OutboxEventType = "settlement_paid"
	EventEarningRecorded        OutboxEventType = "earning_recorded"
	EventEarningPaid            OutboxEventType = "earning_paid"
	EventProofRequestDecided    OutboxEventType = "proof_request_decided"
)

// eventOwner is the only aggregate each event may be emitted for.
var eventOwner = map[OutboxEventType]OutboxAggregateType{
	EventShipmentAssigned:       AggregateShipment,
	EventShipmentDispatched:     AggregateShipment,
	EventShipmentOutForDelivery: AggregateShipment,
	EventShipmentDelivered:      AggregateShipment,
	EventShipmentFailed:         AggregateShipment,
	EventSettlementCreated:      AggregateSettlement,
	EventSettlementPaid:         AggregateSettlement,
	EventEarningRecorded:        AggregateEarning,
	EventEarningPaid:            AggregateEarning,
	EventProofRequestDecided:    AggregateProofRequest,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventOwner[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventOwner[e]
}

// OutboxDLQErrorReason records why a row was parked instead of published.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
