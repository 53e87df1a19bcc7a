package enums

import "fmt"

// ShipmentStatus is the delivery lifecycle of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusCreated        ShipmentStatus = "CREATED"
	ShipmentStatusAssigned       ShipmentStatus = "ASSIGNED"
	ShipmentStatusDispatched     ShipmentStatus = "DISPATCHED"
	ShipmentStatusOutForDelivery ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentStatusDelivered      ShipmentStatus = "DELIVERED"
	ShipmentStatusFailed         ShipmentStatus = "DELIVERY_FAILED"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusCreated,
	ShipmentStatusAssigned,
	ShipmentStatusDispatched,
	ShipmentStatusOutForDelivery,
	ShipmentStatusDelivered,
	ShipmentStatusFailed,
}

// shipmentTransitions is the complete edge list. Terminal states have no entry.
var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusCreated: {
		ShipmentStatusAssigned,
	},
	ShipmentStatusAssigned: {
		ShipmentStatusAssigned,
		ShipmentStatusDispatched,
		ShipmentStatusOutForDelivery,
		ShipmentStatusFailed,
	},
	ShipmentStatusDispatched: {
		ShipmentStatusOutForDelivery,
		ShipmentStatusDelivered,
		ShipmentStatusFailed,
	},
	ShipmentStatusOutForDelivery: {
		ShipmentStatusDelivered,
		ShipmentStatusFailed,
	},
}

// String implements fmt.Stringer.
func (s ShipmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShipmentStatus.
func (s ShipmentStatus) IsValid() bool {
	for _, candidate := range validShipmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentStatusDelivered || s == ShipmentStatusFailed
}

// IsAgentHeld reports whether an assigned agent is carrying the shipment.
func (s ShipmentStatus) IsAgentHeld() bool {
	switch s {
	case ShipmentStatusAssigned, ShipmentStatusDispatched, ShipmentStatusOutForDelivery:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	for _, candidate := range shipmentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseShipmentStatus converts raw input into a ShipmentStatus.
func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	for _, candidate := range validShipmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment status %q", value)
}
