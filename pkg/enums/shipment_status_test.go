package enums

import "testing"

func TestShipmentTransitionTable(t *testing.T) {
	allowed := []struct {
		from, to ShipmentStatus
	}{
		{ShipmentStatusCreated, ShipmentStatusAssigned},
		{ShipmentStatusAssigned, ShipmentStatusAssigned},
		{ShipmentStatusAssigned, ShipmentStatusDispatched},
		{ShipmentStatusAssigned, ShipmentStatusOutForDelivery},
		{ShipmentStatusDispatched, ShipmentStatusOutForDelivery},
		{ShipmentStatusOutForDelivery, ShipmentStatusDelivered},
		{ShipmentStatusOutForDelivery, ShipmentStatusFailed},
		{ShipmentStatusDispatched, ShipmentStatusFailed},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	rejected := []struct {
		from, to ShipmentStatus
	}{
		{ShipmentStatusCreated, ShipmentStatusDispatched},
		{ShipmentStatusCreated, ShipmentStatusDelivered},
		{ShipmentStatusCreated, ShipmentStatusFailed},
		{ShipmentStatusAssigned, ShipmentStatusDelivered},
		{ShipmentStatusOutForDelivery, ShipmentStatusDispatched},
		{ShipmentStatusDelivered, ShipmentStatusFailed},
		{ShipmentStatusFailed, ShipmentStatusAssigned},
		{ShipmentStatus("LOST"), ShipmentStatusDelivered},
	}
	for _, tc := range rejected {
		if tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestShipmentTerminalStatesHaveNoEdges(t *testing.T) {
	for _, status := range validShipmentStatuses {
		if !status.IsTerminal() {
			continue
		}
		for _, next := range validShipmentStatuses {
			if status.CanTransitionTo(next) {
				t.Fatalf("terminal %s must not reach %s", status, next)
			}
		}
	}
}

func TestParseShipmentStatus(t *testing.T) {
	got, err := ParseShipmentStatus("OUT_FOR_DELIVERY")
	if err != nil || got != ShipmentStatusOutForDelivery {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseShipmentStatus("out_for_delivery"); err == nil {
		t.Fatalf("expected lowercase status to be rejected")
	}
}

func TestWalletSourceParsing(t *testing.T) {
	if _, err := ParseWalletTransactionSource("AGENT_PAYOUT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseWalletTransactionSource("TIP"); err == nil {
		t.Fatalf("expected unknown source to fail")
	}
	if _, err := ParseWalletTransactionType("DEBIT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
