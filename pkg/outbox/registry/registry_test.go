package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DeliveryTopic: "delivery", SettlementTopic: "settlement"})
	require.NoError(t, err)
	return reg
}

func envelope(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return out
}

func TestResolveShipmentEvent(t *testing.T) {
	shipmentID := uuid.New()
	resolved, err := testRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventShipmentDelivered,
		AggregateType: enums.AggregateShipment,
		AggregateID:   shipmentID,
		Payload: envelope(t, payloads.ShipmentStatusEvent{
			ShipmentID: shipmentID,
			OrderID:    uuid.New(),
			From:       enums.ShipmentStatusOutForDelivery,
			To:         enums.ShipmentStatusDelivered,
		}),
	})
	require.NoError(t, err)
	require.Equal(t, "delivery", resolved.Descriptor.Topic)
	require.Equal(t, 1, resolved.Envelope.Version)

	decoded, ok := resolved.Payload.(*payloads.ShipmentStatusEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	require.Equal(t, shipmentID, decoded.ShipmentID)
	require.Equal(t, enums.ShipmentStatusDelivered, decoded.To)
}

func TestResolveSettlementEvent(t *testing.T) {
	settlementID := uuid.New()
	resolved, err := testRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventSettlementPaid,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlementID,
		Payload: envelope(t, payloads.SettlementEvent{
			SettlementID: settlementID,
			NetAmount:    decimal.RequireFromString("941.00"),
			Status:       enums.SettlementStatusPaid,
		}),
	})
	require.NoError(t, err)
	require.Equal(t, "settlement", resolved.Descriptor.Topic)
	decoded := resolved.Payload.(*payloads.SettlementEvent)
	require.True(t, decoded.NetAmount.Equal(decimal.NewFromInt(941)))
}

func TestEveryEventTypeHasRoute(t *testing.T) {
	reg := testRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventShipmentAssigned,
		enums.EventShipmentDispatched,
		enums.EventShipmentOutForDelivery,
		enums.EventShipmentDelivered,
		enums.EventShipmentFailed,
		enums.EventSettlementCreated,
		enums.EventSettlementPaid,
		enums.EventEarningRecorded,
		enums.EventEarningPaid,
		enums.EventProofRequestDecided,
	} {
		desc, ok := reg.routes[eventType]
		require.True(t, ok, "no route for %s", eventType)
		require.NotEmpty(t, desc.Topic)
		require.NotNil(t, desc.newPayload())
	}
}

func TestResolveRejectsBadRows(t *testing.T) {
	cases := []struct {
		name  string
		event models.OutboxEvent
	}{
		{"unknown type", models.OutboxEvent{
			EventType: "unknown_event", AggregateType: enums.AggregateShipment, AggregateID: uuid.New(),
			Payload: envelope(t, map[string]string{}),
		}},
		{"aggregate mismatch", models.OutboxEvent{
			EventType: enums.EventShipmentDelivered, AggregateType: enums.AggregateSettlement, AggregateID: uuid.New(),
			Payload: envelope(t, map[string]string{}),
		}},
		{"missing aggregate id", models.OutboxEvent{
			EventType: enums.EventEarningRecorded, AggregateType: enums.AggregateEarning,
			Payload: envelope(t, map[string]string{}),
		}},
		{"null data", models.OutboxEvent{
			EventType: enums.EventEarningPaid, AggregateType: enums.AggregateEarning, AggregateID: uuid.New(),
			Payload: envelope(t, nil),
		}},
		{"payload shape", models.OutboxEvent{
			EventType: enums.EventEarningPaid, AggregateType: enums.AggregateEarning, AggregateID: uuid.New(),
			Payload: envelope(t, []int{1, 2}),
		}},
		{"not json", models.OutboxEvent{
			EventType: enums.EventEarningPaid, AggregateType: enums.AggregateEarning, AggregateID: uuid.New(),
			Payload: json.RawMessage(`{`),
		}},
	}
	reg := testRegistry(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Resolve(tc.event)
			var nonRetryable NonRetryableError
			require.ErrorAs(t, err, &nonRetryable)
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{DeliveryTopic: "d"})
	require.ErrorContains(t, err, "settlement topic")

	_, err = NewEventRegistry(config.PubSubConfig{SettlementTopic: "s"})
	require.ErrorContains(t, err, "delivery topic")

	_, err = NewEventRegistry(config.PubSubConfig{})
	require.ErrorContains(t, err, "delivery topic")
	require.ErrorContains(t, err, "settlement topic")
}
