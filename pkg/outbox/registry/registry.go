// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads into typed structs.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox/payloads"
)

// EventDescriptor is the route for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never succeed; the publisher parks
// it instead of scheduling another attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError { return NonRetryableError{Err: err} }

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func route[T any](topic string, aggregate enums.OutboxAggregateType, types ...enums.OutboxEventType) []EventDescriptor {
	out := make([]EventDescriptor, 0, len(types))
	for _, t := range types {
		out = append(out, EventDescriptor{
			EventType:     t,
			AggregateType: aggregate,
			Topic:         topic,
			newPayload:    func() any { return new(T) },
		})
	}
	return out
}

// NewEventRegistry wires delivery events to the delivery topic and money
// events to the settlement topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	delivery := strings.TrimSpace(cfg.DeliveryTopic)
	settlement := strings.TrimSpace(cfg.SettlementTopic)
	var missing []error
	if delivery == "" {
		missing = append(missing, errors.New("delivery topic is required"))
	}
	if settlement == "" {
		missing = append(missing, errors.New("settlement topic is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	groups := [][]EventDescriptor{
		route[payloads.ShipmentStatusEvent](delivery, enums.AggregateShipment,
			enums.EventShipmentAssigned,
			enums.EventShipmentDispatched,
			enums.EventShipmentOutForDelivery,
			enums.EventShipmentDelivered,
			enums.EventShipmentFailed,
		),
		route[payloads.ProofRequestDecidedEvent](delivery, enums.AggregateProofRequest, enums.EventProofRequestDecided),
		route[payloads.SettlementEvent](settlement, enums.AggregateSettlement, enums.EventSettlementCreated, enums.EventSettlementPaid),
		route[payloads.EarningEvent](settlement, enums.AggregateEarning, enums.EventEarningRecorded, enums.EventEarningPaid),
	}

	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, group := range groups {
		for _, desc := range group {
			reg.routes[desc.EventType] = desc
		}
	}
	return reg, nil
}

// Resolve checks the row against its route and decodes the payload. Every
// error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("%s row has no aggregate_id", event.EventType))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
