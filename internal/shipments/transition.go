package shipments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox/payloads"
)

var eventForStatus = map[enums.ShipmentStatus]enums.OutboxEventType{
	enums.ShipmentStatusAssigned:       enums.EventShipmentAssigned,
	enums.ShipmentStatusDispatched:     enums.EventShipmentDispatched,
	enums.ShipmentStatusOutForDelivery: enums.EventShipmentOutForDelivery,
	enums.ShipmentStatusDelivered:      enums.EventShipmentDelivered,
	enums.ShipmentStatusFailed:         enums.EventShipmentFailed,
}

// Change is one requested status move plus the columns written with it.
type Change struct {
	To      enums.ShipmentStatus
	Actor   *outbox.ActorRef
	Note    string
	Fields  map[string]any
	At      time.Time
	AgentID *uuid.UUID
}

// Transitioner is the single path through which shipment status changes.
// It must run inside the caller's transaction.
type Transitioner struct {
	outbox  outbox.Emitter
	metrics *metrics.DeliveryMetrics
}

func NewTransitioner(emitter outbox.Emitter, m *metrics.DeliveryMetrics) *Transitioner {
	return &Transitioner{outbox: emitter, metrics: m}
}

// CheckAllowed validates a move against the transition table without writing.
func CheckAllowed(shipment *models.Shipment, to enums.ShipmentStatus) error {
	from := shipment.Status
	if !from.CanTransitionTo(to) {
		return transitionConflict(from, to, "transition not allowed")
	}
	if from == enums.ShipmentStatusDispatched && to == enums.ShipmentStatusDelivered && shipment.HasBarcode() {
		return transitionConflict(from, to, "barcode must be scanned before delivery")
	}
	return nil
}

// Apply moves shipment to change.To, appends history and queues the outbox
// event. shipment is updated in place on success.
func (t *Transitioner) Apply(ctx context.Context, tx *gorm.DB, repo Repository, shipment *models.Shipment, change Change) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transition requires a transaction")
	}
	if err := CheckAllowed(shipment, change.To); err != nil {
		return err
	}
	agentID := shipment.AgentID
	if change.AgentID != nil {
		agentID = change.AgentID
	}
	if agentID == nil || *agentID == uuid.Nil {
		return transitionConflict(shipment.Status, change.To, "shipment has no agent")
	}

	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	fields := make(map[string]any, len(change.Fields)+2)
	for k, v := range change.Fields {
		fields[k] = v
	}
	fields["status"] = change.To
	if change.AgentID != nil {
		fields["agent_id"] = *change.AgentID
	}
	if change.To == enums.ShipmentStatusDelivered {
		fields["delivered_at"] = at
	}

	repo = repo.WithTx(tx)
	if err := repo.UpdateVersioned(ctx, shipment.ID, shipment.Version, fields); err != nil {
		if errors.Is(err, ErrStaleVersion) {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "shipment was modified concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update shipment status")
	}

	from := shipment.Status
	var note *string
	if trimmed := strings.TrimSpace(change.Note); trimmed != "" {
		note = &trimmed
	}
	var actorID *uuid.UUID
	if change.Actor != nil {
		id := change.Actor.UserID
		actorID = &id
	}
	if err := repo.AppendEvent(ctx, &models.ShipmentEvent{
		ShipmentID: shipment.ID,
		FromStatus: &from,
		ToStatus:   change.To,
		ActorID:    actorID,
		Note:       note,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append shipment event")
	}

	if err := t.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventForStatus[change.To],
		AggregateType: enums.AggregateShipment,
		AggregateID:   shipment.ID,
		Actor:         change.Actor,
		OccurredAt:    at,
		Data: payloads.ShipmentStatusEvent{
			ShipmentID: shipment.ID,
			OrderID:    shipment.OrderID,
			AgentID:    agentID,
			From:       from,
			To:         change.To,
			Reason:     change.Note,
			OccurredAt: at,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit shipment event")
	}

	shipment.Status = change.To
	shipment.AgentID = agentID
	shipment.Version++
	if change.To == enums.ShipmentStatusDelivered {
		shipment.DeliveredAt = &at
	}
	t.metrics.Transition(string(from), string(change.To))
	return nil
}

func transitionConflict(from, to enums.ShipmentStatus, msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(map[string]any{"from": from, "to": to})
}
