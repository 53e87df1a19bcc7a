package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

var errNoTx = errors.New("outbox: transaction required")

// DomainEvent is a state change to publish once its transaction commits.
// Data is marshalled into the envelope as-is.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// normalize fills AggregateType from the event when it is left empty and
// rejects events that would not route.
func (e *DomainEvent) normalize() error {
	if e.AggregateType == "" {
		e.AggregateType = e.EventType.Aggregate()
	}
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("outbox: unknown event type %q", e.EventType)
	case e.AggregateType != e.EventType.Aggregate():
		return fmt.Errorf("outbox: %s is not a %s event", e.EventType, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("outbox: %s has no aggregate id", e.EventType)
	}
	return nil
}

// Emitter is what domain services write events through.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// Service writes events to the outbox table; the publisher drains it.
type Service struct {
	rows *Repository
	log  *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{rows: repo, log: logg}
}

// Emit inserts the sealed event through tx, so it commits or rolls back
// together with the caller's writes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.normalize(); err != nil {
		return err
	}
	env, err := sealEnvelope(event)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("outbox: encode envelope: %w", err)
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       raw,
	}
	if err := s.rows.Insert(tx, row); err != nil {
		return fmt.Errorf("outbox: insert %s: %w", event.EventType, err)
	}
	if s.log == nil {
		return nil
	}
	s.log.Debug(s.log.WithFields(ctx, map[string]any{
		"event_id":  env.EventID,
		"event":     string(event.EventType),
		"aggregate": string(event.AggregateType) + "/" + event.AggregateID.String(),
	}), "outbox event queued")
	return nil
}
