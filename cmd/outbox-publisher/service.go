package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	Park(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sendFunc publishes one message and blocks until the broker acks it.
type sendFunc func(ctx context.Context, topic string, msg *gcppubsub.Message) error

type ServiceParams struct {
	Outbox   config.OutboxConfig
	Logger   *logger.Logger
	DB       txRunner
	PubSub   topicSource
	Events   eventStore
	DLQ      deadLetters
	Registry eventResolver
	Metrics  *metrics.OutboxMetrics
	// Send overrides the Pub/Sub publish path in tests.
	Send sendFunc
}

// Service drains outbox_events to Pub/Sub. Rows that can never be
// delivered are copied to the DLQ and marked terminal in the same tx.
type Service struct {
	logg         *logger.Logger
	db           txRunner
	pubsub       topicSource
	events       eventStore
	dlq          deadLetters
	registry     eventResolver
	metrics      *metrics.OutboxMetrics
	send         sendFunc
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	jitter       *rand.Rand
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

func (o outcome) String() string {
	switch o {
	case outcomePublished:
		return metrics.OutboxPublished
	case outcomeRetry:
		return metrics.OutboxRetry
	default:
		return metrics.OutboxParked
	}
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		events:       params.Events,
		dlq:          params.DLQ,
		registry:     params.Registry,
		metrics:      params.Metrics,
		send:         params.Send,
		batchSize:    positiveOr(params.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(params.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.send == nil {
		s.send = s.publishToTopic
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// another drain; errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.drain(ctx)
		wait := s.pollInterval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox drain failed", err)
			backoff = min(backoff*2, maxBackoff)
			wait = backoff
		case n > 0:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
		}

		if err := s.sleep(ctx, wait+s.jitterFor()); err != nil {
			return err
		}
	}
}

// drain handles one locked batch and reports how many rows it touched.
func (s *Service) drain(ctx context.Context) (int, error) {
	var handled int
	start := time.Now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.events.ClaimPending(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		for _, row := range rows {
			result, err := s.dispatch(ctx, tx, row)
			if err != nil {
				return err
			}
			s.metrics.Dispatched(string(row.EventType), result.String())
			handled++
		}
		return nil
	})
	s.metrics.Drained(time.Since(start), err)
	return handled, err
}

// dispatch publishes a single row and records the result. Only bookkeeping
// failures are returned; publish failures become retries or DLQ entries.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}

	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return outcomeParked, s.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	sendErr := s.send(ctx, resolved.Descriptor.Topic, &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if sendErr == nil {
		if err := s.events.MarkPublished(tx, row.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(sendErr, &nonRetryable) {
		return outcomeParked, s.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr, fields)
	}
	if row.AttemptCount+1 >= s.maxAttempts {
		return outcomeParked, s.park(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", sendErr), fields)
	}

	warnCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", sendErr.Error())
	s.logg.Warn(warnCtx, "outbox publish failed, will retry")
	if err := s.events.RecordFailure(tx, row.ID, sendErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

func (s *Service) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	warnCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	s.logg.Warn(warnCtx, "outbox event parked in dlq")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := s.events.Park(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (s *Service) publishToTopic(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.pubsub.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	_, err := pub.Publish(publishCtx, msg).Get(publishCtx)
	return err
}

func (s *Service) jitterFor() time.Duration {
	return time.Duration(s.jitter.Int63n(int64(jitterWindow)))
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
