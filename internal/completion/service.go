package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type shipmentReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
}

type earningRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input earnings.RecordInput) (*models.AgentEarning, error)
}

type settlementCreator interface {
	Create(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.SellerSettlement, error)
}

// Service finishes the money side of a delivered shipment.
type Service interface {
	// Begin writes the PENDING row inside the DELIVERED transaction.
	Begin(ctx context.Context, tx *gorm.DB, shipment *models.Shipment) error
	Process(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error)
	Retry(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error)
	Get(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error)
	ListOpen(ctx context.Context, limit int) ([]models.DeliveryCompletion, error)
	ReconcileBatch(ctx context.Context, limit int) (BatchResult, error)
}

// BatchResult summarises one reconcile pass.
type BatchResult struct {
	Scanned   int
	Completed int
	Failed    int
}

// ServiceParams groups the completion collaborators.
type ServiceParams struct {
	Repo        Repository
	Shipments   shipmentReader
	Earnings    earningRecorder
	Settlements settlementCreator
	Distance    *DistanceResolver
	Tx          txRunner
	MaxAttempts int
	Metrics     *metrics.DeliveryMetrics
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	shipments   shipmentReader
	earnings    earningRecorder
	settlements settlementCreator
	distance    *DistanceResolver
	tx          txRunner
	maxAttempts int
	metrics     *metrics.DeliveryMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires the completion orchestrator.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("completion repository required")
	case p.Shipments == nil:
		return nil, fmt.Errorf("shipment reader required")
	case p.Earnings == nil:
		return nil, fmt.Errorf("earnings recorder required")
	case p.Settlements == nil:
		return nil, fmt.Errorf("settlement creator required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	distance := p.Distance
	if distance == nil {
		distance = NewDistanceResolver(nil, p.Logger)
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &service{
		repo:        p.Repo,
		shipments:   p.Shipments,
		earnings:    p.Earnings,
		settlements: p.Settlements,
		distance:    distance,
		tx:          p.Tx,
		maxAttempts: maxAttempts,
		metrics:     p.Metrics,
		logg:        p.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) Begin(ctx context.Context, tx *gorm.DB, shipment *models.Shipment) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "completion must start inside the delivery transaction")
	}
	if shipment.AgentID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "delivered shipment has no agent")
	}
	if err := s.repo.WithTx(tx).Create(ctx, &models.DeliveryCompletion{
		ShipmentID:       shipment.ID,
		OrderID:          shipment.OrderID,
		AgentID:          *shipment.AgentID,
		EarningStatus:    enums.CompletionStepPending,
		SettlementStatus: enums.CompletionStepPending,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create completion")
	}
	return nil
}

// Process runs every step still owed. Step failures are recorded on the row
// and returned combined; the row is returned either way.
func (s *service) Process(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error) {
	row, err := s.load(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if row.Done() {
		return row, nil
	}
	ctx = s.logg.WithShipment(ctx, row.ShipmentID.String(), row.OrderID.String())

	var errs error
	if row.EarningStatus.NeedsWork() {
		errs = multierr.Append(errs, s.earningStep(ctx, row))
	}
	if row.SettlementStatus.NeedsWork() {
		errs = multierr.Append(errs, s.runStep(ctx, row, StepSettlement, func(tx *gorm.DB) error {
			_, err := s.settlements.Create(ctx, tx, row.OrderID)
			return err
		}))
	}

	if errs != nil {
		if err := s.repo.RecordFailure(ctx, row.ShipmentID, errs.Error()); err != nil {
			s.logg.Error(ctx, "failed to record completion failure", err)
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", errs.Error()), "delivery completion incomplete")
	} else if err := s.repo.MarkCompleted(ctx, row.ShipmentID, s.now().UTC()); err != nil {
		errs = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark completion done")
	} else {
		s.logg.Info(ctx, "delivery completion done")
	}

	fresh, err := s.repo.FindByShipmentID(ctx, row.ShipmentID)
	if err != nil {
		return row, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload completion"))
	}
	return fresh, errs
}

// Retry is the admin override: it ignores the attempt cap and reports step
// failures through the returned row rather than as an error.
func (s *service) Retry(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error) {
	row, err := s.Process(ctx, shipmentID)
	if row == nil {
		return nil, err
	}
	return row, nil
}

func (s *service) Get(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error) {
	return s.load(ctx, shipmentID)
}

func (s *service) ListOpen(ctx context.Context, limit int) ([]models.DeliveryCompletion, error) {
	rows, err := s.repo.ListOpen(ctx, 0, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list completions")
	}
	return rows, nil
}

func (s *service) ReconcileBatch(ctx context.Context, limit int) (BatchResult, error) {
	rows, err := s.repo.ListOpen(ctx, s.maxAttempts, limit)
	if err != nil {
		return BatchResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list open completions")
	}
	result := BatchResult{Scanned: len(rows)}
	var errs error
	for _, row := range rows {
		if ctx.Err() != nil {
			return result, multierr.Append(errs, ctx.Err())
		}
		if _, err := s.Process(ctx, row.ShipmentID); err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("shipment %s: %w", row.ShipmentID, err))
			continue
		}
		result.Completed++
	}
	return result, errs
}

func (s *service) earningStep(ctx context.Context, row *models.DeliveryCompletion) error {
	shipment, err := s.shipments.FindByID(ctx, row.ShipmentID)
	if err != nil {
		return s.finishStep(ctx, row, StepEarning, fmt.Errorf("load shipment: %w", err))
	}
	distance, err := s.distance.Resolve(ctx, shipment)
	if err != nil {
		return s.finishStep(ctx, row, StepEarning, err)
	}
	return s.runStep(ctx, row, StepEarning, func(tx *gorm.DB) error {
		_, err := s.earnings.Record(ctx, tx, earnings.RecordInput{
			ShipmentID: row.ShipmentID,
			AgentID:    row.AgentID,
			DistanceKM: distance,
		})
		return err
	})
}

// runStep posts one step and flips it to DONE in the same transaction.
func (s *service) runStep(ctx context.Context, row *models.DeliveryCompletion, step Step, post func(tx *gorm.DB) error) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := post(tx); err != nil {
			return err
		}
		return s.repo.WithTx(tx).SetStep(ctx, row.ShipmentID, step, enums.CompletionStepDone)
	})
	return s.finishStep(ctx, row, step, err)
}

func (s *service) finishStep(ctx context.Context, row *models.DeliveryCompletion, step Step, err error) error {
	if err != nil && pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		// posting already exists
		err = s.repo.SetStep(ctx, row.ShipmentID, step, enums.CompletionStepDone)
	}
	if err != nil {
		s.metrics.CompletionStep(string(step), false)
		if setErr := s.repo.SetStep(ctx, row.ShipmentID, step, enums.CompletionStepFailed); setErr != nil {
			s.logg.Error(ctx, "failed to mark completion step", setErr)
		}
		return fmt.Errorf("%s: %w", step, err)
	}
	s.metrics.CompletionStep(string(step), true)
	return nil
}

func (s *service) load(ctx context.Context, shipmentID uuid.UUID) (*models.DeliveryCompletion, error) {
	row, err := s.repo.FindByShipmentID(ctx, shipmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "completion not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load completion")
	}
	return row, nil
}
