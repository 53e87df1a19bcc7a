package earnings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

const uniqueShipmentConstraint = "agent_earnings_shipment_id_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type shipmentReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
}

// Service records and pays agent earnings.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AgentEarning, error)
	RecordForShipment(ctx context.Context, shipmentID, agentID uuid.UUID, distanceKM decimal.Decimal) (*models.AgentEarning, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, earningID uuid.UUID, ref string) (*models.AgentEarning, error)
	Get(ctx context.Context, earningID uuid.UUID) (*models.AgentEarning, error)
	// List pages the agent's earnings, newest first; status narrows it when set.
	List(ctx context.Context, agentID uuid.UUID, status *enums.EarningStatus, params pagination.Params) (pagination.Page[models.AgentEarning], error)
	Summary(ctx context.Context, agentID uuid.UUID) (*Summary, error)
}

// RecordInput captures what an earning is computed from.
type RecordInput struct {
	ShipmentID uuid.UUID
	AgentID    uuid.UUID
	DistanceKM decimal.Decimal
}

// Summary is the agent dashboard view.
type Summary struct {
	TotalOrders     int64           `json:"total_orders"`
	CompletedOrders int64           `json:"completed_orders"`
	EarningsToday   decimal.Decimal `json:"earnings_today"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
}

type service struct {
	repo      Repository
	shipments shipmentReader
	tx        txRunner
	outbox    outbox.Emitter
	calc      Calculator
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the earnings service.
func NewService(repo Repository, shipments shipmentReader, tx txRunner, emitter outbox.Emitter, calc Calculator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("earnings repository required")
	}
	if shipments == nil {
		return nil, fmt.Errorf("shipment reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		shipments: shipments,
		tx:        tx,
		outbox:    emitter,
		calc:      calc,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AgentEarning, error) {
	if input.ShipmentID == uuid.Nil || input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment and agent are required")
	}
	amount, err := s.calc.Amount(input.DistanceKM)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid distance").
			WithDetails(map[string]any{"distance_km": input.DistanceKM.String()})
	}

	earning := &models.AgentEarning{
		AgentID:    input.AgentID,
		ShipmentID: input.ShipmentID,
		DistanceKM: input.DistanceKM.Round(2),
		RatePerKM:  s.calc.RatePerKM,
		Amount:     amount,
		Status:     enums.EarningStatusPending,
	}
	err = s.inTx(ctx, tx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, earning); err != nil {
			if db.IsUniqueViolation(err, uniqueShipmentConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "earning already recorded for shipment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create earning")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEarningRecorded,
			AggregateType: enums.AggregateEarning,
			AggregateID:   earning.ID,
			Data: payloads.EarningEvent{
				EarningID:  earning.ID,
				AgentID:    earning.AgentID,
				ShipmentID: earning.ShipmentID,
				Amount:     earning.Amount,
				Status:     earning.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"earning_id":  earning.ID.String(),
		"shipment_id": earning.ShipmentID.String(),
		"agent_id":    earning.AgentID.String(),
		"amount":      earning.Amount.StringFixed(2),
	})
	s.logg.Info(ctx, "agent earning recorded")
	return earning, nil
}

// RecordForShipment is the agent-facing entry point. The caller must hold
// the delivered shipment.
func (s *service) RecordForShipment(ctx context.Context, shipmentID, agentID uuid.UUID, distanceKM decimal.Decimal) (*models.AgentEarning, error) {
	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipment")
	}
	if !shipment.IsAssignedTo(agentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "shipment is not assigned to agent")
	}
	if shipment.Status != enums.ShipmentStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipment is not delivered").
			WithDetails(map[string]any{"status": shipment.Status})
	}
	return s.Record(ctx, nil, RecordInput{ShipmentID: shipmentID, AgentID: agentID, DistanceKM: distanceKM})
}

func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, earningID uuid.UUID, ref string) (*models.AgentEarning, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}

	var earning *models.AgentEarning
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByIDForUpdate(ctx, earningID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "earning not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load earning")
		}
		if row.Status == enums.EarningStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "earning already paid").
				WithDetails(map[string]any{"earning_id": row.ID})
		}
		paidAt := s.now().UTC()
		if err := repo.MarkPaid(ctx, row.ID, ref, paidAt); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "earning already paid")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark earning paid")
		}
		row.Status = enums.EarningStatusPaid
		row.TransactionRef = &ref
		row.PaidAt = &paidAt
		earning = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return earning, nil
}

func (s *service) Get(ctx context.Context, earningID uuid.UUID) (*models.AgentEarning, error) {
	earning, err := s.repo.FindByID(ctx, earningID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "earning not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load earning")
	}
	return earning, nil
}

func (s *service) List(ctx context.Context, agentID uuid.UUID, status *enums.EarningStatus, params pagination.Params) (pagination.Page[models.AgentEarning], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.AgentEarning]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByAgent(ctx, agentID, status, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return pagination.Page[models.AgentEarning]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list earnings")
	}
	return pagination.BuildPage(rows, params.Limit), nil
}

func (s *service) Summary(ctx context.Context, agentID uuid.UUID) (*Summary, error) {
	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	totals, err := s.repo.Totals(ctx, agentID, startOfDay)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summarise earnings")
	}
	return &Summary{
		TotalOrders:     totals.TotalOrders,
		CompletedOrders: totals.CompletedOrders,
		EarningsToday:   totals.EarningsSince,
		TotalEarnings:   totals.TotalEarnings,
	}, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}
