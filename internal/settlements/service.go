package settlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/wallet"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

const uniqueOrderConstraint = "seller_settlements_order_id_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns seller settlements and every payout that leaves the wallet.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.SellerSettlement, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error)
	List(ctx context.Context, status *enums.SettlementStatus, params pagination.Params) (pagination.Page[models.SellerSettlement], error)
	Hold(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error)
	Release(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error)
	ApprovePayout(ctx context.Context, id uuid.UUID, ref string, actor *outbox.ActorRef) (*models.SellerSettlement, error)
	PayAgent(ctx context.Context, earningID uuid.UUID, ref string, actor *outbox.ActorRef) (*models.AgentEarning, error)
}

// ServiceParams groups the settlement service collaborators.
type ServiceParams struct {
	Repo       Repository
	Orders     orders.Repository
	Wallet     wallet.Service
	Earnings   earnings.Service
	Tx         txRunner
	Outbox     outbox.Emitter
	Calculator Calculator
	Metrics    *metrics.DeliveryMetrics
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	orders   orders.Repository
	wallet   wallet.Service
	earnings earnings.Service
	tx       txRunner
	outbox   outbox.Emitter
	calc     Calculator
	metrics  *metrics.DeliveryMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the settlement service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("settlement repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Wallet == nil:
		return nil, fmt.Errorf("wallet service required")
	case p.Earnings == nil:
		return nil, fmt.Errorf("earnings service required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     p.Repo,
		orders:   p.Orders,
		wallet:   p.Wallet,
		earnings: p.Earnings,
		tx:       p.Tx,
		outbox:   p.Outbox,
		calc:     p.Calculator,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      time.Now,
	}, nil
}

// Create settles a delivered order. A second call for the same order returns
// the existing row and posts nothing.
func (s *service) Create(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.SellerSettlement, error) {
	var (
		settlement *models.SellerSettlement
		created    bool
	)
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByOrderID(ctx, orderID)
		if err == nil {
			settlement = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settlement")
		}

		order, err := s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID == nil || *order.SellerID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has no seller").
				WithDetails(map[string]any{"order_id": orderID})
		}
		split, err := s.calc.Split(order.TotalAmount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order amount")
		}

		row := &models.SellerSettlement{
			OrderID:     order.ID,
			SellerID:    *order.SellerID,
			OrderAmount: split.OrderAmount,
			PlatformFee: split.PlatformFee,
			Tax:         split.Tax,
			NetAmount:   split.NetAmount,
			Status:      enums.SettlementStatusReady,
		}
		if err := repo.Create(ctx, row); err != nil {
			if db.IsUniqueViolation(err, uniqueOrderConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "settlement already exists for order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create settlement")
		}

		if split.OrderAmount.IsPositive() {
			if _, err := s.wallet.Credit(ctx, tx, wallet.PostingInput{
				Amount:      split.OrderAmount,
				Source:      enums.WalletSourceOrderPayment,
				ReferenceID: order.ID.String(),
				Description: "order payment collected",
			}); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementCreated,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   row.ID,
			Data:          settlementEvent(row),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit settlement created")
		}
		settlement = row
		created = true
		return nil
	})
	if err != nil {
		// A concurrent creator won the unique index; hand back its row.
		if tx == nil && db.IsUniqueViolation(err, uniqueOrderConstraint) {
			return s.findByOrder(ctx, orderID)
		}
		return nil, err
	}

	if created {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"settlement_id": settlement.ID.String(),
			"order_id":      settlement.OrderID.String(),
			"net_amount":    settlement.NetAmount.StringFixed(2),
		})
		s.logg.Info(ctx, "seller settlement created")
	}
	return settlement, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "settlement not found", "load settlement")
	}
	return row, nil
}

func (s *service) List(ctx context.Context, status *enums.SettlementStatus, params pagination.Params) (pagination.Page[models.SellerSettlement], error) {
	if status != nil && !status.IsValid() {
		return pagination.Page[models.SellerSettlement]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.SellerSettlement]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, status, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return pagination.Page[models.SellerSettlement]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list settlements")
	}
	return pagination.BuildPage(rows, params.Limit), nil
}

func (s *service) Hold(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error) {
	return s.moveStatus(ctx, id, enums.SettlementStatusReady, enums.SettlementStatusHold)
}

func (s *service) Release(ctx context.Context, id uuid.UUID) (*models.SellerSettlement, error) {
	return s.moveStatus(ctx, id, enums.SettlementStatusHold, enums.SettlementStatusReady)
}

func (s *service) moveStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus) (*models.SellerSettlement, error) {
	var settlement *models.SellerSettlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "settlement not found", "load settlement")
		}
		if row.Status != from {
			return stateConflict(row.Status, to)
		}
		if err := repo.TransitionStatus(ctx, row.ID, from, to); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return stateConflict(row.Status, to)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update settlement status")
		}
		row.Status = to
		settlement = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"settlement_id": settlement.ID.String(),
		"from":          string(from),
		"to":            string(to),
	})
	s.logg.Info(ctx, "settlement status changed")
	return settlement, nil
}

// ApprovePayout pays a READY settlement out of the wallet.
func (s *service) ApprovePayout(ctx context.Context, id uuid.UUID, ref string, actor *outbox.ActorRef) (*models.SellerSettlement, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}

	var (
		settlement *models.SellerSettlement
		posted     *models.WalletTransaction
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "settlement not found", "load settlement")
		}
		if row.Status != enums.SettlementStatusReady {
			return stateConflict(row.Status, enums.SettlementStatusPaid)
		}

		if row.NetAmount.IsPositive() {
			txn, err := s.wallet.Debit(ctx, tx, wallet.PostingInput{
				Amount:      row.NetAmount,
				Source:      enums.WalletSourceSellerPayout,
				ReferenceID: row.ID.String(),
				Description: "seller payout " + ref,
			})
			if err != nil {
				return err
			}
			posted = txn
		}

		paidAt := s.now().UTC()
		if err := repo.MarkPaid(ctx, row.ID, ref, paidAt); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return stateConflict(row.Status, enums.SettlementStatusPaid)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark settlement paid")
		}
		row.Status = enums.SettlementStatusPaid
		row.TransactionRef = &ref
		row.PaidAt = &paidAt

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementPaid,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   row.ID,
			Actor:         actor,
			Data:          settlementEvent(row),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit settlement paid")
		}
		settlement = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Payout("seller")
	if posted != nil {
		s.metrics.WalletBalance(posted.BalanceAfter)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"settlement_id":   settlement.ID.String(),
		"order_id":        settlement.OrderID.String(),
		"net_amount":      settlement.NetAmount.StringFixed(2),
		"transaction_ref": ref,
	})
	s.logg.Info(ctx, "seller payout approved")
	return settlement, nil
}

// PayAgent marks an earning paid and debits the wallet in one transaction.
func (s *service) PayAgent(ctx context.Context, earningID uuid.UUID, ref string, actor *outbox.ActorRef) (*models.AgentEarning, error) {
	var (
		earning *models.AgentEarning
		posted  *models.WalletTransaction
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.earnings.MarkPaid(ctx, tx, earningID, ref)
		if err != nil {
			return err
		}
		if row.Amount.IsPositive() {
			txn, err := s.wallet.Debit(ctx, tx, wallet.PostingInput{
				Amount:      row.Amount,
				Source:      enums.WalletSourceAgentPayout,
				ReferenceID: row.ID.String(),
				Description: "agent payout " + strings.TrimSpace(ref),
			})
			if err != nil {
				return err
			}
			posted = txn
		}
		txRef := ""
		if row.TransactionRef != nil {
			txRef = *row.TransactionRef
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEarningPaid,
			AggregateType: enums.AggregateEarning,
			AggregateID:   row.ID,
			Actor:         actor,
			Data: payloads.EarningEvent{
				EarningID:      row.ID,
				AgentID:        row.AgentID,
				ShipmentID:     row.ShipmentID,
				Amount:         row.Amount,
				Status:         row.Status,
				TransactionRef: txRef,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit earning paid")
		}
		earning = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Payout("agent")
	if posted != nil {
		s.metrics.WalletBalance(posted.BalanceAfter)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"earning_id": earning.ID.String(),
		"agent_id":   earning.AgentID.String(),
		"amount":     earning.Amount.StringFixed(2),
	})
	s.logg.Info(ctx, "agent payout approved")
	return earning, nil
}

func (s *service) loadOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

func (s *service) findByOrder(ctx context.Context, orderID uuid.UUID) (*models.SellerSettlement, error) {
	row, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "settlement not found", "load settlement")
	}
	return row, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func settlementEvent(row *models.SellerSettlement) payloads.SettlementEvent {
	ref := ""
	if row.TransactionRef != nil {
		ref = *row.TransactionRef
	}
	return payloads.SettlementEvent{
		SettlementID:   row.ID,
		OrderID:        row.OrderID,
		SellerID:       row.SellerID,
		NetAmount:      row.NetAmount,
		Status:         row.Status,
		TransactionRef: ref,
	}
}

func stateConflict(current, target enums.SettlementStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement cannot move to "+string(target)).
		WithDetails(map[string]any{"status": current, "target": target})
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, internal)
}
