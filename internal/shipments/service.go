package shipments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/pkg/auth"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

const (
	uniqueOrderConstraint    = "shipments_order_id_key"
	uniqueTrackingConstraint = "shipments_tracking_id_key"
	trackingAttempts         = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userReader interface {
	RequireRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.User, error)
}

// Service drives the shipment lifecycle up to the point where proof of
// delivery takes over.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Shipment, error)
	Get(ctx context.Context, actor auth.Actor, shipmentID uuid.UUID) (*models.Shipment, error)
	ListForAgent(ctx context.Context, agentID uuid.UUID, params pagination.Params) (pagination.Page[models.Shipment], error)
	Assign(ctx context.Context, actor auth.Actor, shipmentID, agentID uuid.UUID) error
	Dispatch(ctx context.Context, actor auth.Actor, shipmentID uuid.UUID) error
	VerifyBarcode(ctx context.Context, shipmentID, agentID uuid.UUID, scanned string) error
	MarkFailed(ctx context.Context, shipmentID, agentID uuid.UUID, reason string) error
	UpdateLocation(ctx context.Context, shipmentID, agentID uuid.UUID, point types.GeographyPoint) error
}

// CreateInput describes a new shipment for an order.
type CreateInput struct {
	OrderID          uuid.UUID
	Barcode          *string
	SellerLocation   *types.GeographyPoint
	ShippingLocation *types.GeographyPoint
	DistanceKM       *decimal.Decimal
	EstimatedAt      *time.Time
}

// ServiceParams groups the shipment service collaborators.
type ServiceParams struct {
	Repo         Repository
	Orders       orders.Repository
	Users        userReader
	Tx           txRunner
	Transitioner *Transitioner
	Logger       *logger.Logger
	DefaultETA   time.Duration
}

type service struct {
	repo       Repository
	orders     orders.Repository
	users      userReader
	tx         txRunner
	transition *Transitioner
	logg       *logger.Logger
	defaultETA time.Duration
	now        func() time.Time
}

// NewService wires the shipment service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("shipment repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Users == nil:
		return nil, fmt.Errorf("user reader required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Transitioner == nil:
		return nil, fmt.Errorf("transitioner required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	eta := p.DefaultETA
	if eta <= 0 {
		eta = 24 * time.Hour
	}
	return &service{
		repo:       p.Repo,
		orders:     p.Orders,
		users:      p.Users,
		tx:         p.Tx,
		transition: p.Transitioner,
		logg:       p.Logger,
		defaultETA: eta,
		now:        time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Shipment, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.DistanceKM != nil && input.DistanceKM.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distance must not be negative")
	}
	for name, point := range map[string]*types.GeographyPoint{"seller_location": input.SellerLocation, "shipping_location": input.ShippingLocation} {
		if point == nil {
			continue
		}
		if err := point.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates").
				WithDetails(map[string]any{"field": name})
		}
	}
	var barcode *string
	if input.Barcode != nil {
		if trimmed := strings.TrimSpace(*input.Barcode); trimmed != "" {
			barcode = &trimmed
		}
	}

	var shipment *models.Shipment
	for attempt := 0; attempt < trackingAttempts; attempt++ {
		trackingID, err := NewTrackingID()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate tracking id")
		}
		shipment = &models.Shipment{
			OrderID:             input.OrderID,
			Status:              enums.ShipmentStatusCreated,
			Barcode:             barcode,
			TrackingID:          trackingID,
			SellerLocation:      input.SellerLocation,
			ShippingLocation:    input.ShippingLocation,
			DistanceKM:          input.DistanceKM,
			EstimatedDeliveryAt: input.EstimatedAt,
			Version:             1,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.orders.WithTx(tx).FindByID(ctx, input.OrderID)
			if err != nil {
				return notFoundOr(err, "order not found", "load order")
			}
			if err := authorizeOrder(actor, order); err != nil {
				return err
			}
			repo := s.repo.WithTx(tx)
			if err := repo.Create(ctx, shipment); err != nil {
				return err
			}
			createdBy := actor.UserID
			return repo.AppendEvent(ctx, &models.ShipmentEvent{
				ShipmentID: shipment.ID,
				ToStatus:   enums.ShipmentStatusCreated,
				ActorID:    &createdBy,
			})
		})
		if err == nil {
			break
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		if isTrackingCollision(err) && attempt < trackingAttempts-1 {
			continue
		}
		if db.IsUniqueViolation(err, uniqueOrderConstraint) && !isTrackingCollision(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already has a shipment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create shipment")
	}

	ctx = s.logg.WithShipment(ctx, shipment.ID.String(), shipment.OrderID.String())
	s.logg.Info(s.logg.WithField(ctx, "tracking_id", shipment.TrackingID), "shipment created")
	return shipment, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, shipmentID uuid.UUID) (*models.Shipment, error) {
	shipment, err := s.repo.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, notFoundOr(err, "shipment not found", "load shipment")
	}
	switch {
	case actor.IsAdmin():
		return shipment, nil
	case actor.IsAgent():
		if !shipment.IsAssignedTo(actor.UserID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "shipment is not assigned to agent")
		}
		return shipment, nil
	case actor.IsSeller():
		order, err := s.orders.FindByID(ctx, shipment.OrderID)
		if err != nil {
			return nil, notFoundOr(err, "order not found", "load order")
		}
		if err := authorizeOrder(actor, order); err != nil {
			return nil, err
		}
		return shipment, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot view shipments")
}

func (s *service) ListForAgent(ctx context.Context, agentID uuid.UUID, params pagination.Params) (pagination.Page[models.Shipment], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Shipment]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByAgent(ctx, agentID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return pagination.Page[models.Shipment]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list shipments")
	}
	return pagination.BuildPage(rows, params.Limit), nil
}

func (s *service) Assign(ctx context.Context, actor auth.Actor, shipmentID, agentID uuid.UUID) error {
	if agentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "agent id is required")
	}
	if _, err := s.repo.FindByID(ctx, shipmentID); err != nil {
		return notFoundOr(err, "shipment not found", "load shipment")
	}
	if _, err := s.users.RequireRole(ctx, agentID, enums.UserRoleAgent); err != nil {
		return err
	}

	return s.mutate(ctx, shipmentID, func(tx *gorm.DB, repo Repository, shipment *models.Shipment) error {
		if err := s.authorizeManager(ctx, tx, actor, shipment); err != nil {
			return err
		}
		return s.transition.Apply(ctx, tx, repo, shipment, Change{
			To:      enums.ShipmentStatusAssigned,
			Actor:   outbox.NewActorRef(actor.UserID, string(actor.Role)),
			AgentID: &agentID,
		})
	}, "shipment assigned")
}

func (s *service) Dispatch(ctx context.Context, actor auth.Actor, shipmentID uuid.UUID) error {
	return s.mutate(ctx, shipmentID, func(tx *gorm.DB, repo Repository, shipment *models.Shipment) error {
		if err := s.authorizeManager(ctx, tx, actor, shipment); err != nil {
			return err
		}
		if shipment.AgentID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment has no agent")
		}
		fields := map[string]any{}
		if shipment.EstimatedDeliveryAt == nil {
			eta := s.now().UTC().Add(s.defaultETA)
			fields["estimated_delivery_at"] = eta
			shipment.EstimatedDeliveryAt = &eta
		}
		return s.transition.Apply(ctx, tx, repo, shipment, Change{
			To:     enums.ShipmentStatusDispatched,
			Actor:  outbox.NewActorRef(actor.UserID, string(actor.Role)),
			Fields: fields,
		})
	}, "shipment dispatched")
}

func (s *service) VerifyBarcode(ctx context.Context, shipmentID, agentID uuid.UUID, scanned string) error {
	if strings.TrimSpace(scanned) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "barcode is required")
	}
	return s.mutate(ctx, shipmentID, func(tx *gorm.DB, repo Repository, shipment *models.Shipment) error {
		if err := RequireAssignedAgent(shipment, agentID); err != nil {
			return err
		}
		if !MatchesLabel(scanned, shipment.Barcode, shipment.TrackingID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "scanned code does not match shipment")
		}
		fields := map[string]any{"barcode_verified": true}
		if shipment.Status == enums.ShipmentStatusOutForDelivery {
			if err := repo.UpdateVersioned(ctx, shipment.ID, shipment.Version, fields); err != nil {
				if errors.Is(err, ErrStaleVersion) {
					return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "shipment was modified concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark barcode verified")
			}
			shipment.BarcodeVerified = true
			return nil
		}
		if err := s.transition.Apply(ctx, tx, repo, shipment, Change{
			To:     enums.ShipmentStatusOutForDelivery,
			Actor:  outbox.NewActorRef(agentID, string(enums.UserRoleAgent)),
			Note:   "barcode verified",
			Fields: fields,
		}); err != nil {
			return err
		}
		shipment.BarcodeVerified = true
		return nil
	}, "shipment barcode verified")
}

func (s *service) MarkFailed(ctx context.Context, shipmentID, agentID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	return s.mutate(ctx, shipmentID, func(tx *gorm.DB, repo Repository, shipment *models.Shipment) error {
		if err := RequireAssignedAgent(shipment, agentID); err != nil {
			return err
		}
		if err := CheckAllowed(shipment, enums.ShipmentStatusFailed); err != nil {
			return err
		}
		if err := repo.AppendFailure(ctx, &models.ShipmentFailure{
			ShipmentID: shipment.ID,
			AgentID:    agentID,
			Reason:     reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record delivery failure")
		}
		return s.transition.Apply(ctx, tx, repo, shipment, Change{
			To:    enums.ShipmentStatusFailed,
			Actor: outbox.NewActorRef(agentID, string(enums.UserRoleAgent)),
			Note:  reason,
		})
	}, "shipment delivery failed")
}

func (s *service) UpdateLocation(ctx context.Context, shipmentID, agentID uuid.UUID, point types.GeographyPoint) error {
	if err := point.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		shipment, err := repo.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return notFoundOr(err, "shipment not found", "load shipment")
		}
		if err := RequireAssignedAgent(shipment, agentID); err != nil {
			return err
		}
		if err := repo.UpdateLocation(ctx, shipment.ID, point); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update location")
		}
		return nil
	})
}

// mutate loads the shipment under a row lock and runs fn in one transaction.
func (s *service) mutate(ctx context.Context, shipmentID uuid.UUID, fn func(tx *gorm.DB, repo Repository, shipment *models.Shipment) error, logMsg string) error {
	var shipment *models.Shipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return notFoundOr(err, "shipment not found", "load shipment")
		}
		shipment = row
		return fn(tx, repo, row)
	})
	if err != nil {
		return err
	}
	ctx = s.logg.WithShipment(ctx, shipment.ID.String(), shipment.OrderID.String())
	s.logg.Info(s.logg.WithField(ctx, "status", string(shipment.Status)), logMsg)
	return nil
}

func (s *service) authorizeManager(ctx context.Context, tx *gorm.DB, actor auth.Actor, shipment *models.Shipment) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsSeller() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot manage shipments")
	}
	order, err := s.orders.WithTx(tx).FindByID(ctx, shipment.OrderID)
	if err != nil {
		return notFoundOr(err, "order not found", "load order")
	}
	return authorizeOrder(actor, order)
}

// RequireAssignedAgent fails unless agentID holds a shipment that is still
// in the agent's hands.
func RequireAssignedAgent(shipment *models.Shipment, agentID uuid.UUID) error {
	if !shipment.IsAssignedTo(agentID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "shipment is not assigned to agent")
	}
	if shipment.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment is closed").
			WithDetails(map[string]any{"status": shipment.Status})
	}
	return nil
}

func authorizeOrder(actor auth.Actor, order *models.Order) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsSeller() && order.SellerID != nil && *order.SellerID == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another seller")
}

func isTrackingCollision(err error) bool {
	return db.IsUniqueViolation(err, uniqueTrackingConstraint) && strings.Contains(err.Error(), "tracking_id")
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, internal)
}
