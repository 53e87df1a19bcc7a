package shipments

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/users"
	"github.com/angelmondragon/lastmile-backend/pkg/auth"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/db/testdb"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

type fixture struct {
	svc    Service
	repo   Repository
	client *db.Client
	admin  auth.Actor
	seller auth.Actor
	agent  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := testdb.New(t,
		&models.User{},
		&models.Order{},
		&models.Shipment{},
		&models.ShipmentEvent{},
		&models.ShipmentFailure{},
		&models.OutboxEvent{},
	)
	logg := logger.New(logger.Options{ServiceName: "shipments-test", Output: io.Discard})
	repo := NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Repo:         repo,
		Orders:       orders.NewRepository(client.DB()),
		Users:        users.NewRepository(client.DB()),
		Tx:           client,
		Transitioner: NewTransitioner(outbox.NewService(outbox.NewRepository(client.DB()), logg), nil),
		Logger:       logg,
	})
	require.NoError(t, err)

	f := &fixture{
		svc:    svc,
		repo:   repo,
		client: client,
		admin:  auth.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin},
		seller: auth.Actor{UserID: uuid.New(), Role: enums.UserRoleSeller},
	}
	f.agent = f.user(t, enums.UserRoleAgent)
	return f
}

func (f *fixture) user(t *testing.T, role enums.UserRole) *models.User {
	t.Helper()
	u := &models.User{
		Email:     uuid.NewString() + "@example.com",
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
		IsActive:  true,
	}
	require.NoError(t, f.client.DB().Create(u).Error)
	return u
}

func (f *fixture) order(t *testing.T) *models.Order {
	t.Helper()
	sellerID := f.seller.UserID
	order := &models.Order{SellerID: &sellerID, BuyerEmail: "buyer@example.com", TotalAmount: decimal.NewFromInt(1000)}
	require.NoError(t, f.client.DB().Create(order).Error)
	return order
}

func (f *fixture) shipment(t *testing.T, barcode string) *models.Shipment {
	t.Helper()
	input := CreateInput{OrderID: f.order(t).ID}
	if barcode != "" {
		input.Barcode = &barcode
	}
	shipment, err := f.svc.Create(context.Background(), f.seller, input)
	require.NoError(t, err)
	return shipment
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Shipment {
	t.Helper()
	shipment, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return shipment
}

func (f *fixture) outboxTypes(t *testing.T, shipmentID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("aggregate_id = ?", shipmentID).Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func code(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return ""
}

func TestCreateShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t)
	barcode := "  PKG-1  "
	distance := decimal.RequireFromString("4.2")

	shipment, err := f.svc.Create(ctx, f.seller, CreateInput{
		OrderID:          order.ID,
		Barcode:          &barcode,
		SellerLocation:   &types.GeographyPoint{Lat: 12.97, Lng: 77.59},
		ShippingLocation: &types.GeographyPoint{Lat: 12.93, Lng: 77.62},
		DistanceKM:       &distance,
	})
	require.NoError(t, err)
	require.Equal(t, enums.ShipmentStatusCreated, shipment.Status)
	require.Equal(t, "PKG-1", *shipment.Barcode)
	require.True(t, strings.HasPrefix(shipment.TrackingID, "LM"))

	stored := f.reload(t, shipment.ID)
	require.NotNil(t, stored.ShippingLocation)
	require.InDelta(t, 12.93, stored.ShippingLocation.Lat, 1e-6)

	events, err := f.repo.ListEvents(ctx, shipment.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Nil(t, events[0].FromStatus)

	_, err = f.svc.Create(ctx, f.admin, CreateInput{OrderID: order.ID})
	require.Equal(t, pkgerrors.CodeConflict, code(err))

	other := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleSeller}
	_, err = f.svc.Create(ctx, other, CreateInput{OrderID: f.order(t).ID})
	require.Equal(t, pkgerrors.CodeForbidden, code(err))

	_, err = f.svc.Create(ctx, f.admin, CreateInput{OrderID: uuid.New()})
	require.Equal(t, pkgerrors.CodeNotFound, code(err))

	_, err = f.svc.Create(ctx, f.admin, CreateInput{OrderID: f.order(t).ID, ShippingLocation: &types.GeographyPoint{Lat: 120}})
	require.Equal(t, pkgerrors.CodeValidation, code(err))
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "")

	err := f.svc.Assign(ctx, f.admin, uuid.New(), f.agent.ID)
	require.Equal(t, pkgerrors.CodeNotFound, code(err))

	err = f.svc.Assign(ctx, f.admin, shipment.ID, uuid.New())
	require.Equal(t, pkgerrors.CodeNotFound, code(err))

	sellerUser := f.user(t, enums.UserRoleSeller)
	err = f.svc.Assign(ctx, f.admin, shipment.ID, sellerUser.ID)
	require.Equal(t, pkgerrors.CodeRoleMismatch, code(err))
	require.Equal(t, enums.ShipmentStatusCreated, f.reload(t, shipment.ID).Status)

	require.NoError(t, f.svc.Assign(ctx, f.seller, shipment.ID, f.agent.ID))
	stored := f.reload(t, shipment.ID)
	require.Equal(t, enums.ShipmentStatusAssigned, stored.Status)
	require.True(t, stored.IsAssignedTo(f.agent.ID))
	require.Equal(t, 2, stored.Version)

	second := f.user(t, enums.UserRoleAgent)
	require.NoError(t, f.svc.Assign(ctx, f.admin, shipment.ID, second.ID))
	require.True(t, f.reload(t, shipment.ID).IsAssignedTo(second.ID))

	stranger := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleSeller}
	err = f.svc.Assign(ctx, stranger, shipment.ID, f.agent.ID)
	require.Equal(t, pkgerrors.CodeForbidden, code(err))

	require.Equal(t, []enums.OutboxEventType{enums.EventShipmentAssigned, enums.EventShipmentAssigned}, f.outboxTypes(t, shipment.ID))
}

func TestDispatchRequiresAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "")

	err := f.svc.Dispatch(ctx, f.admin, shipment.ID)
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))

	require.NoError(t, f.svc.Assign(ctx, f.admin, shipment.ID, f.agent.ID))
	require.NoError(t, f.svc.Dispatch(ctx, f.admin, shipment.ID))

	stored := f.reload(t, shipment.ID)
	require.Equal(t, enums.ShipmentStatusDispatched, stored.Status)
	require.NotNil(t, stored.EstimatedDeliveryAt)

	err = f.svc.Dispatch(ctx, f.admin, shipment.ID)
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))

	err = f.svc.Assign(ctx, f.admin, shipment.ID, f.agent.ID)
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))
}

func TestVerifyBarcode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "PKG-00042")
	require.NoError(t, f.svc.Assign(ctx, f.admin, shipment.ID, f.agent.ID))

	err := f.svc.VerifyBarcode(ctx, shipment.ID, uuid.New(), "PKG-00042")
	require.Equal(t, pkgerrors.CodeForbidden, code(err))

	err = f.svc.VerifyBarcode(ctx, shipment.ID, f.agent.ID, "PKG-000")
	require.Equal(t, pkgerrors.CodeValidation, code(err))
	stored := f.reload(t, shipment.ID)
	require.False(t, stored.BarcodeVerified)
	require.Equal(t, enums.ShipmentStatusAssigned, stored.Status)

	err = f.svc.VerifyBarcode(ctx, shipment.ID, f.agent.ID, "")
	require.Equal(t, pkgerrors.CodeValidation, code(err))

	require.NoError(t, f.svc.VerifyBarcode(ctx, shipment.ID, f.agent.ID, strings.ToLower(stored.TrackingID)))
	stored = f.reload(t, shipment.ID)
	require.True(t, stored.BarcodeVerified)
	require.Equal(t, enums.ShipmentStatusOutForDelivery, stored.Status)

	require.NoError(t, f.svc.VerifyBarcode(ctx, shipment.ID, f.agent.ID, "pkg-00042"))
	require.Equal(t, enums.ShipmentStatusOutForDelivery, f.reload(t, shipment.ID).Status)
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "")
	require.NoError(t, f.svc.Assign(ctx, f.admin, shipment.ID, f.agent.ID))

	err := f.svc.MarkFailed(ctx, shipment.ID, f.agent.ID, "  ")
	require.Equal(t, pkgerrors.CodeValidation, code(err))

	err = f.svc.MarkFailed(ctx, shipment.ID, uuid.New(), "door locked")
	require.Equal(t, pkgerrors.CodeForbidden, code(err))

	require.NoError(t, f.svc.MarkFailed(ctx, shipment.ID, f.agent.ID, "door locked"))
	require.Equal(t, enums.ShipmentStatusFailed, f.reload(t, shipment.ID).Status)

	var failures []models.ShipmentFailure
	require.NoError(t, f.client.DB().Where("shipment_id = ?", shipment.ID).Find(&failures).Error)
	require.Len(t, failures, 1)
	require.Equal(t, "door locked", failures[0].Reason)

	err = f.svc.MarkFailed(ctx, shipment.ID, f.agent.ID, "again")
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))
}

func TestUpdateLocationAndAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "")
	require.NoError(t, f.svc.Assign(ctx, f.admin, shipment.ID, f.agent.ID))

	err := f.svc.UpdateLocation(ctx, shipment.ID, f.agent.ID, types.GeographyPoint{Lat: 91})
	require.Equal(t, pkgerrors.CodeValidation, code(err))

	require.NoError(t, f.svc.UpdateLocation(ctx, shipment.ID, f.agent.ID, types.GeographyPoint{Lat: 12.9, Lng: 77.6}))
	stored := f.reload(t, shipment.ID)
	require.NotNil(t, stored.CurrentLocation)
	require.InDelta(t, 77.6, stored.CurrentLocation.Lng, 1e-6)

	agentActor := auth.Actor{UserID: f.agent.ID, Role: enums.UserRoleAgent}
	_, err = f.svc.Get(ctx, agentActor, shipment.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, f.seller, shipment.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleAgent}, shipment.ID)
	require.Equal(t, pkgerrors.CodeForbidden, code(err))
	_, err = f.svc.Get(ctx, f.admin, uuid.New())
	require.Equal(t, pkgerrors.CodeNotFound, code(err))

	page, err := f.svc.ListForAgent(ctx, f.agent.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestUpdateVersionedRejectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	shipment := f.shipment(t, "")

	err := f.repo.UpdateVersioned(context.Background(), shipment.ID, shipment.Version+5, map[string]any{"barcode_verified": true})
	require.ErrorIs(t, err, ErrStaleVersion)
	require.NoError(t, f.repo.UpdateVersioned(context.Background(), shipment.ID, shipment.Version, map[string]any{"barcode_verified": true}))
	require.Equal(t, shipment.Version+1, f.reload(t, shipment.ID).Version)
}
