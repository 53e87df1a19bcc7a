package deliveryotp

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/db/testdb"
	"github.com/angelmondragon/lastmile-backend/pkg/email"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

type stubLimiter struct {
	counts map[string]int64
	err    error
}

func (l *stubLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if l.err != nil {
		return false, 0, l.err
	}
	l.counts[scope]++
	return l.counts[scope] <= limit, l.counts[scope], nil
}

type captureSender struct {
	sent []email.Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

type fixture struct {
	svc     *service
	client  *db.Client
	limiter *stubLimiter
	sender  *captureSender
	clock   time.Time
	agentID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := testdb.New(t, &models.Order{}, &models.Shipment{}, &models.DeliveryOtp{})
	logg := logger.New(logger.Options{ServiceName: "deliveryotp-test", Output: io.Discard})
	f := &fixture{
		client:  client,
		limiter: &stubLimiter{counts: map[string]int64{}},
		sender:  &captureSender{},
		clock:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		agentID: uuid.New(),
	}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(client.DB()),
		Shipments: shipments.NewRepository(client.DB()),
		Orders:    orders.NewRepository(client.DB()),
		Tx:        client,
		Limiter:   f.limiter,
		Sender:    f.sender,
		Config: config.DeliveryConfig{
			OTPLength:        6,
			OTPTTL:           10 * time.Minute,
			OTPMaxAttempts:   3,
			OTPSendLimit:     3,
			OTPSendWindow:    10 * time.Minute,
			OTPArgonMemoryKB: 8,
			OTPArgonTime:     1,
		},
		Logger: logg,
	})
	require.NoError(t, err)
	f.svc = svc.(*service)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) shipment(t *testing.T, barcode string, verified bool) *models.Shipment {
	t.Helper()
	order := &models.Order{BuyerEmail: "buyer@example.com", TotalAmount: decimal.NewFromInt(250)}
	require.NoError(t, f.client.DB().Create(order).Error)
	agentID := f.agentID
	shipment := &models.Shipment{
		OrderID:         order.ID,
		AgentID:         &agentID,
		Status:          enums.ShipmentStatusOutForDelivery,
		TrackingID:      "LM" + uuid.NewString()[:8],
		BarcodeVerified: verified,
		Version:         1,
	}
	if barcode != "" {
		shipment.Barcode = &barcode
	}
	require.NoError(t, f.client.DB().Create(shipment).Error)
	return shipment
}

func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sender.sent)
	text := f.sender.sent[len(f.sender.sent)-1].Text
	const prefix = "Share code "
	require.Contains(t, text, prefix)
	return text[len(prefix) : len(prefix)+6]
}

func code(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return ""
}

func TestSendAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "", false)

	require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
	require.Len(t, f.sender.sent, 1)
	require.Equal(t, "buyer@example.com", f.sender.sent[0].To)
	otpCode := f.lastCode(t)

	err := f.svc.RequireVerified(ctx, nil, shipment.OrderID)
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))

	require.NoError(t, f.svc.Verify(ctx, shipment.ID, f.agentID, otpCode))
	require.NoError(t, f.svc.RequireVerified(ctx, nil, shipment.OrderID))

	err = f.svc.Verify(ctx, shipment.ID, f.agentID, otpCode)
	require.Equal(t, pkgerrors.CodeAlreadyVerified, code(err))

	var stored models.DeliveryOtp
	require.NoError(t, f.client.DB().Where("order_id = ?", shipment.OrderID).First(&stored).Error)
	require.NotEqual(t, otpCode, stored.CodeHash)
	require.NotNil(t, stored.VerifiedAt)
}

func TestSendGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Send(ctx, uuid.New(), f.agentID)
	require.Equal(t, pkgerrors.CodeNotFound, code(err))

	shipment := f.shipment(t, "", false)
	err = f.svc.Send(ctx, shipment.ID, uuid.New())
	require.Equal(t, pkgerrors.CodeForbidden, code(err))

	labelled := f.shipment(t, "PKG-9", false)
	err = f.svc.Send(ctx, labelled.ID, f.agentID)
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))

	scanned := f.shipment(t, "PKG-10", true)
	require.NoError(t, f.svc.Send(ctx, scanned.ID, f.agentID))
}

func TestSendRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "", false)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
		f.advance(time.Second)
	}
	err := f.svc.Send(ctx, shipment.ID, f.agentID)
	require.Equal(t, pkgerrors.CodeRateLimit, code(err))
	require.Len(t, f.sender.sent, 3)

	f.limiter.err = errors.New("redis down")
	err = f.svc.Send(ctx, shipment.ID, f.agentID)
	require.Equal(t, pkgerrors.CodeDependency, code(err))
}

func TestResendSupersedesOlderCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "", false)

	require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
	first := f.lastCode(t)
	f.advance(time.Minute)
	require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
	second := f.lastCode(t)

	var rows []models.DeliveryOtp
	require.NoError(t, f.client.DB().Where("order_id = ?", shipment.OrderID).Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].SupersededAt)
	require.Nil(t, rows[1].SupersededAt)

	if first != second {
		err := f.svc.Verify(ctx, shipment.ID, f.agentID, first)
		require.Equal(t, pkgerrors.CodeOTPInvalid, code(err))
	}
	require.NoError(t, f.svc.Verify(ctx, shipment.ID, f.agentID, second))
}

func TestResendRevokesVerifiedCodeInsideTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "", false)

	require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
	require.NoError(t, f.svc.Verify(ctx, shipment.ID, f.agentID, f.lastCode(t)))
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.RequireVerified(ctx, tx, shipment.OrderID)
	}))

	f.advance(time.Minute)
	require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
	err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.svc.RequireVerified(ctx, tx, shipment.OrderID)
	})
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))
}

func TestSendRejectsDeliveredShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "", false)
	require.NoError(t, f.client.DB().Model(&models.Shipment{}).Where("id = ?", shipment.ID).
		Update("status", enums.ShipmentStatusDelivered).Error)

	err := f.svc.Send(ctx, shipment.ID, f.agentID)
	require.Equal(t, pkgerrors.CodeStateConflict, code(err))
	require.Empty(t, f.sender.sent)
}

func TestVerifyFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "", false)

	err := f.svc.Verify(ctx, shipment.ID, f.agentID, "12ab56")
	require.Equal(t, pkgerrors.CodeValidation, code(err))
	err = f.svc.Verify(ctx, shipment.ID, f.agentID, "12345")
	require.Equal(t, pkgerrors.CodeValidation, code(err))

	err = f.svc.Verify(ctx, shipment.ID, f.agentID, "123456")
	require.Equal(t, pkgerrors.CodeNotFound, code(err))

	require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
	good := f.lastCode(t)
	wrong := "000000"
	if good == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		err = f.svc.Verify(ctx, shipment.ID, f.agentID, wrong)
		require.Equal(t, pkgerrors.CodeOTPInvalid, code(err))
	}
	var stored models.DeliveryOtp
	require.NoError(t, f.client.DB().Where("order_id = ?", shipment.OrderID).First(&stored).Error)
	require.Equal(t, 3, stored.Attempts)

	err = f.svc.Verify(ctx, shipment.ID, f.agentID, good)
	require.Equal(t, pkgerrors.CodeOTPInvalid, code(err))

	f.advance(time.Second)
	require.NoError(t, f.svc.Send(ctx, shipment.ID, f.agentID))
	fresh := f.lastCode(t)
	f.advance(11 * time.Minute)
	err = f.svc.Verify(ctx, shipment.ID, f.agentID, fresh)
	require.Equal(t, pkgerrors.CodeExpired, code(err))
}

func TestSendDispatchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shipment := f.shipment(t, "", false)
	f.sender.err = errors.New("ses throttled")

	err := f.svc.Send(ctx, shipment.ID, f.agentID)
	require.Equal(t, pkgerrors.CodeDependency, code(err))
}
