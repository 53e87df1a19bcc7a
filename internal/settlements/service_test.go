package settlements

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/wallet"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/db/testdb"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

type noShipments struct{}

func (noShipments) FindByID(context.Context, uuid.UUID) (*models.Shipment, error) {
	return nil, gorm.ErrRecordNotFound
}

type harness struct {
	svc      Service
	wallet   wallet.Service
	earnings earnings.Service
	client   *db.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := testdb.New(t,
		&models.Order{},
		&models.SellerSettlement{},
		&models.AgentEarning{},
		&models.PlatformWallet{},
		&models.WalletTransaction{},
		&models.OutboxEvent{},
	)
	logg := logger.New(logger.Options{ServiceName: "settlements-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logg)

	walletSvc, err := wallet.NewService(wallet.NewRepository(client.DB()), client, nil, logg)
	require.NoError(t, err)
	earningSvc, err := earnings.NewService(earnings.NewRepository(client.DB()), noShipments{}, client, emitter, earnings.NewCalculator(decimal.NewFromInt(20)), logg)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(client.DB()),
		Orders:     orders.NewRepository(client.DB()),
		Wallet:     walletSvc,
		Earnings:   earningSvc,
		Tx:         client,
		Outbox:     emitter,
		Calculator: NewCalculator(config.SettlementConfig{PlatformFeeRate: "0.05", TaxRate: "0.18"}),
		Logger:     logg,
	})
	require.NoError(t, err)
	return &harness{svc: svc, wallet: walletSvc, earnings: earningSvc, client: client}
}

func (h *harness) order(t *testing.T, amount string, withSeller bool) *models.Order {
	t.Helper()
	order := &models.Order{BuyerEmail: "buyer@example.com", TotalAmount: decimal.RequireFromString(amount)}
	if withSeller {
		sellerID := uuid.New()
		order.SellerID = &sellerID
	}
	require.NoError(t, h.client.DB().Create(order).Error)
	return order
}

func (h *harness) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	rec, err := h.wallet.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, rec.Consistent(), "balance %s ledger %s", rec.Balance, rec.LedgerSum)
	return rec.Balance
}

func (h *harness) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestCreateSettlementIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.order(t, "1000", true)

	first, err := h.svc.Create(ctx, nil, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SettlementStatusReady, first.Status)
	require.True(t, first.PlatformFee.Equal(decimal.NewFromInt(50)))
	require.True(t, first.Tax.Equal(decimal.NewFromInt(9)))
	require.True(t, first.NetAmount.Equal(decimal.NewFromInt(941)))
	require.Equal(t, *order.SellerID, first.SellerID)
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(1000)))

	second, err := h.svc.Create(ctx, nil, order.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(1000)))
	require.Equal(t, int64(1), h.countEvents(t, enums.EventSettlementCreated))
}

func TestCreateSettlementValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, nil, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	orphan := h.order(t, "250", false)
	_, err = h.svc.Create(ctx, nil, orphan.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.True(t, h.balance(t).IsZero())
}

func TestApprovePayoutDebitsNetOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	settlement, err := h.svc.Create(ctx, nil, h.order(t, "1000", true).ID)
	require.NoError(t, err)

	paid, err := h.svc.ApprovePayout(ctx, settlement.ID, "NEFT-001", nil)
	require.NoError(t, err)
	require.Equal(t, enums.SettlementStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(59)))

	_, err = h.svc.ApprovePayout(ctx, settlement.ID, "NEFT-002", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(59)))

	stored, err := h.svc.Get(ctx, settlement.ID)
	require.NoError(t, err)
	require.Equal(t, "NEFT-001", *stored.TransactionRef)
	require.Equal(t, int64(1), h.countEvents(t, enums.EventSettlementPaid))
}

func TestApprovePayoutRequiresReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ApprovePayout(context.Background(), uuid.New(), " ", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.ApprovePayout(context.Background(), uuid.New(), "ref", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHoldBlocksPayoutUntilReleased(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	settlement, err := h.svc.Create(ctx, nil, h.order(t, "1000", true).ID)
	require.NoError(t, err)

	_, err = h.svc.Release(ctx, settlement.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	held, err := h.svc.Hold(ctx, settlement.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SettlementStatusHold, held.Status)

	_, err = h.svc.Hold(ctx, settlement.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.ApprovePayout(ctx, settlement.ID, "NEFT-9", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(1000)))

	released, err := h.svc.Release(ctx, settlement.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SettlementStatusReady, released.Status)

	_, err = h.svc.ApprovePayout(ctx, settlement.ID, "NEFT-9", nil)
	require.NoError(t, err)

	_, err = h.svc.Hold(ctx, settlement.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestApprovePayoutInsufficientFundsRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	settlement, err := h.svc.Create(ctx, nil, h.order(t, "1000", true).ID)
	require.NoError(t, err)

	_, err = h.wallet.Adjust(ctx, wallet.AdjustInput{
		Type:        enums.WalletTransactionDebit,
		Amount:      decimal.NewFromInt(500),
		Source:      enums.WalletSourceRefund,
		ReferenceID: "refund-1",
		Description: "buyer refund",
	})
	require.NoError(t, err)

	_, err = h.svc.ApprovePayout(ctx, settlement.ID, "NEFT-1", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	stored, err := h.svc.Get(ctx, settlement.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SettlementStatusReady, stored.Status)
	require.Nil(t, stored.TransactionRef)
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(500)))
}

func TestPayAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Create(ctx, nil, h.order(t, "1000", true).ID)
	require.NoError(t, err)

	earning, err := h.earnings.Record(ctx, nil, earnings.RecordInput{
		ShipmentID: uuid.New(),
		AgentID:    uuid.New(),
		DistanceKM: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	paid, err := h.svc.PayAgent(ctx, earning.ID, "UPI-1", &outbox.ActorRef{UserID: uuid.New(), Role: "admin"})
	require.NoError(t, err)
	require.Equal(t, enums.EarningStatusPaid, paid.Status)
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(900)))

	_, err = h.svc.PayAgent(ctx, earning.ID, "UPI-2", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.True(t, h.balance(t).Equal(decimal.NewFromInt(900)))

	stored, err := h.earnings.Get(ctx, earning.ID)
	require.NoError(t, err)
	require.Equal(t, "UPI-1", *stored.TransactionRef)
	require.Equal(t, int64(1), h.countEvents(t, enums.EventEarningPaid))
}

func TestPayAgentInsufficientFundsKeepsEarningPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	earning, err := h.earnings.Record(ctx, nil, earnings.RecordInput{
		ShipmentID: uuid.New(),
		AgentID:    uuid.New(),
		DistanceKM: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	_, err = h.svc.PayAgent(ctx, earning.ID, "UPI-1", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	stored, err := h.earnings.Get(ctx, earning.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EarningStatusPending, stored.Status)
	require.Nil(t, stored.TransactionRef)
}

func TestListFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, nil, h.order(t, "100", true).ID)
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, nil, h.order(t, "200", true).ID)
	require.NoError(t, err)
	_, err = h.svc.Hold(ctx, first.ID)
	require.NoError(t, err)

	held := enums.SettlementStatusHold
	page, err := h.svc.List(ctx, &held, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, first.ID, page.Items[0].ID)

	all, err := h.svc.List(ctx, nil, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, all.Items, 1)
	require.NotEmpty(t, all.NextCursor)

	bogus := enums.SettlementStatus("LOST")
	_, err = h.svc.List(ctx, &bogus, pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
