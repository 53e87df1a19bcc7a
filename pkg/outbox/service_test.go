package outbox

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/db/testdb"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

func TestEmitWritesEnvelopeInsideTx(t *testing.T) {
	client := testdb.New(t, &models.OutboxEvent{})
	svc := NewService(NewRepository(client.DB()), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	earningID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:   enums.EventEarningRecorded,
			AggregateID: earningID,
			Data:        map[string]string{"earningId": earningID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.AggregateEarning, rows[0].AggregateType)
	require.Equal(t, earningID, rows[0].AggregateID)

	env, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"earningId":"`+earningID.String()+`"}`, string(env.Data))
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client := testdb.New(t, &models.OutboxEvent{})
	svc := NewService(NewRepository(client.DB()), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:   enums.EventShipmentDelivered,
			AggregateID: uuid.New(),
			Data:        map[string]string{"status": "DELIVERED"},
		}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsUnroutableEvents(t *testing.T) {
	client := testdb.New(t, &models.OutboxEvent{})
	svc := NewService(NewRepository(client.DB()), nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventEarningPaid, AggregateID: uuid.New()}), errNoTx)

	cases := map[string]DomainEvent{
		"unknown event":      {EventType: "order_created", AggregateID: uuid.New(), Data: 1},
		"aggregate mismatch": {EventType: enums.EventEarningPaid, AggregateType: enums.AggregateShipment, AggregateID: uuid.New(), Data: 1},
		"no aggregate id":    {EventType: enums.EventSettlementPaid, Data: 1},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, svc.Emit(ctx, client.DB(), event))
		})
	}

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}
