package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/db/testdb"
)

func TestFindByID(t *testing.T) {
	client := testdb.New(t, &models.Order{})
	repo := NewRepository(client.DB())
	ctx := context.Background()

	sellerID := uuid.New()
	order := &models.Order{SellerID: &sellerID, BuyerEmail: "buyer@example.com", TotalAmount: decimal.RequireFromString("1000.00")}
	require.NoError(t, client.DB().Create(order).Error)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, sellerID, *found.SellerID)
	require.True(t, found.TotalAmount.Equal(decimal.NewFromInt(1000)))

	_, err = repo.WithTx(nil).FindByID(ctx, uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
