package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/maps"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

type routeFunc func(origin, destination maps.LatLng) (float64, error)

func (f routeFunc) RouteDistanceKM(_ context.Context, origin, destination maps.LatLng) (float64, error) {
	return f(origin, destination)
}

func TestHaversine(t *testing.T) {
	// Bengaluru MG Road to Koramangala, roughly 5 km apart.
	km := Haversine(types.GeographyPoint{Lat: 12.9756, Lng: 77.6066}, types.GeographyPoint{Lat: 12.9352, Lng: 77.6245})
	require.InDelta(t, 4.9, km, 0.2)
	require.Zero(t, Haversine(types.GeographyPoint{Lat: 1, Lng: 1}, types.GeographyPoint{Lat: 1, Lng: 1}))
}

func TestResolveOrder(t *testing.T) {
	ctx := context.Background()
	from := &types.GeographyPoint{Lat: 12.9756, Lng: 77.6066}
	to := &types.GeographyPoint{Lat: 12.9352, Lng: 77.6245}

	stored := decimal.RequireFromString("7.456")
	routed := NewDistanceResolver(routeFunc(func(maps.LatLng, maps.LatLng) (float64, error) { return 6.321, nil }), nil)

	km, err := routed.Resolve(ctx, &models.Shipment{DistanceKM: &stored, SellerLocation: from, ShippingLocation: to})
	require.NoError(t, err)
	require.Equal(t, "7.46", km.StringFixed(2))

	km, err = routed.Resolve(ctx, &models.Shipment{SellerLocation: from, ShippingLocation: to})
	require.NoError(t, err)
	require.Equal(t, "6.32", km.StringFixed(2))

	failing := NewDistanceResolver(routeFunc(func(maps.LatLng, maps.LatLng) (float64, error) { return 0, errors.New("quota") }), nil)
	km, err = failing.Resolve(ctx, &models.Shipment{SellerLocation: from, ShippingLocation: to})
	require.NoError(t, err)
	require.True(t, km.GreaterThan(decimal.NewFromInt(4)))

	_, err = NewDistanceResolver(nil, nil).Resolve(ctx, &models.Shipment{SellerLocation: from})
	require.ErrorIs(t, err, ErrNoDistance)
}
