package completion

import (
	"context"
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/maps"
	"github.com/angelmondragon/lastmile-backend/pkg/types"
)

const earthRadiusKM = 6371.0

// ErrNoDistance is returned when a shipment has neither a stored distance
// nor both endpoints.
var ErrNoDistance = errors.New("shipment has no distance or endpoints")

// RouteMeter measures driving distance between two points.
type RouteMeter interface {
	RouteDistanceKM(ctx context.Context, origin, destination maps.LatLng) (float64, error)
}

// DistanceResolver picks the distance an agent is paid for.
type DistanceResolver struct {
	routes RouteMeter
	logg   *logger.Logger
}

// NewDistanceResolver builds a resolver. routes may be nil, in which case
// the straight-line distance is used.
func NewDistanceResolver(routes RouteMeter, logg *logger.Logger) *DistanceResolver {
	return &DistanceResolver{routes: routes, logg: logg}
}

// Resolve prefers the stored distance, then the routed distance, then the
// great-circle distance between seller and shipping locations.
func (r *DistanceResolver) Resolve(ctx context.Context, shipment *models.Shipment) (decimal.Decimal, error) {
	if shipment.DistanceKM != nil {
		return shipment.DistanceKM.Round(2), nil
	}
	if shipment.SellerLocation == nil || shipment.ShippingLocation == nil {
		return decimal.Zero, ErrNoDistance
	}
	from, to := *shipment.SellerLocation, *shipment.ShippingLocation
	if r.routes != nil {
		km, err := r.routes.RouteDistanceKM(ctx,
			maps.LatLng{Latitude: from.Lat, Longitude: from.Lng},
			maps.LatLng{Latitude: to.Lat, Longitude: to.Lng})
		if err == nil {
			return decimal.NewFromFloat(km).Round(2), nil
		}
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "route distance unavailable, using straight line")
		}
	}
	return decimal.NewFromFloat(Haversine(from, to)).Round(2), nil
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(a, b types.GeographyPoint) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
