package earnings

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativeDistance is returned for distances below zero.
var ErrNegativeDistance = errors.New("distance must not be negative")

// Calculator prices a delivery by distance.
type Calculator struct {
	RatePerKM decimal.Decimal
}

// NewCalculator returns a calculator paying ratePerKM per kilometre.
func NewCalculator(ratePerKM decimal.Decimal) Calculator {
	return Calculator{RatePerKM: ratePerKM}
}

// Amount returns distanceKM × rate rounded half away from zero to cents.
func (c Calculator) Amount(distanceKM decimal.Decimal) (decimal.Decimal, error) {
	if distanceKM.IsNegative() {
		return decimal.Zero, ErrNegativeDistance
	}
	return distanceKM.Mul(c.RatePerKM).Round(2), nil
}
