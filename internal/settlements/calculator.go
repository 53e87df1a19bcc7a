package settlements

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
)

// ErrNegativeAmount is returned when an order total is below zero.
var ErrNegativeAmount = errors.New("order amount must not be negative")

// Breakdown splits an order total into platform fee, tax and seller net.
type Breakdown struct {
	OrderAmount decimal.Decimal
	PlatformFee decimal.Decimal
	Tax         decimal.Decimal
	NetAmount   decimal.Decimal
}

// Calculator applies the platform fee and the tax levied on that fee.
type Calculator struct {
	FeeRate decimal.Decimal
	TaxRate decimal.Decimal
}

func NewCalculator(cfg config.SettlementConfig) Calculator {
	return Calculator{FeeRate: cfg.FeeRate(), TaxRate: cfg.TaxFraction()}
}

// Split rounds each component to cents; net absorbs the rounding so the
// three parts always sum to the order amount.
func (c Calculator) Split(orderAmount decimal.Decimal) (Breakdown, error) {
	if orderAmount.IsNegative() {
		return Breakdown{}, ErrNegativeAmount
	}
	amount := orderAmount.Round(2)
	fee := amount.Mul(c.FeeRate).Round(2)
	tax := fee.Mul(c.TaxRate).Round(2)
	return Breakdown{
		OrderAmount: amount,
		PlatformFee: fee,
		Tax:         tax,
		NetAmount:   amount.Sub(fee).Sub(tax),
	}, nil
}
