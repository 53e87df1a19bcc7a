package settlements

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
)

func TestCalculatorSplit(t *testing.T) {
	calc := NewCalculator(config.SettlementConfig{PlatformFeeRate: "0.05", TaxRate: "0.18"})

	cases := []struct {
		amount, fee, tax, net string
	}{
		{"1000", "50", "9", "941"},
		{"0", "0", "0", "0"},
		{"199.99", "10", "1.8", "188.19"},
		{"10.10", "0.51", "0.09", "9.5"},
	}
	for _, tc := range cases {
		got, err := calc.Split(decimal.RequireFromString(tc.amount))
		require.NoError(t, err, tc.amount)
		require.True(t, got.PlatformFee.Equal(decimal.RequireFromString(tc.fee)), "%s fee %s", tc.amount, got.PlatformFee)
		require.True(t, got.Tax.Equal(decimal.RequireFromString(tc.tax)), "%s tax %s", tc.amount, got.Tax)
		require.True(t, got.NetAmount.Equal(decimal.RequireFromString(tc.net)), "%s net %s", tc.amount, got.NetAmount)
		require.True(t, got.PlatformFee.Add(got.Tax).Add(got.NetAmount).Equal(got.OrderAmount))
	}
}

func TestCalculatorRejectsNegative(t *testing.T) {
	calc := NewCalculator(config.SettlementConfig{PlatformFeeRate: "0.05", TaxRate: "0.18"})
	_, err := calc.Split(decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrNegativeAmount)
}
