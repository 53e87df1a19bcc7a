package earnings

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCalculatorAmount(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(20))

	cases := []struct {
		distance string
		want     string
	}{
		{"0", "0"},
		{"1", "20"},
		{"12.5", "250"},
		{"3.333", "66.66"},
		{"0.0025", "0.05"},
	}
	for _, tc := range cases {
		got, err := calc.Amount(decimal.RequireFromString(tc.distance))
		require.NoError(t, err, tc.distance)
		require.True(t, got.Equal(decimal.RequireFromString(tc.want)), "distance %s: got %s want %s", tc.distance, got, tc.want)
	}
}

func TestCalculatorRejectsNegativeDistance(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(20))
	_, err := calc.Amount(decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrNegativeDistance)
}
