package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeliveryMetrics(reg)

	m.Transition("OUT_FOR_DELIVERY", "DELIVERED")
	m.OTPSent()
	m.OTPVerify("invalid")
	m.OTPVerify("invalid")
	m.CompletionStep("earning", false)
	m.Payout("settlement")
	m.WalletBalance(decimal.RequireFromString("1250.50"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("OUT_FOR_DELIVERY", "DELIVERED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.otpSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.otpVerify.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("earning", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payouts.WithLabelValues("settlement")))
	assert.Equal(t, 1250.5, testutil.ToFloat64(m.walletBalance))

	series := sample(t, reg, "lastmile_delivery_otp_verify_total", "result", "invalid")
	require.Equal(t, 2.0, series.GetCounter().GetValue())
}

func TestDeliveryMetricsNilSafe(t *testing.T) {
	var m *DeliveryMetrics
	noop := NewDeliveryMetrics(nil)
	require.NotPanics(t, func() {
		m.Transition("a", "b")
		m.OTPSent()
		m.Payout("settlement")
		noop.OTPVerify("ok")
		noop.CompletionStep("settlement", true)
		noop.WalletBalance(decimal.NewFromInt(1))
	})
}
