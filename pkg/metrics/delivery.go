package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// DeliveryMetrics tracks delivery verification and settlement outcomes.
type DeliveryMetrics struct {
	transitions   *prometheus.CounterVec
	otpSent       prometheus.Counter
	otpVerify     *prometheus.CounterVec
	completions   *prometheus.CounterVec
	payouts       *prometheus.CounterVec
	walletBalance prometheus.Gauge
}

// NewDeliveryMetrics registers the delivery metrics on reg. A nil registerer
// yields a no-op recorder.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	m := &DeliveryMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_shipment_transitions_total",
			Help: "Shipment status transitions.",
		}, []string{"from", "to"}),
		otpSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lastmile_delivery_otp_sent_total",
			Help: "Delivery OTPs issued.",
		}),
		otpVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_delivery_otp_verify_total",
			Help: "Delivery OTP verification attempts by result.",
		}, []string{"result"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_delivery_completion_total",
			Help: "Post-delivery completion steps by step and result.",
		}, []string{"step", "result"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_payouts_total",
			Help: "Payouts approved by kind.",
		}, []string{"kind"}),
		walletBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lastmile_platform_wallet_balance",
			Help: "Last observed platform wallet balance.",
		}),
	}
	reg.MustRegister(m.transitions, m.otpSent, m.otpVerify, m.completions, m.payouts, m.walletBalance)
	return m
}

func (m *DeliveryMetrics) Transition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *DeliveryMetrics) OTPSent() {
	if m == nil || m.otpSent == nil {
		return
	}
	m.otpSent.Inc()
}

// OTPVerify records one verification result: ok, invalid, expired, locked.
func (m *DeliveryMetrics) OTPVerify(result string) {
	if m == nil || m.otpVerify == nil {
		return
	}
	m.otpVerify.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *DeliveryMetrics) CompletionStep(step string, ok bool) {
	if m == nil || m.completions == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.completions.WithLabelValues(normalizeLabel(step), result).Inc()
}

func (m *DeliveryMetrics) Payout(kind string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *DeliveryMetrics) WalletBalance(balance decimal.Decimal) {
	if m == nil || m.walletBalance == nil {
		return
	}
	m.walletBalance.Set(balance.InexactFloat64())
}

// normalizeLabel keeps empty values from producing a blank label.
func normalizeLabel(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
