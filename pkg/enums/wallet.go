package enums

import "fmt"

// WalletTransactionType is the direction of a ledger entry.
type WalletTransactionType string

const (
	WalletTransactionCredit WalletTransactionType = "CREDIT"
	WalletTransactionDebit  WalletTransactionType = "DEBIT"
)

// IsValid reports whether the value is CREDIT or DEBIT.
func (t WalletTransactionType) IsValid() bool {
	return t == WalletTransactionCredit || t == WalletTransactionDebit
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	t := WalletTransactionType(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid wallet transaction type %q", value)
	}
	return t, nil
}

// WalletTransactionSource explains why the wallet moved.
type WalletTransactionSource string

const (
	WalletSourceOrderPayment WalletTransactionSource = "ORDER_PAYMENT"
	WalletSourceSellerPayout WalletTransactionSource = "SELLER_PAYOUT"
	WalletSourceAgentPayout  WalletTransactionSource = "AGENT_PAYOUT"
	WalletSourceRefund       WalletTransactionSource = "REFUND"
	WalletSourceAdjustment   WalletTransactionSource = "ADJUSTMENT"
)

var validWalletSources = []WalletTransactionSource{
	WalletSourceOrderPayment,
	WalletSourceSellerPayout,
	WalletSourceAgentPayout,
	WalletSourceRefund,
	WalletSourceAdjustment,
}

// String implements fmt.Stringer.
func (s WalletTransactionSource) String() string {
	return string(s)
}

// IsValid reports whether the value is a known source.
func (s WalletTransactionSource) IsValid() bool {
	for _, candidate := range validWalletSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseWalletTransactionSource converts raw input into a WalletTransactionSource.
func ParseWalletTransactionSource(value string) (WalletTransactionSource, error) {
	for _, candidate := range validWalletSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction source %q", value)
}
