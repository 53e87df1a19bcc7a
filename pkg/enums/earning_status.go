package enums

import "fmt"

// EarningStatus is the payout state of an agent earning.
type EarningStatus string

const (
	EarningStatusPending EarningStatus = "PENDING"
	EarningStatusPaid    EarningStatus = "PAID"
)

var validEarningStatuses = []EarningStatus{
	EarningStatusPending,
	EarningStatusPaid,
}

// String implements fmt.Stringer.
func (v EarningStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known EarningStatus.
func (v EarningStatus) IsValid() bool {
	for _, candidate := range validEarningStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseEarningStatus converts raw input into a EarningStatus.
func ParseEarningStatus(value string) (EarningStatus, error) {
	for _, candidate := range validEarningStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid earning status %q", value)
}
