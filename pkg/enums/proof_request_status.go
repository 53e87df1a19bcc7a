package enums

import "fmt"

// ProofRequestStatus tracks a seller's request to view a delivery proof.
type ProofRequestStatus string

const (
	ProofRequestStatusPending  ProofRequestStatus = "PENDING"
	ProofRequestStatusApproved ProofRequestStatus = "APPROVED"
	ProofRequestStatusRejected ProofRequestStatus = "REJECTED"
)

var validProofRequestStatuses = []ProofRequestStatus{
	ProofRequestStatusPending,
	ProofRequestStatusApproved,
	ProofRequestStatusRejected,
}

// String implements fmt.Stringer.
func (v ProofRequestStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ProofRequestStatus.
func (v ProofRequestStatus) IsValid() bool {
	for _, candidate := range validProofRequestStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseProofRequestStatus converts raw input into a ProofRequestStatus.
func ParseProofRequestStatus(value string) (ProofRequestStatus, error) {
	for _, candidate := range validProofRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid proof request status %q", value)
}

// IsDecision reports whether the status is an admin decision (terminal).
func (v ProofRequestStatus) IsDecision() bool {
	return v == ProofRequestStatusApproved || v == ProofRequestStatusRejected
}
