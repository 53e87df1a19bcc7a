package enums

// CompletionStepStatus tracks one post-delivery posting (earning or settlement).
type CompletionStepStatus string

const (
	CompletionStepPending CompletionStepStatus = "PENDING"
	CompletionStepDone    CompletionStepStatus = "DONE"
	CompletionStepFailed  CompletionStepStatus = "FAILED"
)

var validCompletionStepStatuses = []CompletionStepStatus{
	CompletionStepPending,
	CompletionStepDone,
	CompletionStepFailed,
}

// String implements fmt.Stringer.
func (v CompletionStepStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CompletionStepStatus.
func (v CompletionStepStatus) IsValid() bool {
	for _, candidate := range validCompletionStepStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// NeedsWork reports whether the step still has to run.
func (v CompletionStepStatus) NeedsWork() bool {
	return v == CompletionStepPending || v == CompletionStepFailed
}
