package enums

import "fmt"

// TransactionState mirrors the audit-row state the terminal proxy keeps per attempt.
type TransactionState string

const (
	TransactionStatePending  TransactionState = "pending"
	TransactionStateOk       TransactionState = "ok"
	TransactionStateFailed   TransactionState = "failed"
	TransactionStateAbort    TransactionState = "abort"
	TransactionStateRefunded TransactionState = "refunded"
)

var validTransactionStates = []TransactionState{
	TransactionStatePending,
	TransactionStateOk,
	TransactionStateFailed,
	TransactionStateAbort,
	TransactionStateRefunded,
}

// String implements fmt.Stringer.
func (t TransactionState) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionState.
func (t TransactionState) IsValid() bool {
	for _, candidate := range validTransactionStates {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionState converts raw input into a TransactionState.
func ParseTransactionState(value string) (TransactionState, error) {
	for _, candidate := range validTransactionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction state %q", value)
}
