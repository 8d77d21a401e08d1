package enums

import "fmt"

// PaymentLineStatus tracks the terminal lifecycle of a payment line.
type PaymentLineStatus string

const (
	PaymentLineStatusPending     PaymentLineStatus = "pending"
	PaymentLineStatusWaitingCard PaymentLineStatus = "waitingCard"
	PaymentLineStatusWaiting     PaymentLineStatus = "waiting"
	PaymentLineStatusRetry       PaymentLineStatus = "retry"
	PaymentLineStatusDone        PaymentLineStatus = "done"
	PaymentLineStatusForceDone   PaymentLineStatus = "force_done"
	PaymentLineStatusReversing   PaymentLineStatus = "reversing"
	PaymentLineStatusReversed    PaymentLineStatus = "reversed"
)

var validPaymentLineStatuses = []PaymentLineStatus{
	PaymentLineStatusPending,
	PaymentLineStatusWaitingCard,
	PaymentLineStatusWaiting,
	PaymentLineStatusRetry,
	PaymentLineStatusDone,
	PaymentLineStatusForceDone,
	PaymentLineStatusReversing,
	PaymentLineStatusReversed,
}

// String implements fmt.Stringer.
func (p PaymentLineStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentLineStatus.
func (p PaymentLineStatus) IsValid() bool {
	for _, candidate := range validPaymentLineStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsFinal reports whether the line has reached a settled outcome.
func (p PaymentLineStatus) IsFinal() bool {
	switch p {
	case PaymentLineStatusDone, PaymentLineStatusForceDone, PaymentLineStatusReversed:
		return true
	}
	return false
}

// ParsePaymentLineStatus converts raw input into a PaymentLineStatus.
func ParsePaymentLineStatus(value string) (PaymentLineStatus, error) {
	for _, candidate := range validPaymentLineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment line status %q", value)
}
