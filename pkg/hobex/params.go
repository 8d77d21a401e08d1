package hobex

import "encoding/json"

// Credentials carries the per-terminal session data every gateway call needs.
// The token comes from Login and is cached by the caller.
type Credentials struct {
	BaseURL string
	Tid     string
	Token   string
}

// PaymentParams is the payload for a new terminal payment.
type PaymentParams struct {
	TransactionID string
	Reference     string
	Amount        float64
	Currency      string
}

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type paymentRequest struct {
	Transaction paymentTransaction `json:"transaction"`
}

type paymentTransaction struct {
	TransactionType int     `json:"transactionType"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Tid             string  `json:"tid"`
	Reference       string  `json:"reference"`
	TransactionID   string  `json:"transactionId"`
	Language        string  `json:"language"`
}

// TransactionResult is the terminal backend's response to a payment, status,
// or reversal call. ResponseCode "0" is the only success code; any other code
// is a decline with the reason in ResponseText.
type TransactionResult struct {
	ResponseCode    string          `json:"responseCode"`
	ResponseText    string          `json:"responseText"`
	ApprovalCode    string          `json:"approvalCode"`
	ActionCode      string          `json:"actionCode"`
	Aid             string          `json:"aid"`
	Reference       string          `json:"reference"`
	Tid             string          `json:"tid"`
	TransactionID   string          `json:"transactionId"`
	TransactionDate string          `json:"transactionDate"`
	CardNumber      string          `json:"cardNumber"`
	CardExpiry      string          `json:"cardExpiry"`
	Brand           string          `json:"brand"`
	CardIssuer      string          `json:"cardIssuer"`
	TransactionType json.Number     `json:"transactionType"`
	Cvm             int             `json:"cvm"`
	State           string          `json:"state"`
	Receipt         string          `json:"cvm_receipt,omitempty"`

	// Raw is the verbatim response body, kept for the audit trail.
	Raw string `json:"-"`
}

// Approved reports the universal success sentinel.
func (r *TransactionResult) Approved() bool {
	return r != nil && r.ResponseCode == "0"
}

// InProgress reports whether the terminal is still waiting on the cardholder.
func (r *TransactionResult) InProgress() bool {
	if r == nil {
		return false
	}
	return r.State == stateInProgress || r.ResponseText == stateInProgress
}

// CardholderVerified reports whether the cardholder confirmed by signature and
// a merchant receipt must be printed.
func (r *TransactionResult) CardholderVerified() bool {
	return r != nil && r.Cvm == 1
}
