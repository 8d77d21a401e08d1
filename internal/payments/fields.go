package payments

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
)

// LineFields is the serialized projection of a line's terminal response. The
// JSON keys are the persisted wire names and must not change; absent values
// serialize as empty-string/zero sentinels so the round-trip is lossless.
type LineFields struct {
	Receipt         string `json:"hobex_receipt"`
	ApprovalCode    string `json:"hobex_approvalCode"`
	ActionCode      string `json:"hobex_actionCode"`
	Aid             string `json:"hobex_aid"`
	Reference       string `json:"hobex_reference"`
	Tid             string `json:"hobex_tid"`
	TransactionID   string `json:"hobex_transactionId"`
	TransactionDate string `json:"hobex_transactionDate"`
	CardNumber      string `json:"hobex_cardNumber"`
	CardExpiry      string `json:"hobex_cardExpiry"`
	Brand           string `json:"hobex_brand"`
	CardIssuer      string `json:"hobex_cardIssuer"`
	TransactionType string `json:"hobex_transactionType"`
	ResponseCode    string `json:"hobex_responseCode"`
	ResponseText    string `json:"hobex_responseText"`
	Cvm             int    `json:"hobex_cvm"`
}

// LineFieldsFrom projects a line's persisted terminal response columns.
func LineFieldsFrom(line *models.PaymentLine) LineFields {
	fields := LineFields{
		Receipt:         line.HobexReceipt,
		ApprovalCode:    line.HobexApprovalCode,
		ActionCode:      line.HobexActionCode,
		Aid:             line.HobexAid,
		Reference:       line.HobexReference,
		Tid:             line.HobexTid,
		TransactionID:   line.HobexTransactionID,
		TransactionDate: line.HobexTransactionDate,
		CardNumber:      line.HobexCardNumber,
		CardExpiry:      line.HobexCardExpiry,
		Brand:           line.HobexBrand,
		CardIssuer:      line.HobexCardIssuer,
		TransactionType: line.HobexTransactionType,
		ResponseCode:    line.HobexResponseCode,
		ResponseText:    line.HobexResponseText,
	}
	if line.HobexCvm != nil {
		fields.Cvm = *line.HobexCvm
	}
	return fields
}

// Apply writes the projection back onto a line, overwriting all terminal
// response columns as a whole.
func (f LineFields) Apply(line *models.PaymentLine) {
	line.HobexReceipt = f.Receipt
	line.HobexApprovalCode = f.ApprovalCode
	line.HobexActionCode = f.ActionCode
	line.HobexAid = f.Aid
	line.HobexReference = f.Reference
	line.HobexTid = f.Tid
	line.HobexTransactionID = f.TransactionID
	line.HobexTransactionDate = f.TransactionDate
	line.HobexCardNumber = f.CardNumber
	line.HobexCardExpiry = f.CardExpiry
	line.HobexBrand = f.Brand
	line.HobexCardIssuer = f.CardIssuer
	line.HobexTransactionType = f.TransactionType
	line.HobexResponseCode = f.ResponseCode
	line.HobexResponseText = f.ResponseText
	cvm := f.Cvm
	line.HobexCvm = &cvm
}

// applyResult overwrites a line's terminal response columns with a fresh
// backend response. The previous response is replaced, never merged.
func applyResult(line *models.PaymentLine, result *hobex.TransactionResult) {
	cvm := result.Cvm
	line.HobexReceipt = result.Receipt
	line.HobexApprovalCode = result.ApprovalCode
	line.HobexActionCode = result.ActionCode
	line.HobexAid = result.Aid
	line.HobexReference = result.Reference
	line.HobexTid = result.Tid
	line.HobexTransactionID = result.TransactionID
	line.HobexTransactionDate = result.TransactionDate
	line.HobexCardNumber = result.CardNumber
	line.HobexCardExpiry = result.CardExpiry
	line.HobexBrand = result.Brand
	line.HobexCardIssuer = result.CardIssuer
	line.HobexTransactionType = result.TransactionType.String()
	line.HobexResponseCode = result.ResponseCode
	line.HobexResponseText = result.ResponseText
	line.HobexCvm = &cvm
}

// ReceiptData is the printed-receipt projection of a settled line: the
// terminal response fields plus the line's amount, with the receipt text
// normalized from the terminal's CRLF line breaks.
type ReceiptData struct {
	LineFields
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ReceiptDataFrom builds the printable projection for a line.
func ReceiptDataFrom(line *models.PaymentLine) ReceiptData {
	fields := LineFieldsFrom(line)
	fields.Receipt = NormalizeReceipt(fields.Receipt)
	return ReceiptData{
		LineFields: fields,
		Amount:     line.Amount,
		Currency:   line.Currency,
	}
}

// NormalizeReceipt converts the terminal's CRLF line breaks to LF.
func NormalizeReceipt(receipt string) string {
	return strings.ReplaceAll(receipt, "\r\n", "\n")
}
