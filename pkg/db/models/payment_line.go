package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/callino/pos-hobex-bridge/pkg/enums"
)

// PaymentLine is one card payment attempt cycle on a POS order.
// The hobex_* columns mirror the last terminal response verbatim; they are
// overwritten as a whole on each new response, never merged.
type PaymentLine struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderReference string                  `gorm:"column:order_reference;not null;index"`
	TerminalID     uuid.UUID               `gorm:"column:terminal_id;type:uuid;not null;index"`
	Amount         decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       string                  `gorm:"column:currency;not null;default:'EUR'"`
	Status         enums.PaymentLineStatus `gorm:"column:status;not null;default:'pending'"`
	TransactionID  string                  `gorm:"column:transaction_id;index"`

	HobexReceipt         string `gorm:"column:hobex_receipt;type:text"`
	HobexApprovalCode    string `gorm:"column:hobex_approval_code"`
	HobexActionCode      string `gorm:"column:hobex_action_code"`
	HobexAid             string `gorm:"column:hobex_aid"`
	HobexReference       string `gorm:"column:hobex_reference"`
	HobexTid             string `gorm:"column:hobex_tid"`
	HobexTransactionID   string `gorm:"column:hobex_transaction_id"`
	HobexTransactionDate string `gorm:"column:hobex_transaction_date"`
	HobexCardNumber      string `gorm:"column:hobex_card_number"`
	HobexCardExpiry      string `gorm:"column:hobex_card_expiry"`
	HobexBrand           string `gorm:"column:hobex_brand"`
	HobexCardIssuer      string `gorm:"column:hobex_card_issuer"`
	HobexTransactionType string `gorm:"column:hobex_transaction_type"`
	HobexResponseCode    string `gorm:"column:hobex_response_code"`
	HobexResponseText    string `gorm:"column:hobex_response_text"`
	HobexCvm             *int   `gorm:"column:hobex_cvm"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasTransaction reports whether an attempt cycle is in flight or finished.
func (p *PaymentLine) HasTransaction() bool {
	return p.TransactionID != ""
}

// HasResponse reports whether any terminal response was recorded for the
// current attempt cycle.
func (p *PaymentLine) HasResponse() bool {
	return p.HobexResponseCode != ""
}

// Settled reports the universal success sentinel. A settled line must never be
// re-submitted for payment.
func (p *PaymentLine) Settled() bool {
	return p.HobexResponseCode == "0"
}
