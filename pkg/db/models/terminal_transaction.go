package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/callino/pos-hobex-bridge/pkg/enums"
)

// TerminalTransaction is the audit row written for every request sent to the
// hobex backend, one per attempt cycle. (transaction_id, tid) is unique.
type TerminalTransaction struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TerminalID      uuid.UUID              `gorm:"column:terminal_id;type:uuid;not null;index"`
	Reference       string                 `gorm:"column:reference;not null"`
	TransactionID   string                 `gorm:"column:transaction_id;not null;uniqueIndex:idx_terminal_transactions_txid_tid"`
	Tid             string                 `gorm:"column:tid;not null;uniqueIndex:idx_terminal_transactions_txid_tid"`
	TransactionType int                    `gorm:"column:transaction_type;not null;default:1"`
	Amount          decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string                 `gorm:"column:currency;not null;default:'EUR'"`
	URL             string                 `gorm:"column:url"`
	Message         string                 `gorm:"column:message"`
	ResponseCode    string                 `gorm:"column:response_code"`
	ResponseText    string                 `gorm:"column:response_text"`
	Response        string                 `gorm:"column:response;type:text"`
	State           enums.TransactionState `gorm:"column:state;not null;default:'pending'"`
	TransactionDate time.Time              `gorm:"column:transaction_date;autoCreateTime"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
