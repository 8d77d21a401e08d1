package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/enums"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
)

// Gateway is the terminal backend boundary. Implementations resolve the
// terminal's session token before each call; a *hobex.TransportError means
// the request never reliably reached the backend.
type Gateway interface {
	RequestPayment(ctx context.Context, terminal *models.PaymentTerminal, params hobex.PaymentParams) (*hobex.TransactionResult, error)
	RequestStatus(ctx context.Context, terminal *models.PaymentTerminal, transactionID string, sync bool) (*hobex.TransactionResult, error)
	RequestReversal(ctx context.Context, terminal *models.PaymentTerminal, transactionID string) (*hobex.TransactionResult, error)
}

// Notification is a user-facing alert raised by the payment flow.
type Notification struct {
	LineID *uuid.UUID
	Title  string
	Body   string
}

// NotificationSink receives notifications fire-and-forget; implementations
// must never propagate their own failures into the payment flow.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification)
}

// ReceiptPrinter renders a merchant receipt, best effort. A nil printer or a
// print failure never fails the payment.
type ReceiptPrinter interface {
	PrintReceipt(ctx context.Context, data ReceiptData) error
}

// LineLocker serializes payment attempts per line.
type LineLocker interface {
	Acquire(ctx context.Context, lineID uuid.UUID) (bool, error)
	Release(ctx context.Context, lineID uuid.UUID) error
}

// TerminalDirectory resolves configured terminals for payment lines.
type TerminalDirectory interface {
	FindTerminal(ctx context.Context, terminalID uuid.UUID) (*models.PaymentTerminal, error)
}

// Repository defines persistence operations for payment lines and the
// terminal transaction audit log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateLine(ctx context.Context, line *models.PaymentLine) (*models.PaymentLine, error)
	FindLine(ctx context.Context, lineID uuid.UUID) (*models.PaymentLine, error)
	SaveLine(ctx context.Context, line *models.PaymentLine) error
	UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
	ListLinesByOrder(ctx context.Context, orderReference string) ([]models.PaymentLine, error)
	FindPendingLines(ctx context.Context) ([]models.PaymentLine, error)
	CreateTransaction(ctx context.Context, txn *models.TerminalTransaction) (*models.TerminalTransaction, error)
	UpdateTransaction(ctx context.Context, tid, transactionID string, updates map[string]any) error
	ListTransactions(ctx context.Context, limit int) ([]models.TerminalTransaction, error)
}

// Outcome is the settlement result reported back to the checkout UI:
// settled=true means the line is finalized (done or reversed), settled=false
// means it needs a retry or manual resolution.
type Outcome struct {
	Settled bool                    `json:"settled"`
	Status  enums.PaymentLineStatus `json:"status"`
}

// CreateLineInput carries the fields to open a new payment line.
type CreateLineInput struct {
	OrderReference string
	TerminalID     uuid.UUID
	Amount         string
	Currency       string
}

// Service drives payment lines through their lifecycle.
type Service interface {
	CreateLine(ctx context.Context, input CreateLineInput) (*models.PaymentLine, error)
	GetLine(ctx context.Context, lineID uuid.UUID) (*models.PaymentLine, error)
	ListLinesByOrder(ctx context.Context, orderReference string) ([]models.PaymentLine, error)
	InitiatePayment(ctx context.Context, lineID uuid.UUID) (*Outcome, error)
	PollStatus(ctx context.Context, lineID uuid.UUID) (*Outcome, error)
	ReversePayment(ctx context.Context, lineID uuid.UUID) (*Outcome, error)
	CancelPayment(ctx context.Context, lineID uuid.UUID) (*Outcome, error)
	CanDeleteLine(ctx context.Context, line *models.PaymentLine) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
	ReceiptData(ctx context.Context, lineID uuid.UUID) (*ReceiptData, error)
	ListTransactions(ctx context.Context, limit int) ([]models.TerminalTransaction, error)
	RecoverPending(ctx context.Context) error
}
