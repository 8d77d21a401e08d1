package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/enums"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

const (
	responseCodeAborted     = "8004"
	responseCodeUnreachable = "8003"
	resultStateOK           = "OK"
	resultStateVoid         = "VOID"
	defaultTransactionLimit = 100
)

// Notification texts shown to the cashier. The deployed terminals are
// Austrian, so the wording stays German.
const (
	titleHobex       = "hobex"
	titleDeviceError = "hobex Gerätefehler"
	titleResponse    = "hobex Antwort"
	titleCommError   = "Achtung Fehler"
	titleHobexError  = "hobex Fehler"
	titleAttention   = "ACHTUNG"
	titleNegative    = "Negative Beträge nicht möglich."

	bodyAborted     = "Die Transaktion wurde am Terminal abgebrochen"
	bodyUnreachable = "Das Terminal nicht scheint erreichbar zu sein. Bitte überprüfen Sie die Verbindung des Terminals mit dem Netzwerk und versuchen Sie es erneut."
	bodyCommError   = "Es ist ein Fehler bei der Kommunikation mit dem hobex Server aufgetreten !"
	bodyNegative    = "Es ist nicht möglich einen negativen Betrag zurückzubuchen."
	bodyCancelOnly  = "Die Zahlung muss am Terminal abgebrochen werden !"
	bodySettled     = "Die Zahlung war erfolgreich, kann nicht gelöscht werden !"
	bodyBusy        = "Für diese Zahlung läuft bereits eine Transaktion."
)

// ServiceParams bundles the dependencies for the payments service.
type ServiceParams struct {
	Repo      Repository
	Gateway   Gateway
	Sink      NotificationSink
	Printer   ReceiptPrinter // optional
	Locker    LineLocker
	Terminals TerminalDirectory
	Logger    *logger.Logger
	Rounding  decimal.Decimal
	Currency  string
	Now       func() time.Time // optional, defaults to time.Now
}

type service struct {
	repo      Repository
	gateway   Gateway
	sink      NotificationSink
	printer   ReceiptPrinter
	locker    LineLocker
	terminals TerminalDirectory
	logger    *logger.Logger
	rounding  decimal.Decimal
	currency  string
	txIDs     *txIDSource
}

// NewService builds the payment line service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("terminal gateway required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("notification sink required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("line locker required")
	}
	if params.Terminals == nil {
		return nil, fmt.Errorf("terminal directory required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Rounding.Sign() <= 0 {
		return nil, fmt.Errorf("rounding step must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = "EUR"
	}
	return &service{
		repo:      params.Repo,
		gateway:   params.Gateway,
		sink:      params.Sink,
		printer:   params.Printer,
		locker:    params.Locker,
		terminals: params.Terminals,
		logger:    params.Logger,
		rounding:  params.Rounding,
		currency:  currency,
		txIDs:     newTxIDSource(params.Now),
	}, nil
}

func (s *service) CreateLine(ctx context.Context, input CreateLineInput) (*models.PaymentLine, error) {
	if input.OrderReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	if input.TerminalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "terminal id required")
	}
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid amount").WithDetails(input.Amount)
	}

	terminal, err := s.terminals.FindTerminal(ctx, input.TerminalID)
	if err != nil {
		return nil, err
	}
	if !terminal.Enabled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "terminal is disabled")
	}

	currency := input.Currency
	if currency == "" {
		currency = terminal.Currency
	}
	if currency == "" {
		currency = s.currency
	}

	line := &models.PaymentLine{
		OrderReference: input.OrderReference,
		TerminalID:     terminal.ID,
		Amount:         amount,
		Currency:       currency,
		Status:         enums.PaymentLineStatusPending,
	}
	return s.repo.CreateLine(ctx, line)
}

func (s *service) GetLine(ctx context.Context, lineID uuid.UUID) (*models.PaymentLine, error) {
	return s.findLine(ctx, lineID)
}

func (s *service) ListLinesByOrder(ctx context.Context, orderReference string) ([]models.PaymentLine, error) {
	if orderReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	return s.repo.ListLinesByOrder(ctx, orderReference)
}

// InitiatePayment drives one payment attempt for the line. The decision over
// (transaction present, prior response code) is:
//
//	no transaction, amount < 0  -> reject locally, force_done
//	no transaction, amount >= 0 -> new transaction id, send payment
//	transaction, no response    -> recover via status poll
//	transaction, response "0"   -> already settled, idempotent re-entry
//	transaction, other response -> drop the dead transaction id, fresh retry
func (s *service) InitiatePayment(ctx context.Context, lineID uuid.UUID) (*Outcome, error) {
	line, err := s.findLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithLineID(ctx, line.ID.String())

	acquired, err := s.locker.Acquire(ctx, line.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring line lock")
	}
	if !acquired {
		s.notify(ctx, line, titleHobex, bodyBusy)
		return &Outcome{Settled: false, Status: line.Status}, nil
	}
	defer s.releaseLock(ctx, line.ID)

	if line.HasTransaction() {
		switch {
		case line.Settled():
			// Idempotent re-entry, no gateway call.
			line.Status = enums.PaymentLineStatusDone
			if err := s.repo.SaveLine(ctx, line); err != nil {
				return nil, err
			}
			return &Outcome{Settled: true, Status: line.Status}, nil
		case line.HasResponse():
			// Dead attempt, retry under a fresh transaction id.
			line.TransactionID = ""
		default:
			// In flight with no recorded response, e.g. after a restart.
			return s.pollStatusLocked(ctx, line)
		}
	}

	if line.Amount.IsNegative() {
		line.Status = enums.PaymentLineStatusForceDone
		if err := s.repo.SaveLine(ctx, line); err != nil {
			return nil, err
		}
		s.notify(ctx, line, titleNegative, bodyNegative)
		return &Outcome{Settled: false, Status: line.Status}, nil
	}

	terminal, err := s.terminals.FindTerminal(ctx, line.TerminalID)
	if err != nil {
		return nil, err
	}

	line.TransactionID = s.txIDs.Next()
	line.Status = enums.PaymentLineStatusWaitingCard
	if err := s.repo.SaveLine(ctx, line); err != nil {
		return nil, err
	}
	ctx = s.logger.WithTransactionID(ctx, line.TransactionID)

	amount := s.roundAmount(line.Amount)
	if _, err := s.repo.CreateTransaction(ctx, &models.TerminalTransaction{
		TerminalID:    terminal.ID,
		Reference:     line.OrderReference,
		TransactionID: line.TransactionID,
		Tid:           terminal.Tid,
		Amount:        amount,
		Currency:      line.Currency,
		URL:           terminal.APIAddress() + hobex.PaymentPath,
		State:         enums.TransactionStatePending,
	}); err != nil {
		return nil, err
	}

	result, err := s.gateway.RequestPayment(ctx, terminal, hobex.PaymentParams{
		TransactionID: line.TransactionID,
		Reference:     line.OrderReference,
		Amount:        amount.InexactFloat64(),
		Currency:      line.Currency,
	})
	if err != nil {
		// The request never reliably reached the backend; keep the
		// transaction id so the next attempt polls status instead of
		// double-charging.
		s.auditFailure(ctx, terminal.Tid, line.TransactionID, err)
		line.Status = enums.PaymentLineStatusRetry
		if saveErr := s.repo.SaveLine(ctx, line); saveErr != nil {
			return nil, saveErr
		}
		s.notify(ctx, line, titleCommError, bodyCommError)
		return &Outcome{Settled: false, Status: line.Status}, nil
	}

	return s.handlePaymentResponse(ctx, line, terminal, result)
}

func (s *service) handlePaymentResponse(ctx context.Context, line *models.PaymentLine, terminal *models.PaymentTerminal, result *hobex.TransactionResult) (*Outcome, error) {
	line.HobexResponseCode = result.ResponseCode
	line.HobexResponseText = result.ResponseText

	if result.Approved() {
		applyResult(line, result)
		line.Status = enums.PaymentLineStatusDone
		if err := s.repo.SaveLine(ctx, line); err != nil {
			return nil, err
		}
		s.auditResult(ctx, terminal.Tid, line.TransactionID, result, enums.TransactionStateOk)
		s.printIfVerified(ctx, line, result)
		return &Outcome{Settled: true, Status: line.Status}, nil
	}

	line.Status = enums.PaymentLineStatusRetry
	if err := s.repo.SaveLine(ctx, line); err != nil {
		return nil, err
	}

	auditState := enums.TransactionStateFailed
	switch result.ResponseCode {
	case responseCodeAborted:
		auditState = enums.TransactionStateAbort
		s.notify(ctx, line, titleHobex, bodyAborted)
	case responseCodeUnreachable:
		s.notify(ctx, line, titleDeviceError, bodyUnreachable)
	default:
		s.notify(ctx, line, titleResponse, fmt.Sprintf("%s: %s", result.ResponseCode, result.ResponseText))
	}
	s.auditResult(ctx, terminal.Tid, line.TransactionID, result, auditState)
	return &Outcome{Settled: false, Status: line.Status}, nil
}

// PollStatus recovers a line whose transaction is in flight but has no
// recorded response. A transport failure propagates to the caller so it can
// distinguish "could not even ask" from "asked, got a decline".
func (s *service) PollStatus(ctx context.Context, lineID uuid.UUID) (*Outcome, error) {
	line, err := s.findLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithLineID(ctx, line.ID.String())

	acquired, err := s.locker.Acquire(ctx, line.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring line lock")
	}
	if !acquired {
		s.notify(ctx, line, titleHobex, bodyBusy)
		return &Outcome{Settled: false, Status: line.Status}, nil
	}
	defer s.releaseLock(ctx, line.ID)

	return s.pollStatusLocked(ctx, line)
}

func (s *service) pollStatusLocked(ctx context.Context, line *models.PaymentLine) (*Outcome, error) {
	if !line.HasTransaction() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "line has no transaction to poll")
	}
	ctx = s.logger.WithTransactionID(ctx, line.TransactionID)

	terminal, err := s.terminals.FindTerminal(ctx, line.TerminalID)
	if err != nil {
		return nil, err
	}

	line.Status = enums.PaymentLineStatusWaitingCard
	if err := s.repo.SaveLine(ctx, line); err != nil {
		return nil, err
	}

	result, err := s.gateway.RequestStatus(ctx, terminal, line.TransactionID, true)
	if err != nil {
		if hobex.IsTransport(err) {
			line.Status = enums.PaymentLineStatusWaiting
			if saveErr := s.repo.SaveLine(ctx, line); saveErr != nil {
				return nil, saveErr
			}
			s.notify(ctx, line, titleHobexError, bodyCommError)
			return nil, err
		}
		// The backend answered but could not resolve the transaction.
		line.Status = enums.PaymentLineStatusRetry
		if saveErr := s.repo.SaveLine(ctx, line); saveErr != nil {
			return nil, saveErr
		}
		return &Outcome{Settled: false, Status: line.Status}, nil
	}

	line.HobexResponseCode = result.ResponseCode
	line.HobexResponseText = result.ResponseText

	switch {
	case result.Approved() && result.State == resultStateOK:
		applyResult(line, result)
		line.Status = enums.PaymentLineStatusDone
		if err := s.repo.SaveLine(ctx, line); err != nil {
			return nil, err
		}
		s.auditResult(ctx, terminal.Tid, line.TransactionID, result, enums.TransactionStateOk)
		s.printIfVerified(ctx, line, result)
		return &Outcome{Settled: true, Status: line.Status}, nil

	case result.Approved() && result.State == resultStateVoid:
		applyResult(line, result)
		line.Amount = decimal.Zero
		line.Status = enums.PaymentLineStatusReversed
		if err := s.repo.SaveLine(ctx, line); err != nil {
			return nil, err
		}
		s.auditResult(ctx, terminal.Tid, line.TransactionID, result, enums.TransactionStateRefunded)
		return &Outcome{Settled: true, Status: line.Status}, nil

	default:
		line.Status = enums.PaymentLineStatusRetry
		if err := s.repo.SaveLine(ctx, line); err != nil {
			return nil, err
		}
		s.auditResult(ctx, terminal.Tid, line.TransactionID, result, enums.TransactionStateFailed)
		return &Outcome{Settled: false, Status: line.Status}, nil
	}
}

// ReversePayment voids a settled line. On failure the line stays in
// reversing; recovery is an explicit status poll, never an assumed success.
func (s *service) ReversePayment(ctx context.Context, lineID uuid.UUID) (*Outcome, error) {
	line, err := s.findLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithLineID(ctx, line.ID.String())

	if line.Status != enums.PaymentLineStatusDone {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only settled lines can be reversed")
	}
	if !line.HasTransaction() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "line has no transaction to reverse")
	}
	ctx = s.logger.WithTransactionID(ctx, line.TransactionID)

	acquired, err := s.locker.Acquire(ctx, line.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring line lock")
	}
	if !acquired {
		s.notify(ctx, line, titleHobex, bodyBusy)
		return &Outcome{Settled: false, Status: line.Status}, nil
	}
	defer s.releaseLock(ctx, line.ID)

	terminal, err := s.terminals.FindTerminal(ctx, line.TerminalID)
	if err != nil {
		return nil, err
	}

	line.Status = enums.PaymentLineStatusReversing
	if err := s.repo.SaveLine(ctx, line); err != nil {
		return nil, err
	}

	result, err := s.gateway.RequestReversal(ctx, terminal, line.TransactionID)
	if err != nil {
		s.notify(ctx, line, titleHobexError, bodyCommError)
		return &Outcome{Settled: false, Status: line.Status}, nil
	}

	line.HobexResponseCode = result.ResponseCode
	line.HobexResponseText = result.ResponseText

	if result.Approved() {
		applyResult(line, result)
		line.Status = enums.PaymentLineStatusReversed
		if err := s.repo.SaveLine(ctx, line); err != nil {
			return nil, err
		}
		s.auditResult(ctx, terminal.Tid, line.TransactionID, result, enums.TransactionStateRefunded)
		return &Outcome{Settled: true, Status: line.Status}, nil
	}

	if err := s.repo.SaveLine(ctx, line); err != nil {
		return nil, err
	}
	s.notify(ctx, line, titleResponse, fmt.Sprintf("%s: %s", result.ResponseCode, result.ResponseText))
	return &Outcome{Settled: false, Status: line.Status}, nil
}

// CancelPayment is unsupported by the terminal: an in-flight request can only
// be aborted on the device itself.
func (s *service) CancelPayment(ctx context.Context, lineID uuid.UUID) (*Outcome, error) {
	line, err := s.findLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, line, titleAttention, bodyCancelOnly)
	return &Outcome{Settled: false, Status: line.Status}, nil
}

// CanDeleteLine reports whether the cashier may remove the line. It returns
// nil when deletion is safe and a state-conflict error carrying the dialog
// text otherwise.
func (s *service) CanDeleteLine(ctx context.Context, line *models.PaymentLine) error {
	if !line.HasTransaction() {
		return nil
	}
	if line.Status == enums.PaymentLineStatusRetry {
		return nil
	}
	switch {
	case line.Settled():
		return pkgerrors.New(pkgerrors.CodeStateConflict, bodySettled).WithDetails(titleAttention)
	case line.HobexResponseCode == responseCodeAborted, line.HobexResponseCode == responseCodeUnreachable:
		return nil
	case line.HasResponse():
		body := fmt.Sprintf("Code: %s\n%s", line.HobexResponseCode, line.HobexResponseText)
		return pkgerrors.New(pkgerrors.CodeStateConflict, body).WithDetails(titleResponse)
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, bodyCancelOnly).WithDetails(titleAttention)
	}
}

func (s *service) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	line, err := s.findLine(ctx, lineID)
	if err != nil {
		return err
	}
	ctx = s.logger.WithLineID(ctx, line.ID.String())

	if err := s.CanDeleteLine(ctx, line); err != nil {
		title := titleAttention
		if domainErr := pkgerrors.As(err); domainErr != nil {
			if detail, ok := domainErr.Details().(string); ok && detail != "" {
				title = detail
			}
			s.notify(ctx, line, title, domainErr.Message())
		}
		return err
	}
	return s.repo.DeleteLine(ctx, line.ID)
}

func (s *service) ReceiptData(ctx context.Context, lineID uuid.UUID) (*ReceiptData, error) {
	line, err := s.findLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	data := ReceiptDataFrom(line)
	return &data, nil
}

func (s *service) ListTransactions(ctx context.Context, limit int) ([]models.TerminalTransaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	return s.repo.ListTransactions(ctx, limit)
}

// RecoverPending runs the status poll for every line stuck mid-payment,
// aggregating failures so one broken line does not stop the sweep.
func (s *service) RecoverPending(ctx context.Context) error {
	lines, err := s.repo.FindPendingLines(ctx)
	if err != nil {
		return fmt.Errorf("finding pending lines: %w", err)
	}

	var errs error
	for i := range lines {
		if _, err := s.PollStatus(ctx, lines[i].ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %s: %w", lines[i].ID, err))
		}
	}
	return errs
}

func (s *service) findLine(ctx context.Context, lineID uuid.UUID) (*models.PaymentLine, error) {
	if lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line id required")
	}
	line, err := s.repo.FindLine(ctx, lineID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment line not found")
		}
		return nil, err
	}
	return line, nil
}

// roundAmount snaps the amount to the currency's minor-unit increment.
func (s *service) roundAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(s.rounding).Round(0).Mul(s.rounding)
}

func (s *service) printIfVerified(ctx context.Context, line *models.PaymentLine, result *hobex.TransactionResult) {
	if s.printer == nil || !result.CardholderVerified() || result.Receipt == "" {
		return
	}
	data := ReceiptDataFrom(line)
	if err := s.printer.PrintReceipt(ctx, data); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("printing merchant receipt: %v", err))
	}
}

func (s *service) notify(ctx context.Context, line *models.PaymentLine, title, body string) {
	lineID := line.ID
	s.sink.Notify(ctx, Notification{LineID: &lineID, Title: title, Body: body})
}

func (s *service) releaseLock(ctx context.Context, lineID uuid.UUID) {
	if err := s.locker.Release(ctx, lineID); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("releasing line lock: %v", err))
	}
}

func (s *service) auditResult(ctx context.Context, tid, transactionID string, result *hobex.TransactionResult, state enums.TransactionState) {
	updates := map[string]any{
		"response_code": result.ResponseCode,
		"response_text": result.ResponseText,
		"response":      result.Raw,
		"state":         state,
	}
	if err := s.repo.UpdateTransaction(ctx, tid, transactionID, updates); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("updating transaction audit: %v", err))
	}
}

func (s *service) auditFailure(ctx context.Context, tid, transactionID string, cause error) {
	updates := map[string]any{
		"state":   enums.TransactionStateFailed,
		"message": cause.Error(),
	}
	if err := s.repo.UpdateTransaction(ctx, tid, transactionID, updates); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("updating transaction audit: %v", err))
	}
}
