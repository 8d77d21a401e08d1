package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/enums"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

type stubGateway struct {
	paymentResult  *hobex.TransactionResult
	paymentErr     error
	statusResult   *hobex.TransactionResult
	statusErr      error
	reversalResult *hobex.TransactionResult
	reversalErr    error

	paymentCalls  []hobex.PaymentParams
	statusCalls   []string
	reversalCalls []string
}

func (g *stubGateway) RequestPayment(ctx context.Context, terminal *models.PaymentTerminal, params hobex.PaymentParams) (*hobex.TransactionResult, error) {
	g.paymentCalls = append(g.paymentCalls, params)
	return g.paymentResult, g.paymentErr
}

func (g *stubGateway) RequestStatus(ctx context.Context, terminal *models.PaymentTerminal, transactionID string, sync bool) (*hobex.TransactionResult, error) {
	g.statusCalls = append(g.statusCalls, transactionID)
	return g.statusResult, g.statusErr
}

func (g *stubGateway) RequestReversal(ctx context.Context, terminal *models.PaymentTerminal, transactionID string) (*hobex.TransactionResult, error) {
	g.reversalCalls = append(g.reversalCalls, transactionID)
	return g.reversalResult, g.reversalErr
}

type stubSink struct {
	notifications []Notification
}

func (s *stubSink) Notify(ctx context.Context, n Notification) {
	s.notifications = append(s.notifications, n)
}

func (s *stubSink) lastTitle() string {
	if len(s.notifications) == 0 {
		return ""
	}
	return s.notifications[len(s.notifications)-1].Title
}

func (s *stubSink) lastBody() string {
	if len(s.notifications) == 0 {
		return ""
	}
	return s.notifications[len(s.notifications)-1].Body
}

type stubPrinter struct {
	printed []ReceiptData
}

func (p *stubPrinter) PrintReceipt(ctx context.Context, data ReceiptData) error {
	p.printed = append(p.printed, data)
	return nil
}

type stubLocker struct {
	denied bool
}

func (l *stubLocker) Acquire(ctx context.Context, lineID uuid.UUID) (bool, error) {
	return !l.denied, nil
}

func (l *stubLocker) Release(ctx context.Context, lineID uuid.UUID) error {
	return nil
}

type stubTerminals struct {
	terminal *models.PaymentTerminal
}

func (t *stubTerminals) FindTerminal(ctx context.Context, terminalID uuid.UUID) (*models.PaymentTerminal, error) {
	return t.terminal, nil
}

type memoryRepo struct {
	lines map[uuid.UUID]*models.PaymentLine
	txns  []*models.TerminalTransaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{lines: make(map[uuid.UUID]*models.PaymentLine)}
}

func (r *memoryRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *memoryRepo) CreateLine(ctx context.Context, line *models.PaymentLine) (*models.PaymentLine, error) {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	copied := *line
	r.lines[line.ID] = &copied
	return line, nil
}

func (r *memoryRepo) FindLine(ctx context.Context, lineID uuid.UUID) (*models.PaymentLine, error) {
	line, ok := r.lines[lineID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *line
	return &copied, nil
}

func (r *memoryRepo) SaveLine(ctx context.Context, line *models.PaymentLine) error {
	copied := *line
	r.lines[line.ID] = &copied
	return nil
}

func (r *memoryRepo) UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error {
	return nil
}

func (r *memoryRepo) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	delete(r.lines, lineID)
	return nil
}

func (r *memoryRepo) ListLinesByOrder(ctx context.Context, orderReference string) ([]models.PaymentLine, error) {
	var out []models.PaymentLine
	for _, line := range r.lines {
		if line.OrderReference == orderReference {
			out = append(out, *line)
		}
	}
	return out, nil
}

func (r *memoryRepo) FindPendingLines(ctx context.Context) ([]models.PaymentLine, error) {
	var out []models.PaymentLine
	for _, line := range r.lines {
		if line.Status == enums.PaymentLineStatusWaitingCard && line.TransactionID != "" && line.HobexResponseCode == "" {
			out = append(out, *line)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateTransaction(ctx context.Context, txn *models.TerminalTransaction) (*models.TerminalTransaction, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	r.txns = append(r.txns, txn)
	return txn, nil
}

func (r *memoryRepo) UpdateTransaction(ctx context.Context, tid, transactionID string, updates map[string]any) error {
	return nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, limit int) ([]models.TerminalTransaction, error) {
	var out []models.TerminalTransaction
	for _, txn := range r.txns {
		out = append(out, *txn)
	}
	return out, nil
}

type fixture struct {
	service  Service
	repo     *memoryRepo
	gateway  *stubGateway
	sink     *stubSink
	printer  *stubPrinter
	locker   *stubLocker
	terminal *models.PaymentTerminal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	terminal := &models.PaymentTerminal{
		ID:       uuid.New(),
		Name:     "Kassa 1",
		Tid:      "T100",
		Mode:     enums.TerminalModeTesting,
		Currency: "EUR",
		Enabled:  true,
	}
	f := &fixture{
		repo:     newMemoryRepo(),
		gateway:  &stubGateway{},
		sink:     &stubSink{},
		printer:  &stubPrinter{},
		locker:   &stubLocker{},
		terminal: terminal,
	}

	svc, err := NewService(ServiceParams{
		Repo:      f.repo,
		Gateway:   f.gateway,
		Sink:      f.sink,
		Printer:   f.printer,
		Locker:    f.locker,
		Terminals: &stubTerminals{terminal: terminal},
		Logger:    logger.New(logger.Options{ServiceName: "payments-test"}),
		Rounding:  decimal.RequireFromString("0.01"),
		Currency:  "EUR",
	})
	require.NoError(t, err)
	f.service = svc
	return f
}

func (f *fixture) addLine(t *testing.T, amount string, mutate func(*models.PaymentLine)) uuid.UUID {
	t.Helper()
	line := &models.PaymentLine{
		ID:             uuid.New(),
		OrderReference: "Order0001",
		TerminalID:     f.terminal.ID,
		Amount:         decimal.RequireFromString(amount),
		Currency:       "EUR",
		Status:         enums.PaymentLineStatusPending,
	}
	if mutate != nil {
		mutate(line)
	}
	require.NoError(t, f.repo.SaveLine(context.Background(), line))
	return line.ID
}

func (f *fixture) line(t *testing.T, id uuid.UUID) *models.PaymentLine {
	t.Helper()
	line, err := f.repo.FindLine(context.Background(), id)
	require.NoError(t, err)
	return line
}

func approvedResult(transactionID string, cvm int) *hobex.TransactionResult {
	return &hobex.TransactionResult{
		ResponseCode:  "0",
		ResponseText:  "OK",
		ApprovalCode:  "AP1",
		Brand:         "VISA",
		TransactionID: transactionID,
		Cvm:           cvm,
	}
}

func TestInitiateNegativeAmountNeverCallsGateway(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "-5.00", nil)

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusForceDone, outcome.Status)
	assert.Empty(t, f.gateway.paymentCalls)
	assert.Empty(t, f.gateway.statusCalls)
	assert.Equal(t, "Negative Beträge nicht möglich.", f.sink.lastTitle())
	assert.Empty(t, f.line(t, id).TransactionID)
}

func TestInitiateSettledLineIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.HobexResponseCode = "0"
		line.Status = enums.PaymentLineStatusDone
	})

	for i := 0; i < 3; i++ {
		outcome, err := f.service.InitiatePayment(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, outcome.Settled)
		assert.Equal(t, enums.PaymentLineStatusDone, outcome.Status)
	}
	assert.Empty(t, f.gateway.paymentCalls)
	assert.Empty(t, f.gateway.statusCalls)
}

func TestInitiateRetryNeverReusesDeadTransactionID(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.HobexResponseCode = "8005"
		line.HobexResponseText = "DECLINED"
		line.Status = enums.PaymentLineStatusRetry
	})
	f.gateway.paymentResult = approvedResult("", 0)

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.Settled)
	require.Len(t, f.gateway.paymentCalls, 1)
	assert.NotEqual(t, "1700000000000", f.gateway.paymentCalls[0].TransactionID)
	assert.NotEmpty(t, f.gateway.paymentCalls[0].TransactionID)
}

func TestInitiateApprovedWithoutCvmDoesNotPrint(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)
	f.gateway.paymentResult = approvedResult("", 0)

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusDone, outcome.Status)
	assert.Empty(t, f.printer.printed)

	line := f.line(t, id)
	assert.Equal(t, "0", line.HobexResponseCode)
	assert.Equal(t, "AP1", line.HobexApprovalCode)
	assert.Equal(t, "VISA", line.HobexBrand)
}

func TestInitiateApprovedWithSignaturePrintsReceipt(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)
	result := approvedResult("", 1)
	result.Receipt = "HÄNDLERBELEG\r\nUNTERSCHRIFT: ____"
	f.gateway.paymentResult = result

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.Settled)
	require.Len(t, f.printer.printed, 1)
	assert.Contains(t, f.printer.printed[0].Receipt, "HÄNDLERBELEG\nUNTERSCHRIFT")
	assert.NotContains(t, f.printer.printed[0].Receipt, "\r\n")
}

func TestInitiateAbortedAtTerminal(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)
	f.gateway.paymentResult = &hobex.TransactionResult{ResponseCode: "8004", ResponseText: "ABORT"}

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusRetry, outcome.Status)
	assert.Contains(t, f.sink.lastBody(), "abgebrochen")
}

func TestInitiateTerminalUnreachable(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)
	f.gateway.paymentResult = &hobex.TransactionResult{ResponseCode: "8003", ResponseText: "UNREACHABLE"}

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusRetry, outcome.Status)
	assert.Equal(t, "hobex Gerätefehler", f.sink.lastTitle())
}

func TestInitiateUnclassifiedDeclineExposesRawCode(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)
	f.gateway.paymentResult = &hobex.TransactionResult{ResponseCode: "9123", ResponseText: "SOME ERROR"}

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Equal(t, "9123: SOME ERROR", f.sink.lastBody())
}

func TestInitiateTransportFailureKeepsTransactionID(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)
	f.gateway.paymentErr = &hobex.TransportError{Op: "payment", Err: context.DeadlineExceeded}

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusRetry, outcome.Status)

	line := f.line(t, id)
	require.Len(t, f.gateway.paymentCalls, 1)
	assert.Equal(t, f.gateway.paymentCalls[0].TransactionID, line.TransactionID)
	assert.Empty(t, line.HobexResponseCode)

	// The next attempt must poll status instead of starting a new payment.
	f.gateway.statusErr = nil
	f.gateway.statusResult = &hobex.TransactionResult{ResponseCode: "0", ResponseText: "OK", State: "OK", TransactionID: line.TransactionID}
	outcome, err = f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.Settled)
	assert.Len(t, f.gateway.paymentCalls, 1)
	require.Len(t, f.gateway.statusCalls, 1)
	assert.Equal(t, line.TransactionID, f.gateway.statusCalls[0])
}

func TestInitiateRoundsAmountToRoundingStep(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.005", nil)
	f.gateway.paymentResult = approvedResult("", 0)

	_, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, f.gateway.paymentCalls, 1)
	assert.InDelta(t, 10.01, f.gateway.paymentCalls[0].Amount, 0.0001)
}

func TestInitiateLockedLineSettlesFalse(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)
	f.locker.denied = true

	outcome, err := f.service.InitiatePayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Empty(t, f.gateway.paymentCalls)
	assert.NotEmpty(t, f.sink.notifications)
}

func TestPollStatusOKPreservesAmount(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.Status = enums.PaymentLineStatusWaitingCard
	})
	f.gateway.statusResult = &hobex.TransactionResult{ResponseCode: "0", ResponseText: "OK", State: "OK", TransactionID: "1700000000000"}

	outcome, err := f.service.PollStatus(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusDone, outcome.Status)

	line := f.line(t, id)
	assert.True(t, line.Amount.Equal(decimal.RequireFromString("10.00")))
}

func TestPollStatusVoidZeroesAmount(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.Status = enums.PaymentLineStatusWaitingCard
	})
	f.gateway.statusResult = &hobex.TransactionResult{ResponseCode: "0", ResponseText: "VOID", State: "VOID", TransactionID: "1700000000000"}

	outcome, err := f.service.PollStatus(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusReversed, outcome.Status)

	line := f.line(t, id)
	assert.True(t, line.Amount.IsZero())
}

func TestPollStatusTransportFailurePropagates(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.Status = enums.PaymentLineStatusWaitingCard
	})
	f.gateway.statusErr = &hobex.TransportError{Op: "status", Err: context.DeadlineExceeded}

	_, err := f.service.PollStatus(context.Background(), id)
	require.Error(t, err)
	assert.True(t, hobex.IsTransport(err))
	assert.Equal(t, enums.PaymentLineStatusWaiting, f.line(t, id).Status)
}

func TestPollStatusBackendErrorSettlesFalse(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.Status = enums.PaymentLineStatusWaitingCard
	})
	f.gateway.statusErr = pkgerrors.New(pkgerrors.CodeNotFound, "hobex transaction not found")

	outcome, err := f.service.PollStatus(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusRetry, outcome.Status)
}

func TestReversalApproved(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.HobexResponseCode = "0"
		line.Status = enums.PaymentLineStatusDone
	})
	f.gateway.reversalResult = &hobex.TransactionResult{ResponseCode: "0", ResponseText: "VOID", TransactionID: "1700000000000"}

	outcome, err := f.service.ReversePayment(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusReversed, outcome.Status)
}

func TestReversalDeclinedStaysReversing(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.HobexResponseCode = "0"
		line.Status = enums.PaymentLineStatusDone
	})
	f.gateway.reversalResult = &hobex.TransactionResult{ResponseCode: "9001", ResponseText: "NOT POSSIBLE"}

	outcome, err := f.service.ReversePayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Equal(t, enums.PaymentLineStatusReversing, outcome.Status)
	assert.Equal(t, enums.PaymentLineStatusReversing, f.line(t, id).Status)
	assert.Equal(t, "9001: NOT POSSIBLE", f.sink.lastBody())
}

func TestReversalRequiresSettledLine(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", nil)

	_, err := f.service.ReversePayment(context.Background(), id)
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
}

func TestCancelAlwaysRefusesWithoutGateway(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.Status = enums.PaymentLineStatusWaitingCard
	})

	outcome, err := f.service.CancelPayment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, outcome.Settled)
	assert.Empty(t, f.gateway.paymentCalls)
	assert.Empty(t, f.gateway.statusCalls)
	assert.Empty(t, f.gateway.reversalCalls)
	assert.Equal(t, "Die Zahlung muss am Terminal abgebrochen werden !", f.sink.lastBody())
}

func TestDeleteSettledLineRefused(t *testing.T) {
	f := newFixture(t)
	id := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.HobexResponseCode = "0"
		line.Status = enums.PaymentLineStatusDone
	})

	err := f.service.DeleteLine(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, f.sink.lastBody(), "erfolgreich")

	_, findErr := f.repo.FindLine(context.Background(), id)
	assert.NoError(t, findErr)
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	svc := f.service

	tests := []struct {
		name    string
		mutate  func(*models.PaymentLine)
		allowed bool
	}{
		{
			name:    "no transaction",
			mutate:  nil,
			allowed: true,
		},
		{
			name: "retry status",
			mutate: func(line *models.PaymentLine) {
				line.TransactionID = "1"
				line.Status = enums.PaymentLineStatusRetry
			},
			allowed: true,
		},
		{
			name: "aborted at terminal",
			mutate: func(line *models.PaymentLine) {
				line.TransactionID = "1"
				line.HobexResponseCode = "8004"
				line.Status = enums.PaymentLineStatusWaitingCard
			},
			allowed: true,
		},
		{
			name: "terminal unreachable",
			mutate: func(line *models.PaymentLine) {
				line.TransactionID = "1"
				line.HobexResponseCode = "8003"
				line.Status = enums.PaymentLineStatusWaitingCard
			},
			allowed: true,
		},
		{
			name: "settled",
			mutate: func(line *models.PaymentLine) {
				line.TransactionID = "1"
				line.HobexResponseCode = "0"
				line.Status = enums.PaymentLineStatusDone
			},
			allowed: false,
		},
		{
			name: "ambiguous response",
			mutate: func(line *models.PaymentLine) {
				line.TransactionID = "1"
				line.HobexResponseCode = "9001"
				line.HobexResponseText = "UNKNOWN"
				line.Status = enums.PaymentLineStatusWaitingCard
			},
			allowed: false,
		},
		{
			name: "no response yet",
			mutate: func(line *models.PaymentLine) {
				line.TransactionID = "1"
				line.Status = enums.PaymentLineStatusWaitingCard
			},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := &models.PaymentLine{
				ID:         uuid.New(),
				TerminalID: f.terminal.ID,
				Amount:     decimal.RequireFromString("10.00"),
				Status:     enums.PaymentLineStatusPending,
			}
			if tt.mutate != nil {
				tt.mutate(line)
			}
			err := svc.CanDeleteLine(context.Background(), line)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRecoverPendingPollsStuckLines(t *testing.T) {
	f := newFixture(t)
	stuck := f.addLine(t, "10.00", func(line *models.PaymentLine) {
		line.TransactionID = "1700000000000"
		line.Status = enums.PaymentLineStatusWaitingCard
	})
	f.addLine(t, "5.00", nil) // untouched line, not pending
	f.gateway.statusResult = &hobex.TransactionResult{ResponseCode: "0", ResponseText: "OK", State: "OK", TransactionID: "1700000000000"}

	require.NoError(t, f.service.RecoverPending(context.Background()))
	assert.Len(t, f.gateway.statusCalls, 1)
	assert.Equal(t, enums.PaymentLineStatusDone, f.line(t, stuck).Status)
}

func TestTransactionIDsAreStrictlyMonotonic(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	source := newTxIDSource(func() time.Time { return base })

	first := source.Next()
	second := source.Next()
	assert.Equal(t, "1700000000000", first)
	assert.Equal(t, "1700000000001", second)
	assert.NotEqual(t, first, second)
}
