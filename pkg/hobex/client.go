package hobex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/callino/pos-hobex-bridge/pkg/config"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
	"github.com/callino/pos-hobex-bridge/pkg/metrics"
)

// PaymentPath is the payment endpoint, exported for audit logging.
const PaymentPath = "/api/transaction/payment"

const (
	loginPath    = "/api/account/login"
	statusPath   = "/api/v2/transactions"
	downloadPath = "/api/transaction/download"

	stateInProgress = "INPROGRESS"

	transactionTypePayment = 1

	loginTimeout   = 15 * time.Second
	receiptTimeout = 10 * time.Second
	receiptWidth   = "32"
)

var errLoggerRequired = errors.New("hobex logger is required")

// Client talks to the hobex terminal backend with centralized auth headers,
// logging, metrics, and error mapping. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        config.HobexConfig
	logger     *logger.Logger
	metrics    *metrics.TerminalMetrics
}

// NewClient initializes the hobex wrapper. Request deadlines come from the
// per-operation timeouts in cfg, not from the http.Client.
func NewClient(cfg config.HobexConfig, logg *logger.Logger, metr *metrics.TerminalMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logg,
		metrics:    metr,
	}, nil
}

// Login exchanges terminal credentials for a session token.
func (c *Client) Login(ctx context.Context, baseURL, user, password string) (string, error) {
	c.log(ctx, "request", "login", map[string]any{"user": user, "password": password})

	body, err := json.Marshal(loginRequest{UserName: user, Password: password})
	if err != nil {
		return "", fmt.Errorf("marshal login request: %w", err)
	}

	status, payload, err := c.do(ctx, "login", http.MethodPost, joinURL(baseURL, loginPath), body, "", loginTimeout)
	if err != nil {
		c.observe("login", "transport_error")
		return "", err
	}

	var resp loginResponse
	if status == http.StatusUnauthorized {
		_ = json.Unmarshal(payload, &resp)
		c.observe("login", "declined")
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "hobex authentication failed").WithDetails(resp.Message)
	}
	if status != http.StatusOK {
		c.observe("login", "declined")
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("hobex login returned status %d", status))
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.observe("login", "declined")
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding hobex login response")
	}
	if resp.Token == "" {
		c.observe("login", "declined")
		return "", pkgerrors.New(pkgerrors.CodeDependency, "hobex login response missing token")
	}

	c.observe("login", "ok")
	c.log(ctx, "response", "login", map[string]any{"token": resp.Token})
	return resp.Token, nil
}

// RequestPayment submits a payment to the terminal and blocks until the
// cardholder interaction finishes or the payment timeout elapses. A transport
// error does not mean the payment failed; the transaction may still complete
// on the terminal and must be resolved via RequestStatus.
func (c *Client) RequestPayment(ctx context.Context, creds Credentials, params PaymentParams) (*TransactionResult, error) {
	c.log(ctx, "request", "payment", map[string]any{
		"tid":            creds.Tid,
		"transaction_id": params.TransactionID,
		"reference":      params.Reference,
		"amount":         params.Amount,
		"currency":       params.Currency,
	})

	body, err := json.Marshal(paymentRequest{Transaction: paymentTransaction{
		TransactionType: transactionTypePayment,
		Amount:          params.Amount,
		Currency:        params.Currency,
		Tid:             creds.Tid,
		Reference:       params.Reference,
		TransactionID:   params.TransactionID,
		Language:        c.language(),
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	status, payload, err := c.do(ctx, "payment", http.MethodPost, joinURL(creds.BaseURL, PaymentPath), body, creds.Token, c.cfg.PaymentTimeout)
	if err != nil {
		c.observe("payment", "transport_error")
		return nil, err
	}
	return c.finishResult(ctx, "payment", creds, status, payload)
}

// RequestStatus fetches the backend's view of a transaction. With sync=true it
// polls while the terminal reports INPROGRESS, mirroring the backend's own
// recommendation of up to 12 attempts 5 seconds apart.
func (c *Client) RequestStatus(ctx context.Context, creds Credentials, transactionID string, sync bool) (*TransactionResult, error) {
	c.log(ctx, "request", "status", map[string]any{
		"tid":            creds.Tid,
		"transaction_id": transactionID,
		"sync":           sync,
	})

	endpoint := joinURL(creds.BaseURL, fmt.Sprintf("%s/%s/%s", statusPath, url.PathEscape(creds.Tid), url.PathEscape(transactionID)))

	attempts := 1
	if sync {
		attempts = c.cfg.StatusRetries
		if attempts < 1 {
			attempts = 1
		}
	}

	var result *TransactionResult
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.cfg.StatusRetryWait); err != nil {
				return nil, &TransportError{Op: "status", Err: err}
			}
		}

		status, payload, err := c.do(ctx, "status", http.MethodGet, endpoint, nil, creds.Token, c.cfg.StatusTimeout)
		if err != nil {
			c.observe("status", "transport_error")
			return nil, err
		}
		result, err = c.finishResult(ctx, "status", creds, status, payload)
		if err != nil {
			return nil, err
		}
		if !sync || !result.InProgress() {
			break
		}
	}
	return result, nil
}

// RequestReversal voids a transaction on the terminal backend.
func (c *Client) RequestReversal(ctx context.Context, creds Credentials, transactionID string) (*TransactionResult, error) {
	c.log(ctx, "request", "reversal", map[string]any{
		"tid":            creds.Tid,
		"transaction_id": transactionID,
	})

	endpoint := joinURL(creds.BaseURL, fmt.Sprintf("%s/%s/%s", PaymentPath, url.PathEscape(creds.Tid), url.PathEscape(transactionID)))
	status, payload, err := c.do(ctx, "reversal", http.MethodDelete, endpoint, nil, creds.Token, c.cfg.ReversalTimeout)
	if err != nil {
		c.observe("reversal", "transport_error")
		return nil, err
	}
	return c.finishResult(ctx, "reversal", creds, status, payload)
}

// DownloadReceipt fetches the plain-text merchant receipt for a transaction.
func (c *Client) DownloadReceipt(ctx context.Context, creds Credentials, transactionID string) (string, error) {
	query := url.Values{}
	query.Set("tid", creds.Tid)
	query.Set("transactionId", transactionID)
	query.Set("width", receiptWidth)
	query.Set("type", "txt")
	query.Set("raw", "true")

	endpoint := joinURL(creds.BaseURL, downloadPath) + "?" + query.Encode()
	status, payload, err := c.do(ctx, "receipt", http.MethodGet, endpoint, nil, creds.Token, receiptTimeout)
	if err != nil {
		c.observe("receipt", "transport_error")
		return "", err
	}
	if status != http.StatusOK {
		c.observe("receipt", "declined")
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("hobex receipt download returned status %d", status))
	}
	c.observe("receipt", "ok")
	return string(payload), nil
}

// finishResult maps an HTTP status + body onto a TransactionResult, pulling in
// the merchant receipt when the cardholder verified by signature.
func (c *Client) finishResult(ctx context.Context, op string, creds Credentials, status int, payload []byte) (*TransactionResult, error) {
	switch {
	case status == http.StatusNotFound:
		c.observe(op, "declined")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "hobex transaction not found")
	case status == http.StatusUnauthorized:
		c.observe(op, "declined")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "hobex token rejected")
	case status != http.StatusOK:
		c.observe(op, "declined")
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("hobex %s returned status %d", op, status)).WithDetails(string(payload))
	}

	var result TransactionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		c.observe(op, "declined")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decoding hobex %s response", op))
	}
	result.Raw = string(payload)

	if result.Approved() && result.CardholderVerified() && result.Receipt == "" {
		receipt, err := c.DownloadReceipt(ctx, creds, result.TransactionID)
		if err != nil {
			// The payment itself succeeded; surface the receipt failure in the log only.
			c.log(ctx, "error", op, map[string]any{"error": err.Error(), "transaction_id": result.TransactionID})
		} else {
			result.Receipt = receipt
		}
	}

	if result.Approved() {
		c.observe(op, "ok")
	} else {
		c.observe(op, "declined")
	}
	c.log(ctx, "response", op, map[string]any{
		"response_code":  result.ResponseCode,
		"response_text":  result.ResponseText,
		"transaction_id": result.TransactionID,
		"state":          result.State,
	})
	return &result, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, token string, timeout time.Duration) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Token", token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	c.duration(op, time.Since(started))
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	return resp.StatusCode, payload, nil
}

func (c *Client) language() string {
	if strings.TrimSpace(c.cfg.Language) == "" {
		return "DE"
	}
	return c.cfg.Language
}

func (c *Client) observe(op, outcome string) {
	if c.metrics != nil {
		c.metrics.IncRequest(op, outcome)
	}
}

func (c *Client) duration(op string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveDuration(op, d)
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("hobex %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("hobex %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	switch strings.ToLower(key) {
	case "password", "token":
		return "[REDACTED]"
	default:
		return value
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
