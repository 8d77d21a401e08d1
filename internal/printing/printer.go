package printing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/pkg/config"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

const defaultWidth = 32

// printJob is the payload shipped to the receipt printer endpoint.
type printJob struct {
	Tid           string `json:"tid"`
	TransactionID string `json:"transaction_id"`
	Document      string `json:"document"`
}

// httpPrinter ships rendered receipts to a printer spooler over HTTP. The
// payment flow treats printing as best effort, so callers log returned errors
// instead of failing the payment.
type httpPrinter struct {
	httpClient *http.Client
	cfg        config.PrinterConfig
	logger     *logger.Logger
}

// NewPrinter builds the HTTP receipt printer. It returns a nil printer when
// no endpoint is configured; the payments service skips printing in that case.
func NewPrinter(cfg config.PrinterConfig, logg *logger.Logger) (payments.ReceiptPrinter, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &httpPrinter{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logg,
	}, nil
}

func (p *httpPrinter) PrintReceipt(ctx context.Context, data payments.ReceiptData) error {
	job := printJob{
		Tid:           data.Tid,
		TransactionID: data.TransactionID,
		Document:      renderDocument(data, p.cfg.Width),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding print job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building print request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reaching printer")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pkgerrors.New(pkgerrors.CodeDependency, "printer rejected receipt").
			WithDetails(fmt.Sprintf("status %d", resp.StatusCode))
	}

	p.logger.Info(p.logger.WithTransactionID(ctx, data.TransactionID), "receipt printed")
	return nil
}
