package printing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/pkg/config"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

func receiptFixture() payments.ReceiptData {
	data := payments.ReceiptData{
		Amount:   decimal.RequireFromString("10.50"),
		Currency: "EUR",
	}
	data.Tid = "T100"
	data.TransactionID = "1700000000000"
	data.Brand = "VISA"
	data.Receipt = "KAUF\nVISA\nEUR 10,50\n"
	return data
}

func newTestPrinter(t *testing.T, endpoint string) payments.ReceiptPrinter {
	t.Helper()
	printer, err := NewPrinter(config.PrinterConfig{Endpoint: endpoint, Width: 32}, logger.New(logger.Options{ServiceName: "printing-test"}))
	require.NoError(t, err)
	return printer
}

func TestPrinterShipsRenderedDocument(t *testing.T) {
	var got printJob
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	printer := newTestPrinter(t, server.URL)
	require.NoError(t, printer.PrintReceipt(context.Background(), receiptFixture()))

	assert.Equal(t, "T100", got.Tid)
	assert.Equal(t, "1700000000000", got.TransactionID)
	assert.Contains(t, got.Document, "KAUF\nVISA\nEUR 10,50")
	assert.Contains(t, got.Document, "VISA 10.50 EUR")
	assert.Contains(t, got.Document, strings.Repeat("-", 32))
}

func TestPrinterReportsRejectedJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	printer := newTestPrinter(t, server.URL)
	err := printer.PrintReceipt(context.Background(), receiptFixture())
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeDependency, domainErr.Code())
}

func TestPrinterUnreachableIsDependencyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	printer := newTestPrinter(t, server.URL)
	err := printer.PrintReceipt(context.Background(), receiptFixture())
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeDependency, domainErr.Code())
}

func TestNewPrinterWithoutEndpointIsDisabled(t *testing.T) {
	printer, err := NewPrinter(config.PrinterConfig{}, logger.New(logger.Options{ServiceName: "printing-test"}))
	require.NoError(t, err)
	assert.Nil(t, printer)
}
