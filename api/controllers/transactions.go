package controllers

import (
	"net/http"
	"time"

	"github.com/callino/pos-hobex-bridge/api/responses"
	"github.com/callino/pos-hobex-bridge/api/validators"
	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

const (
	defaultTransactionLimit = 100
	maxTransactionLimit     = 500
)

type transactionView struct {
	ID              string    `json:"id"`
	TerminalID      string    `json:"terminal_id"`
	Reference       string    `json:"reference"`
	TransactionID   string    `json:"transaction_id"`
	Tid             string    `json:"tid"`
	TransactionType int       `json:"transaction_type"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	URL             string    `json:"url"`
	Message         string    `json:"message,omitempty"`
	ResponseCode    string    `json:"response_code"`
	ResponseText    string    `json:"response_text"`
	State           string    `json:"state"`
	TransactionDate time.Time `json:"transaction_date"`
}

func transactionViewFrom(txn *models.TerminalTransaction) transactionView {
	return transactionView{
		ID:              txn.ID.String(),
		TerminalID:      txn.TerminalID.String(),
		Reference:       txn.Reference,
		TransactionID:   txn.TransactionID,
		Tid:             txn.Tid,
		TransactionType: txn.TransactionType,
		Amount:          txn.Amount.StringFixed(2),
		Currency:        txn.Currency,
		URL:             txn.URL,
		Message:         txn.Message,
		ResponseCode:    txn.ResponseCode,
		ResponseText:    txn.ResponseText,
		State:           txn.State.String(),
		TransactionDate: txn.TransactionDate,
	}
}

// ListTransactions returns the most recent terminal audit rows.
func ListTransactions(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultTransactionLimit, 1, maxTransactionLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListTransactions(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]transactionView, 0, len(rows))
		for i := range rows {
			views = append(views, transactionViewFrom(&rows[i]))
		}
		responses.WriteSuccess(w, views)
	}
}
