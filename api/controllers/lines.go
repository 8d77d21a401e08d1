package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/callino/pos-hobex-bridge/api/responses"
	"github.com/callino/pos-hobex-bridge/api/validators"
	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	pkgerrors "github.com/callino/pos-hobex-bridge/pkg/errors"
	"github.com/callino/pos-hobex-bridge/pkg/hobex"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

type createLineRequest struct {
	OrderReference string `json:"order_reference" validate:"required,max=64"`
	TerminalID     string `json:"terminal_id" validate:"required,uuid4"`
	Amount         string `json:"amount" validate:"required"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
}

// lineView is the API projection of a payment line. The terminal response
// fields keep their hobex_* wire names so POS clients can read them verbatim.
type lineView struct {
	ID             string `json:"id"`
	OrderReference string `json:"order_reference"`
	TerminalID     string `json:"terminal_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	TransactionID  string `json:"transaction_id"`
	payments.LineFields
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func lineViewFrom(line *models.PaymentLine) lineView {
	return lineView{
		ID:             line.ID.String(),
		OrderReference: line.OrderReference,
		TerminalID:     line.TerminalID.String(),
		Amount:         line.Amount.StringFixed(2),
		Currency:       line.Currency,
		Status:         line.Status.String(),
		TransactionID:  line.TransactionID,
		LineFields:     payments.LineFieldsFrom(line),
		CreatedAt:      line.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      line.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func lineViewsFrom(lines []models.PaymentLine) []lineView {
	views := make([]lineView, 0, len(lines))
	for i := range lines {
		views = append(views, lineViewFrom(&lines[i]))
	}
	return views
}

// CreateLine opens a payment line for an order.
func CreateLine(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLineRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		terminalID, err := validators.ParsePathUUID(req.TerminalID, "terminal_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.CreateLine(r.Context(), payments.CreateLineInput{
			OrderReference: req.OrderReference,
			TerminalID:     terminalID,
			Amount:         req.Amount,
			Currency:       req.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, lineViewFrom(line))
	}
}

// GetLine returns one payment line with its terminal response fields.
func GetLine(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineID"), "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		line, err := svc.GetLine(r.Context(), lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lineViewFrom(line))
	}
}

// ListLinesByOrder returns the payment lines attached to an order reference.
func ListLinesByOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference := strings.TrimSpace(r.URL.Query().Get("order_reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_reference is required"))
			return
		}
		lines, err := svc.ListLinesByOrder(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lineViewsFrom(lines))
	}
}

// InitiatePayment submits the line to the terminal and reports the outcome.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc.InitiatePayment, logg)
}

// PollStatus re-queries the terminal for the line's in-flight transaction.
// An unreachable terminal surfaces as a dependency failure so the POS can
// retry the poll, not the payment.
func PollStatus(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineID"), "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := svc.PollStatus(r.Context(), lineID)
		if err != nil {
			if hobex.IsTransport(err) {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "terminal unreachable")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

// ReversePayment voids a settled line on the terminal.
func ReversePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc.ReversePayment, logg)
}

// CancelPayment handles a cashier-side abort request.
func CancelPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc.CancelPayment, logg)
}

// DeleteLine removes a line when its payment state allows it.
func DeleteLine(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineID"), "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteLine(r.Context(), lineID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

// LineReceipt returns the printable receipt projection for a settled line.
func LineReceipt(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineID"), "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		data, err := svc.ReceiptData(r.Context(), lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, data)
	}
}

func lifecycleHandler(op func(ctx context.Context, lineID uuid.UUID) (*payments.Outcome, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineID"), "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := op(r.Context(), lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
