package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/callino/pos-hobex-bridge/api/responses"
	"github.com/callino/pos-hobex-bridge/api/validators"
	"github.com/callino/pos-hobex-bridge/internal/terminals"
	"github.com/callino/pos-hobex-bridge/pkg/db/models"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

type createTerminalRequest struct {
	Name     string `json:"name" validate:"omitempty,max=64"`
	Tid      string `json:"tid" validate:"required,max=32"`
	Mode     string `json:"mode" validate:"required,oneof=testing production"`
	User     string `json:"user" validate:"required"`
	Password string `json:"password" validate:"required"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// terminalView hides the terminal's login credentials from API responses.
type terminalView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Tid      string `json:"tid"`
	Mode     string `json:"mode"`
	Currency string `json:"currency"`
	Enabled  bool   `json:"enabled"`
}

func terminalViewFrom(terminal *models.PaymentTerminal) terminalView {
	return terminalView{
		ID:       terminal.ID.String(),
		Name:     terminal.Name,
		Tid:      terminal.Tid,
		Mode:     terminal.Mode.String(),
		Currency: terminal.Currency,
		Enabled:  terminal.Enabled,
	}
}

// CreateTerminal registers a hobex terminal.
func CreateTerminal(svc terminals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTerminalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		terminal, err := svc.CreateTerminal(r.Context(), terminals.CreateTerminalInput{
			Name:     req.Name,
			Tid:      req.Tid,
			Mode:     req.Mode,
			User:     req.User,
			Password: req.Password,
			Currency: req.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, terminalViewFrom(terminal))
	}
}

// GetTerminal returns one registered terminal.
func GetTerminal(svc terminals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		terminalID, err := validators.ParsePathUUID(chi.URLParam(r, "terminalID"), "terminalID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		terminal, err := svc.FindTerminal(r.Context(), terminalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, terminalViewFrom(terminal))
	}
}

// ListTerminals returns every registered terminal.
func ListTerminals(svc terminals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListTerminals(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]terminalView, 0, len(rows))
		for i := range rows {
			views = append(views, terminalViewFrom(&rows[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

// RenewTerminalToken forces a fresh login for a single terminal.
func RenewTerminalToken(svc terminals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		terminalID, err := validators.ParsePathUUID(chi.URLParam(r, "terminalID"), "terminalID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		terminal, err := svc.FindTerminal(r.Context(), terminalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.Token(r.Context(), terminal, true); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"renewed": true})
	}
}

// RenewTerminalTokens forces a fresh login for every enabled terminal.
func RenewTerminalTokens(svc terminals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.RenewAllTokens(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"renewed": true})
	}
}
