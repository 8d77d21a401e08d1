package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callino/pos-hobex-bridge/api/controllers"
	"github.com/callino/pos-hobex-bridge/api/middleware"
	"github.com/callino/pos-hobex-bridge/internal/notifications"
	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/internal/terminals"
	"github.com/callino/pos-hobex-bridge/pkg/config"
	"github.com/callino/pos-hobex-bridge/pkg/db"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
	"github.com/callino/pos-hobex-bridge/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Payments      payments.Service
	Terminals     terminals.Service
	Notifications notifications.Service
	Metrics       prometheus.Gatherer
}

// NewRouter builds the API router.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var cache db.Pinger
	if params.Redis != nil {
		cache = params.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, cache))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/terminals", func(r chi.Router) {
		r.Post("/", controllers.CreateTerminal(params.Terminals, logg))
		r.Get("/", controllers.ListTerminals(params.Terminals, logg))
		r.Get("/{terminalID}", controllers.GetTerminal(params.Terminals, logg))
		r.Post("/{terminalID}/token", controllers.RenewTerminalToken(params.Terminals, logg))
		r.Post("/renew-tokens", controllers.RenewTerminalTokens(params.Terminals, logg))
	})

	r.Route("/api/v1/lines", func(r chi.Router) {
		r.Post("/", controllers.CreateLine(params.Payments, logg))
		r.Get("/", controllers.ListLinesByOrder(params.Payments, logg))
		r.Get("/{lineID}", controllers.GetLine(params.Payments, logg))
		r.Delete("/{lineID}", controllers.DeleteLine(params.Payments, logg))
		r.Post("/{lineID}/payment", controllers.InitiatePayment(params.Payments, logg))
		r.Post("/{lineID}/status", controllers.PollStatus(params.Payments, logg))
		r.Post("/{lineID}/reversal", controllers.ReversePayment(params.Payments, logg))
		r.Post("/{lineID}/cancel", controllers.CancelPayment(params.Payments, logg))
		r.Get("/{lineID}/receipt-data", controllers.LineReceipt(params.Payments, logg))
	})

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/", controllers.ListNotifications(params.Notifications, logg))
		r.Post("/{notificationID}/read", controllers.MarkNotificationRead(params.Notifications, logg))
		r.Post("/read-all", controllers.MarkAllNotificationsRead(params.Notifications, logg))
	})

	r.Get("/api/v1/transactions", controllers.ListTransactions(params.Payments, logg))

	return r
}
