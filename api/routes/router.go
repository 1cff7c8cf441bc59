package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duka/supermarket-backend/api/controllers"
	webhookcontrollers "github.com/duka/supermarket-backend/api/controllers/webhooks"
	"github.com/duka/supermarket-backend/api/middleware"
	"github.com/duka/supermarket-backend/internal/compensation"
	"github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/internal/payments"
	"github.com/duka/supermarket-backend/pkg/config"
	"github.com/duka/supermarket-backend/pkg/logger"
)

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Gatherer     prometheus.Gatherer
	Orders       orders.Service
	Payments     payments.Service
	Compensation compensation.Service
	Ledger       controllers.LedgerHistory
	DLQ          controllers.DLQLister
	Callbacks    webhookcontrollers.CallbackHandler
	Guard        webhookcontrollers.CallbackGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post(callbackRoute(cfg.Mpesa.CallbackPath), webhookcontrollers.MpesaCallback(deps.Callbacks, deps.Guard, callbackTimeout(cfg), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.GetOrder(deps.Orders, logg))
				r.Post("/cancel", controllers.CancelOrder(deps.Orders, logg))
				r.Post("/payments", controllers.InitiatePayment(deps.Payments, logg))
				r.Get("/payment-status", controllers.PaymentStatus(deps.Payments, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireCompensator(logg))

		r.Post("/payments/{paymentId}/refund", controllers.AdminRefund(deps.Compensation, logg))
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/stock-deductions", controllers.AdminStockDeduction(deps.Compensation, logg))
			r.Post("/stock-rollbacks", controllers.AdminStockRollback(deps.Compensation, logg))
			r.Get("/stock-ledger", controllers.AdminStockLedger(deps.Ledger, logg))
			r.Post("/status", controllers.AdminOrderStatus(deps.Orders, logg))
		})
		r.Get("/outbox/dlq", controllers.AdminOutboxDLQ(deps.DLQ, logg))
	})

	return r
}

const defaultCallbackRoute = "/payments/mpesa/callback"

// callbackRoute maps the configured gateway callback path onto the /api/v1
// subrouter. Paths outside /api/v1 fall back to the default route.
func callbackRoute(path string) string {
	const prefix = "/api/v1"
	if strings.HasPrefix(path, prefix+"/") {
		return strings.TrimPrefix(path, prefix)
	}
	return defaultCallbackRoute
}

func callbackTimeout(cfg *config.Config) time.Duration {
	if cfg.Mpesa.CallbackTimeout > 0 {
		return cfg.Mpesa.CallbackTimeout
	}
	return 10 * time.Second
}
