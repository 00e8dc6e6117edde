package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookloop/orderflow/api/controllers"
	ordercontrollers "github.com/bookloop/orderflow/api/controllers/orders"
	webhookcontrollers "github.com/bookloop/orderflow/api/controllers/webhooks"
	"github.com/bookloop/orderflow/api/middleware"
	"github.com/bookloop/orderflow/pkg/config"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/metrics"
	"github.com/bookloop/orderflow/pkg/redis"
)

// Engine is everything the HTTP surface asks of the fulfillment engine.
type Engine interface {
	ordercontrollers.Service
	controllers.BalanceService
	controllers.AdminService
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	idempotencyStore redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	engine Engine,
	paymentWebhooks webhookcontrollers.PaymentWebhookService,
	courierWebhooks webhookcontrollers.CourierWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.URLs.FrontendURL),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/courier", webhookcontrollers.CourierWebhook(courierWebhooks, logg))
		r.Post("/{provider}", webhookcontrollers.PaymentWebhook(paymentWebhooks, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/ping", controllers.PrivatePing())
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(engine, logg))
			r.Post("/checkout", ordercontrollers.Checkout(engine, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(engine, logg))
			r.Post("/{orderId}/commit", ordercontrollers.Commit(engine, logg))
			r.Post("/{orderId}/decline", ordercontrollers.Decline(engine, logg))
			r.Post("/{orderId}/shipment", ordercontrollers.AttachShipment(engine, logg))
			r.Post("/{orderId}/refund", ordercontrollers.Refund(engine, logg))
		})
		r.Get("/wallet/balance", controllers.WalletBalance(engine, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.ActorRoleAdmin), logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/ping", controllers.AdminPing())
		r.Post("/orders/{orderId}/reconcile", controllers.AdminReconcile(engine, logg))
		r.Put("/settings/{key}", controllers.AdminUpdateSetting(engine, logg))
	})

	return r
}
