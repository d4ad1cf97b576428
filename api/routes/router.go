package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-fulfillment/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-fulfillment/api/controllers/orders"
	returncontrollers "github.com/angelmondragon/storefront-fulfillment/api/controllers/returns"
	webhookcontrollers "github.com/angelmondragon/storefront-fulfillment/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-fulfillment/api/middleware"
	"github.com/angelmondragon/storefront-fulfillment/internal/notifications"
	"github.com/angelmondragon/storefront-fulfillment/internal/orders"
	"github.com/angelmondragon/storefront-fulfillment/internal/returns"
	paymentwebhook "github.com/angelmondragon/storefront-fulfillment/internal/webhooks/payments"
	"github.com/angelmondragon/storefront-fulfillment/pkg/config"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/metrics"
	"github.com/angelmondragon/storefront-fulfillment/pkg/redis"
)

type redisStore interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type webhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

type webhookMetrics interface {
	IncWebhook(event, outcome string)
}

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	Ready         map[string]controllers.Pinger
	Redis         redisStore
	Orders        orders.Service
	Returns       returns.Service
	Documents     ordercontrollers.DocumentSource
	Notifications notifications.Service
	Webhook       *paymentwebhook.Service
	WebhookGuard  *paymentwebhook.IdempotencyGuard
	Verifier      webhookVerifier
	Metrics       webhookMetrics
	Gatherer      prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	orderCreatePolicy := middleware.NewRateLimitPolicy("orders-create", cfg.RateLimit.OrderCreateWindow, cfg.RateLimit.OrderCreateLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.RateLimit.WebhookWindow, cfg.RateLimit.WebhookLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, deps.Redis, logg)).
			Post("/payments", webhookcontrollers.PaymentWebhook(deps.Webhook, deps.Verifier, deps.WebhookGuard, deps.Metrics, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleCustomer, enums.RoleAdmin))

			r.Route("/orders", func(r chi.Router) {
				r.With(middleware.RateLimit(orderCreatePolicy, deps.Redis, logg)).
					Post("/create", ordercontrollers.Create(deps.Orders, logg))
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
				r.Post("/{orderId}/payment-success", ordercontrollers.PaymentSuccess(deps.Orders, logg))
			})

			r.Route("/returns", func(r chi.Router) {
				r.Post("/", returncontrollers.Request(deps.Returns, logg))
				r.Get("/", returncontrollers.List(deps.Returns, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.AdminList(deps.Orders, logg))
				r.Put("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.Post("/{orderId}/confirm-shipping", ordercontrollers.ConfirmShipping(deps.Orders, logg))
				r.Get("/{orderId}/tracking", ordercontrollers.Tracking(deps.Orders, logg))
				r.Get("/{orderId}/label", ordercontrollers.Label(deps.Documents, logg))
				r.Get("/{orderId}/invoice", ordercontrollers.Invoice(deps.Documents, logg))
			})
			r.Get("/serviceability/{pincode}", ordercontrollers.Serviceability(deps.Orders, logg))

			r.Route("/returns", func(r chi.Router) {
				r.Get("/", returncontrollers.AdminList(deps.Returns, logg))
				r.Put("/{returnId}", returncontrollers.UpdateStatus(deps.Returns, logg))
				r.Post("/{returnId}/approve", returncontrollers.Approve(deps.Returns, logg))
			})
		})
	})

	return r
}
