package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cartengine/api/controllers"
	cartcontrollers "github.com/angelmondragon/cartengine/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/cartengine/api/controllers/orders"
	"github.com/angelmondragon/cartengine/api/middleware"
	"github.com/angelmondragon/cartengine/internal/cart"
	checkoutsvc "github.com/angelmondragon/cartengine/internal/checkout"
	"github.com/angelmondragon/cartengine/internal/orders"
	"github.com/angelmondragon/cartengine/pkg/config"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/enums"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"github.com/angelmondragon/cartengine/pkg/metrics"
	"github.com/angelmondragon/cartengine/pkg/pubsub"
	"github.com/angelmondragon/cartengine/pkg/rabbitmq"
	"github.com/angelmondragon/cartengine/pkg/redis"
)

// Dependencies are the wired services the router exposes. Redis, PubSub and
// AMQP are optional; without Redis idempotency keys are not enforced.
type Dependencies struct {
	DB          db.Pinger
	Redis       *redis.Client
	PubSub      *pubsub.Client
	AMQP        *rabbitmq.Client
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Cart     cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Lines    orders.LineStateMachine
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Tracing(logg),
		middleware.CORS(cfg.CORS),
		middleware.Logging(logg, deps.HTTPMetrics),
	)

	ready := map[string]controllers.Pinger{"db": deps.DB}
	var idempotencyStore redis.IdempotencyStore
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
		idempotencyStore = deps.Redis
	}
	if deps.PubSub != nil {
		ready["pubsub"] = deps.PubSub
	}
	if deps.AMQP != nil {
		ready["amqp"] = deps.AMQP
	}
	// only order-creating and stock-moving routes take an Idempotency-Key
	idempotent := middleware.Idempotency(idempotencyStore, cfg.Idempotency, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/cart", cartcontrollers.Fetch(deps.Cart, logg))
		r.Delete("/cart", cartcontrollers.Clear(deps.Cart, logg))
		r.Post("/cart/items", cartcontrollers.AddItem(deps.Cart, logg))
		r.Patch("/cart/items/{productId}", cartcontrollers.UpdateQuantity(deps.Cart, logg))
		r.Delete("/cart/items/{productId}", cartcontrollers.RemoveItem(deps.Cart, logg))

		r.With(idempotent).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		r.With(idempotent).Post("/checkout/partial", controllers.PartialCheckout(deps.Checkout, logg))

		r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		r.With(idempotent).Post("/orders/{orderId}/lines/{productId}/paid", ordercontrollers.MarkPaid(deps.Lines, logg))
		r.With(idempotent).Post("/orders/{orderId}/lines/{productId}/cancel", ordercontrollers.Cancel(deps.Lines, logg))

		r.With(middleware.RequireRole(logg, enums.RoleSeller, enums.RoleAdmin)).
			Get("/seller/order-lines", ordercontrollers.SellerLines(deps.Orders, logg))
	})

	return r
}
