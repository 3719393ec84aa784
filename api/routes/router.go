package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-checkout/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-checkout/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/marketplace-checkout/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/marketplace-checkout/api/controllers/orders"
	"github.com/angelmondragon/marketplace-checkout/api/middleware"
	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	checkoutsvc "github.com/angelmondragon/marketplace-checkout/internal/checkout"
	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	// a nil *redis.Client must stay a nil interface for the middlewares
	var (
		redisPinger controllers.Pinger
		idemStore   redis.IdempotencyStore
		limiter     redis.RateLimiter
	)
	if redisClient != nil {
		redisPinger, idemStore, limiter = redisClient, redisClient, redisClient
	}

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", time.Minute, cfg.Checkout.RateLimitPerMinute)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisPinger, logg))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, cfg.Checkout.IdempotencyTTL, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.List(cartService, logg))
			r.Delete("/", cartcontrollers.Clear(cartService, logg))
			r.Post("/items", cartcontrollers.AddItem(cartService, logg))
			r.Patch("/items/{productId}", cartcontrollers.SetQuantity(cartService, logg))
			r.Delete("/items/{productId}", cartcontrollers.RemoveItem(cartService, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/summary", checkoutcontrollers.Summary(checkoutService, logg))
			r.With(middleware.RateLimit(checkoutPolicy, limiter, logg)).Post("/", checkoutcontrollers.Process(checkoutService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.History(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
		})

		r.Route("/seller/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleSeller, enums.UserRoleAdmin))
			r.Get("/", ordercontrollers.SellerList(ordersService, logg))
			r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(ordersService, logg))
			r.Patch("/{orderId}/payment", ordercontrollers.UpdatePayment(ordersService, logg))
		})
	})

	return r
}
