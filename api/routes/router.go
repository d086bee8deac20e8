package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/accra-labs/storefront-backend/api/controllers"
	"github.com/accra-labs/storefront-backend/api/middleware"
	"github.com/accra-labs/storefront-backend/internal/addresses"
	"github.com/accra-labs/storefront-backend/internal/auth"
	"github.com/accra-labs/storefront-backend/internal/carts"
	"github.com/accra-labs/storefront-backend/internal/categories"
	"github.com/accra-labs/storefront-backend/internal/notifications"
	"github.com/accra-labs/storefront-backend/internal/orders"
	"github.com/accra-labs/storefront-backend/internal/products"
	"github.com/accra-labs/storefront-backend/pkg/config"
	"github.com/accra-labs/storefront-backend/pkg/db"
	"github.com/accra-labs/storefront-backend/pkg/logger"
	pkgredis "github.com/accra-labs/storefront-backend/pkg/redis"
)

// Services bundles the domain services the router exposes.
type Services struct {
	Auth          auth.Service
	Addresses     addresses.Service
	Categories    categories.Service
	Products      products.Service
	Carts         carts.Service
	Orders        orders.Service
	Notifications notifications.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger db.Pinger,
	redisClient *pkgredis.Client,
	registry *prometheus.Registry,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbPinger, redisClient))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.Idempotency(redisClient, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(svcs.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(svcs.Auth, logg))
		})

		// Public catalog reads.
		r.Get("/categories", controllers.CategoryList(svcs.Categories, logg))
		r.Get("/categories/slug/{slug}", controllers.CategoryDetail(svcs.Categories, logg))
		r.Get("/products", controllers.ProductList(svcs.Products, logg))
		r.Get("/products/slug/{slug}", controllers.ProductDetailBySlug(svcs.Products, logg))
		r.Get("/products/{productId}", controllers.ProductDetail(svcs.Products, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Get("/me", controllers.Me(svcs.Auth, logg))

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", controllers.AddressList(svcs.Addresses, logg))
				r.Post("/", controllers.AddressCreate(svcs.Addresses, logg))
				r.Get("/{addressId}", controllers.AddressDetail(svcs.Addresses, logg))
				r.Put("/{addressId}", controllers.AddressUpdate(svcs.Addresses, logg))
				r.Delete("/{addressId}", controllers.AddressDelete(svcs.Addresses, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(svcs.Carts, logg))
				r.Post("/items", controllers.CartAddItem(svcs.Carts, logg))
				r.Patch("/items/{itemId}", controllers.CartUpdateItem(svcs.Carts, logg))
				r.Delete("/items/{itemId}", controllers.CartRemoveItem(svcs.Carts, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrderList(svcs.Orders, logg))
				r.Post("/", controllers.OrderCreate(svcs.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
				r.With(middleware.RequireStaff(logg)).Patch("/{orderId}/status", controllers.OrderUpdateStatus(svcs.Orders, logg))
			})

			r.Route("/order-items", func(r chi.Router) {
				r.Post("/", controllers.OrderItemAdd(svcs.Orders, logg))
				r.Patch("/{itemId}", controllers.OrderItemUpdate(svcs.Orders, logg))
				r.Delete("/{itemId}", controllers.OrderItemDelete(svcs.Orders, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.NotificationList(svcs.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.NotificationMarkRead(svcs.Notifications, logg))
				r.Post("/read-all", controllers.NotificationMarkAllRead(svcs.Notifications, logg))
			})

			// Staff-only catalog writes share the public URL space.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireStaff(logg))
				r.Post("/categories", controllers.CategoryCreate(svcs.Categories, logg))
				r.Patch("/categories/{categoryId}", controllers.CategoryUpdate(svcs.Categories, logg))
				r.Delete("/categories/{categoryId}", controllers.CategoryDelete(svcs.Categories, logg))
				r.Post("/products", controllers.ProductCreate(svcs.Products, logg))
				r.Patch("/products/{productId}", controllers.ProductUpdate(svcs.Products, logg))
				r.Delete("/products/{productId}", controllers.ProductDelete(svcs.Products, logg))
			})
		})
	})

	return r
}
