package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enginerror/Shopping-Cart/internal/service"
	"github.com/enginerror/Shopping-Cart/pkg/health"
	"github.com/enginerror/Shopping-Cart/pkg/middleware"
)

// serviceName labels metrics and spans emitted by the router.
const serviceName = "storefront"

// RouterConfig holds the HTTP-level settings of the storefront API.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	Session        SessionConfig
	RateLimitRPS   float64
	RateLimitBurst int
	PprofCIDRs     []string
}

// Services bundles the application services the API exposes.
type Services struct {
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Checkout *service.CheckoutService
}

// NewRouter creates a chi router with all storefront routes registered. ctx
// bounds background work owned by the router, such as rate limiter cleanup.
func NewRouter(
	ctx context.Context,
	services Services,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	catalogHandler := NewCatalogHandler(services.Catalog, logger)
	cartHandler := NewCartHandler(services.Cart, logger)
	checkoutHandler := NewCheckoutHandler(services.Checkout, cfg.Session, logger)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		}
		r.Use(ContentTypeJSON)

		r.Get("/products", catalogHandler.ListProducts)
		r.Get("/products/{id}", catalogHandler.GetProduct)
		r.Get("/categories", catalogHandler.ListCategories)

		r.Group(func(r chi.Router) {
			r.Use(Session(cfg.Session))
			// Rebuild the request logger so it carries the session id.
			r.Use(middleware.RequestLogger(logger))

			r.Get("/cart", cartHandler.GetCart)
			r.Delete("/cart", cartHandler.ClearCart)
			r.Post("/cart/items", cartHandler.AddItem)
			r.Put("/cart/items/{lineId}", cartHandler.UpdateItemQuantity)
			r.Delete("/cart/items/{lineId}", cartHandler.RemoveItem)

			r.Get("/checkout", checkoutHandler.GetCheckout)
			r.Patch("/checkout/form", checkoutHandler.EditForm)
			r.Post("/checkout", checkoutHandler.Submit)

			r.Delete("/session", checkoutHandler.EndSession)
		})
	})

	return r
}
