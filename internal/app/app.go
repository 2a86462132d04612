package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enginerror/Shopping-Cart/internal/catalog/remote"
	"github.com/enginerror/Shopping-Cart/internal/config"
	"github.com/enginerror/Shopping-Cart/internal/domain"
	"github.com/enginerror/Shopping-Cart/internal/event"
	handler "github.com/enginerror/Shopping-Cart/internal/handler/http"
	"github.com/enginerror/Shopping-Cart/internal/repository"
	"github.com/enginerror/Shopping-Cart/internal/repository/memory"
	redisrepo "github.com/enginerror/Shopping-Cart/internal/repository/redis"
	"github.com/enginerror/Shopping-Cart/internal/service"
	"github.com/enginerror/Shopping-Cart/pkg/database"
	"github.com/enginerror/Shopping-Cart/pkg/health"
	"github.com/enginerror/Shopping-Cart/pkg/httpclient"
	pkgkafka "github.com/enginerror/Shopping-Cart/pkg/kafka"
	"github.com/enginerror/Shopping-Cart/pkg/middleware"
	"github.com/enginerror/Shopping-Cart/pkg/tracing"
)

const (
	serviceName   = "storefront"
	sweepInterval = time.Minute
)

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	catalog        *service.CatalogService
	checkout       *service.CheckoutService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// bgCtx bounds background work: the session sweeper, the rate limiter
	// cleanup and the catalog preload.
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}
	a.bgCtx, a.bgCancel = context.WithCancel(context.Background())

	healthHandler := health.NewHandler(serviceName)

	// Session store.
	var repo repository.SessionRepository
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPass
		redisCfg.DB = cfg.RedisDB

		rdb, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			a.bgCancel()
			_ = tracerShutdown(context.Background())
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		a.rdb = rdb
		repo = redisrepo.NewSessionRepository(rdb, cfg.SessionTTL)
		healthHandler.Register("redis", database.RedisHealthCheck(rdb))
	default:
		memRepo := memory.NewSessionRepository()
		go memRepo.RunSweeper(a.bgCtx, sweepInterval)
		repo = memRepo
		logger.Info("using in-memory session store")
	}

	// Domain events.
	var publisher event.Publisher = event.NopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Catalog client. A failed fetch is never retried automatically; the
	// breaker stops hammering an upstream that keeps failing.
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.CatalogTimeout
	clientCfg.MaxRetries = 0
	cbClient := httpclient.NewCircuitBreakerClient(
		httpclient.New(clientCfg),
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	catalogClient := remote.NewClient(cbClient, cfg.CatalogURL, logger)

	// Build the dependency graph.
	pricing := domain.Pricing{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
		TaxRate:               cfg.TaxRate,
	}
	sessions := service.NewSessionService(repo, logger, cfg.SessionTTL)
	a.catalog = service.NewCatalogService(catalogClient, logger)
	cartService := service.NewCartService(sessions, a.catalog, domain.NewEngine(nil), pricing, publisher, logger)
	a.checkout = service.NewCheckoutService(sessions, pricing, publisher, logger, service.CheckoutConfig{
		ProcessingDelay: cfg.OrderProcessingDelay,
	})

	healthHandler.Register("catalog", a.catalog.HealthCheck)

	// HTTP router.
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(a.bgCtx, handler.Services{
		Catalog:  a.catalog,
		Cart:     cartService,
		Checkout: a.checkout,
	}, healthHandler, logger, handler.RouterConfig{
		CORS: cors,
		Session: handler.SessionConfig{
			TTL:    cfg.SessionTTL,
			Secure: cfg.Environment != "development",
		},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.CatalogPreload {
		go a.preloadCatalog()
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// preloadCatalog warms the catalog so the first shopper does not wait for
// the upstream. A failure is logged; the next request retries the load.
func (a *App) preloadCatalog() {
	ctx, cancel := context.WithTimeout(a.bgCtx, a.cfg.CatalogTimeout)
	defer cancel()

	if err := a.catalog.Preload(ctx); err != nil {
		a.logger.Warn("catalog preload failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("catalog preloaded")
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Order processing (abandon in-flight orders)
// 3. Background workers
// 4. Kafka producer and Redis client
// 5. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.checkout.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("order processing shutdown error", slog.String("error", err.Error()))
	}

	a.bgCancel()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
