package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ticket-resale/config"
	"ticket-resale/internal/cache"
	"ticket-resale/internal/events"
	"ticket-resale/internal/handlers"
	"ticket-resale/internal/notify"
	"ticket-resale/internal/services"
	"ticket-resale/internal/storage/memstore"
	"ticket-resale/internal/storage/pbstore"
	"ticket-resale/internal/storage/pgstore"
	"ticket-resale/internal/store"
	_ "ticket-resale/migrations"
	"ticket-resale/monitoring"
	"ticket-resale/security"
	"ticket-resale/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app := pocketbase.New()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	go handleShutdown(cancel)

	opts := []services.Option{services.WithStoreTimeout(cfg.StoreTimeout)}

	// Redis backs the listing cache and idempotency keys; both are optional.
	var redisClient *redis.Client
	var purchaseGuards []func(*core.RequestEvent) error
	if cfg.RedisURL != "" {
		redisClient, err = utils.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		opts = append(opts,
			services.WithCache(cache.NewListingCache(redisClient, cfg.CacheTTL)),
			services.WithIdempotency(cache.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)),
		)

		limiter := security.NewRateLimiter(redisClient, cfg.BuyRateLimit, cfg.BuyRateWindow)
		purchaseGuards = append(purchaseGuards, limiter.PurchaseRateLimit)
	}

	registry := prometheus.NewRegistry()
	if cfg.EnableMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, services.WithObserver(monitoring.NewMetrics(registry)))
	}

	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName, cfg.KafkaBuffer)
		kafkaPublisher.Start(ctx)
		opts = append(opts, services.WithPublisher("kafka",
			events.Guard(kafkaPublisher, utils.NewCircuitBreaker("kafka"))))
		slog.Info("Publishing listing events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.PubNubEnabled() {
		pn := notify.NewPubNub(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.ServiceName)
		opts = append(opts, services.WithPublisher("pubnub",
			events.Guard(notify.NewNotifier(pn), utils.NewCircuitBreaker("pubnub"))))
	}

	tx, closeStore, err := newTransactor(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer closeStore()

	marketplace := services.NewMarketplaceService(tx, opts...)
	marketplaceHandler := handlers.NewMarketplaceHandler(marketplace)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		marketplaceHandler.RegisterRoutes(e.Router, purchaseGuards...)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient == nil {
				return e.JSON(200, map[string]string{"status": "healthy", "store": cfg.StoreDriver})
			}
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy", "store": cfg.StoreDriver})
		})

		slog.Info("Server routes registered", "store", cfg.StoreDriver, "environment", cfg.Environment)

		return e.Next()
	})

	// Start server
	err = app.Start()

	cancel()
	if kafkaPublisher != nil {
		kafkaPublisher.WaitClosed()
	}
	return err
}

// newTransactor opens the listing storage selected by STORE_DRIVER.
func newTransactor(ctx context.Context, cfg *config.Config, app core.App) (store.Transactor, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := pgstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil
	case config.StoreMemory:
		slog.Warn("Using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	default:
		return pbstore.New(app), func() {}, nil
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
