package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"ticket-checkout/config"
	"ticket-checkout/internal/events"
	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/handlers"
	"ticket-checkout/internal/services"
	"ticket-checkout/internal/store"
	_ "ticket-checkout/migrations"
	"ticket-checkout/monitoring"
	"ticket-checkout/security"
	"ticket-checkout/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.IsDevelopment(),
	})

	app.RootCmd.AddCommand(newPollCommand(cfg))

	var closers []func() error
	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		for _, c := range closers {
			if err := c(); err != nil {
				e.App.Logger().Warn("shutdown cleanup failed", "error", err)
			}
		}
		return e.Next()
	})

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		logger := se.App.Logger()

		var redisClient *redis.Client
		if cfg.RedisURL != "" {
			c, err := utils.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			redisClient = c
			closers = append(closers, c.Close)
			go monitoring.NewMonitor(redisClient, logger).Run(ctx)
		}

		orderStore, err := newOrderStore(se.App, cfg, redisClient)
		if err != nil {
			return err
		}

		notifier, notifierClosers, err := newNotifier(cfg, logger)
		if err != nil {
			return err
		}
		closers = append(closers, notifierClosers...)

		orderService := services.NewOrderService(
			orderStore,
			gateway.NewClient(&cfg.Gateway),
			notifier,
			logger,
			services.OrderServiceConfig{
				Currency:          cfg.Currency,
				ReturnURLTemplate: cfg.ReturnURLTemplate,
				WebhookSecret:     cfg.WebhookSecret,
			},
		)
		orderHandler := handlers.NewOrderHandler(orderService, logger)

		var limiter *security.RateLimiter
		if redisClient != nil {
			limiter = security.NewRateLimiter(redisClient, logger)
		}
		registerOrderRoutes(se.Router, cfg, orderHandler, limiter, logger)

		if cfg.EnableMetrics {
			se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		logger.Info("checkout routes registered", "order_store", cfg.OrderStore, "environment", cfg.Environment)

		return se.Next()
	})

	return app.Start()
}

func registerOrderRoutes(r *router.Router[*core.RequestEvent], cfg *config.Config, h *handlers.OrderHandler, limiter *security.RateLimiter, logger *slog.Logger) {
	// Order endpoints
	create := r.POST("/api/orders", h.CreateOrder)
	if limiter != nil {
		create.BindFunc(limiter.Limit("orders", int64(cfg.OrderRateLimit), cfg.OrderRateWindow))
	}
	r.GET("/api/orders/verify", h.VerifyOrder)
	r.GET("/api/orders/{orderId}", h.GetOrder)

	// Gateway callbacks need a secret to be verifiable at all.
	if cfg.WebhookSecret == "" {
		logger.Warn("GATEWAY_WEBHOOK_SECRET is not set, webhook routes disabled")
		return
	}
	r.POST("/api/payments/webhook", h.Webhook)

	if cfg.EnableWebhookSimulator {
		logger.Warn("webhook simulator enabled", "route", "/api/test/simulate-webhook")
		r.POST("/api/test/simulate-webhook", h.SimulateWebhook)
	}
}

func newOrderStore(app core.App, cfg *config.Config, redisClient *redis.Client) (store.OrderStore, error) {
	switch cfg.OrderStore {
	case "pocketbase":
		return store.NewPocketBaseStore(app), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("ORDER_STORE=redis requires REDIS_URL")
		}
		return store.NewRedisStore(redisClient), nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown ORDER_STORE %q", cfg.OrderStore)
	}
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (events.Notifier, []func() error, error) {
	var (
		notifiers events.Multi
		closers   []func() error
	)

	if cfg.PubNubPublishKey != "" {
		notifiers = append(notifiers, events.NewPubNubNotifier(&events.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       "checkout-server",
		}))
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, nil, err
		}
		kafka := events.NewKafkaNotifier(producer, cfg.KafkaTopic, logger)
		notifiers = append(notifiers, kafka)
		closers = append(closers, kafka.Close)
	}

	switch len(notifiers) {
	case 0:
		return events.Nop{}, nil, nil
	case 1:
		return notifiers[0], closers, nil
	default:
		return notifiers, closers, nil
	}
}
