package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/cartengine/api/routes"
	"github.com/angelmondragon/cartengine/internal/cart"
	"github.com/angelmondragon/cartengine/internal/checkout"
	"github.com/angelmondragon/cartengine/internal/inventory"
	"github.com/angelmondragon/cartengine/internal/notifications"
	"github.com/angelmondragon/cartengine/internal/orders"
	"github.com/angelmondragon/cartengine/internal/products"
	"github.com/angelmondragon/cartengine/pkg/config"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/env"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"github.com/angelmondragon/cartengine/pkg/metrics"
	"github.com/angelmondragon/cartengine/pkg/migrate"
	"github.com/angelmondragon/cartengine/pkg/pubsub"
	"github.com/angelmondragon/cartengine/pkg/rabbitmq"
	"github.com/angelmondragon/cartengine/pkg/redis"
	"github.com/angelmondragon/cartengine/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	// run owns every resource; exiting only after it returns lets its
	// deferred closers drain pools and flush publishers.
	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	tracing.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers closerStack
	defer func() {
		if err := closers.closeAll(); err != nil {
			logg.Error(context.Background(), "error releasing resources", err)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	closers.push(dbClient.Close)

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	if _, err := migrate.AutoRun(ctx, cfg, logg, sqlDB, migrate.DefaultDir); err != nil {
		return fmt.Errorf("auto-run migrations: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		closers.push(redisClient.Close)
	} else {
		logg.Warn(ctx, "redis not configured, idempotency keys disabled")
	}

	sinks := notifications.Fanout{notifications.NewLogSink(logg)}
	var psClient *pubsub.Client
	if cfg.Notifications.PubSubEnabled() {
		psClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.Notifications, logg)
		if err != nil {
			return fmt.Errorf("bootstrap pubsub: %w", err)
		}
		closers.push(psClient.Close)

		publisher := psClient.NotificationsPublisher()
		closers.push(func() error {
			publisher.Stop()
			return nil
		})
		pubsubSink, err := notifications.NewPubSubSink(publisher)
		if err != nil {
			return fmt.Errorf("create pubsub sink: %w", err)
		}
		sinks = append(sinks, pubsubSink)
	}

	var amqpClient *rabbitmq.Client
	if cfg.Notifications.AMQPEnabled() {
		amqpClient, err = rabbitmq.New(ctx, cfg.Notifications, logg)
		if err != nil {
			return fmt.Errorf("bootstrap amqp: %w", err)
		}
		closers.push(amqpClient.Close)

		amqpSink, err := notifications.NewAMQPSink(amqpClient, amqpClient.Exchange())
		if err != nil {
			return fmt.Errorf("create amqp sink: %w", err)
		}
		sinks = append(sinks, amqpSink)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.NewEngineMetrics(registry)

	retry := db.RetryPolicy{
		MaxRetries: cfg.Ledger.ConflictRetries,
		BaseDelay:  cfg.Ledger.RetryBaseDelay,
	}
	conn := dbClient.DB()
	catalog := products.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	ledger := inventory.NewStore(conn,
		inventory.WithMetrics(engineMetrics),
		inventory.WithRetryPolicy(retry),
	)

	cartService, err := cart.NewService(cartRepo, dbClient, catalog, sinks, logg, retry)
	if err != nil {
		return fmt.Errorf("create cart service: %w", err)
	}

	checkoutService, err := checkout.NewService(checkout.Params{
		Tx:       dbClient,
		Carts:    cartRepo,
		Orders:   orderRepo,
		Catalog:  catalog,
		Sink:     sinks,
		Logger:   logg,
		Metrics:  engineMetrics,
		Retry:    retry,
		Settings: cfg.Checkout,
	})
	if err != nil {
		return fmt.Errorf("create checkout service: %w", err)
	}

	lineStateMachine, err := orders.NewLineStateMachine(orders.StateMachineParams{
		Repo:    orderRepo,
		Tx:      dbClient,
		Ledger:  ledger,
		Sink:    sinks,
		Logger:  logg,
		Metrics: engineMetrics,
		Retry:   retry,
	})
	if err != nil {
		return fmt.Errorf("create order line state machine: %w", err)
	}

	ordersService, err := orders.NewService(orderRepo)
	if err != nil {
		return fmt.Errorf("create orders service: %w", err)
	}

	addr := env.ListenAddr(cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:          dbClient,
			Redis:       redisClient,
			PubSub:      psClient,
			AMQP:        amqpClient,
			Gatherer:    registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
			Cart:        cartService,
			Checkout:    checkoutService,
			Orders:      ordersService,
			Lines:       lineStateMachine,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server stopped unexpectedly: %w", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
	}
	return nil
}

// closerStack releases bootstrap resources in reverse acquisition order.
type closerStack []func() error

func (s *closerStack) push(fn func() error) {
	*s = append(*s, fn)
}

func (s closerStack) closeAll() error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		errs = append(errs, s[i]())
	}
	return multierr.Combine(errs...)
}
