package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	catalogpg "github.com/dmehra2102/vinyl-storefront/internal/catalog/infrastructure/postgres"
	catalogredis "github.com/dmehra2102/vinyl-storefront/internal/catalog/infrastructure/redis"
	"github.com/dmehra2102/vinyl-storefront/internal/config"
	"github.com/dmehra2102/vinyl-storefront/internal/identity"
	"github.com/dmehra2102/vinyl-storefront/internal/order/application"
	orderhttp "github.com/dmehra2102/vinyl-storefront/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/vinyl-storefront/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/vinyl-storefront/internal/order/infrastructure/postgres"
	orderstripe "github.com/dmehra2102/vinyl-storefront/internal/order/infrastructure/stripe"
	"github.com/dmehra2102/vinyl-storefront/pkg/logging"
	"github.com/dmehra2102/vinyl-storefront/pkg/migrations"
	"github.com/dmehra2102/vinyl-storefront/pkg/outbox"
	"github.com/dmehra2102/vinyl-storefront/pkg/shutdown"
	"github.com/dmehra2102/vinyl-storefront/pkg/tracing"
)

func main() {
	log := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log = logging.NewWithLevel(cfg.LogLevel)
	if err := cfg.Validate(config.OrderService); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	if cfg.MigrateOnStart {
		if err := migrations.Run(cfg.PGURL); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	// Postgres Setup
	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// Kafka producer for the outbox relay
	writer := orderkafka.NewWriter(log, cfg.KafkaBrokers())
	defer writer.Close()

	gateway, err := orderstripe.NewGateway(log, orderstripe.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.Currency,
	})
	if err != nil {
		log.Error("stripe gateway init failed", "err", err)
		os.Exit(1)
	}

	catalog := catalogredis.NewCache(log, rdb, catalogpg.NewRepository(log, pool), cfg.CatalogCacheTTL)

	repo := orderpg.NewRepository(log, pool)
	store := orderpg.NewOutboxStore(log, pool)
	notifier := orderpg.NewOutboxNotifier(log, store)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, store, dispatch, relayID())

	svc := application.NewService(log, repo, catalog, gateway, notifier, application.WithGatewayTimeout(cfg.GatewayTimeout))

	auth := identity.NewAuthenticator(log, cfg.JWTSecret, identity.NewRedisRevocationList(rdb))
	handler := orderhttp.NewHandler(log, svc, auth.Middleware)

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(r, "order-http"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	// Run relay
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	// Run HTTP
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	_ = shutdown.Drain(log, 10*time.Second,
		shutdown.Step{Name: "http", Fn: srv.Shutdown},
		shutdown.Step{Name: "outbox relay", Fn: shutdown.WaitFor(relayDone)},
		shutdown.Step{Name: "tracer", Fn: tp.Shutdown},
	)
	log.Info("order-service shutdown complete")
}

func relayID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "order-service-relay"
	}
	return "order-service-relay-" + host
}
