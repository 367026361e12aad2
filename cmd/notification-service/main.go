package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/vinyl-storefront/internal/config"
	"github.com/dmehra2102/vinyl-storefront/internal/notification/application"
	notifykafka "github.com/dmehra2102/vinyl-storefront/internal/notification/infrastructure/kafka"
	notifypg "github.com/dmehra2102/vinyl-storefront/internal/notification/infrastructure/postgres"
	"github.com/dmehra2102/vinyl-storefront/internal/notification/infrastructure/smtp"
	"github.com/dmehra2102/vinyl-storefront/pkg/idempotency"
	"github.com/dmehra2102/vinyl-storefront/pkg/logging"
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
	if err := cfg.Validate(config.NotificationService); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "notification-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	mailer, err := smtp.NewMailer(log, smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		log.Error("smtp init failed", "err", err)
		os.Exit(1)
	}

	svc := application.NewService(log, notifypg.NewUserDirectory(log, pool), mailer)
	reader := notifykafka.NewReader(cfg.KafkaBrokers(), cfg.OutboxTopic, cfg.NotifyGroup)
	consumer := notifykafka.NewConsumer(log, reader, svc, idem)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	_ = shutdown.Drain(log, 10*time.Second,
		shutdown.Step{Name: "consumer", Fn: shutdown.WaitFor(done)},
		shutdown.Step{Name: "tracer", Fn: tp.Shutdown},
	)
	log.Info("notification-service shutdown")
}
