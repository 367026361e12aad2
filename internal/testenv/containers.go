// Package testenv starts the containers integration tests run against.
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmehra2102/vinyl-storefront/pkg/migrations"
)

type Postgres struct {
	Pool *pgxpool.Pool
	URL  string
}

// StartPostgres runs a migrated Postgres container for the lifetime of t.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgC.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %s", err)
		}
	})

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(pgURL))

	pool, err := pgxpool.New(ctx, pgURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &Postgres{Pool: pool, URL: pgURL}
}

// StartKafka runs a single-node Kafka container and returns its broker addresses.
func StartKafka(t *testing.T) []string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("storefront-test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaC.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate kafka container: %s", err)
		}
	})

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	return brokers
}

func (p *Postgres) SeedUser(t *testing.T, email string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := p.Pool.Exec(context.Background(), `INSERT INTO users (id, email) VALUES ($1, $2)`, id, email)
	require.NoError(t, err)
	return id
}

func (p *Postgres) SeedVinyl(t *testing.T, name, author, price string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := p.Pool.Exec(context.Background(),
		`INSERT INTO vinyls (id, name, author_name, price, image_url) VALUES ($1, $2, $3, $4::numeric, $5)`,
		id, name, author, decimal.RequireFromString(price).StringFixed(2), "https://img.example/"+id.String())
	require.NoError(t, err)
	return id
}

func (p *Postgres) DeleteVinyl(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := p.Pool.Exec(context.Background(), `UPDATE vinyls SET is_deleted = true WHERE id = $1`, id)
	require.NoError(t, err)
}
