//go:build integration

package service

import (
	"context"
	"testing"
	"time"

	platformredis "github.com/brightleads/dmengine/internal/platform/redis"
	creditRepo "github.com/brightleads/dmengine/modules/credits/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newIntegrationPool mirrors credit_repository_integration_test.go's helper
// of the same name in the repository package: a disposable postgres
// container seeded with the real migration.
func newIntegrationPool(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dmengine_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts("../../../migrations/000001_init.up.sql"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// newIntegrationRedis starts a disposable redis container and wraps it in
// the same *platformredis.Client the production engine is constructed with.
func newIntegrationRedis(t *testing.T) *platformredis.Client {
	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	connStr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(connStr)
	require.NoError(t, err)

	rdb := goredis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	return &platformredis.Client{Client: rdb}
}

func seedUser(t *testing.T, pool *pgxpool.Pool) string {
	userID := uuid.New().String()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, 'Test User', 'hash')
	`, userID, userID+"@example.com")
	require.NoError(t, err)
	return userID
}

// TestRedisClient_AcquireIdempotencyKey_Integration_ClaimsOnceWithinTTL
// exercises the guard directly against a real Redis, the SETNX semantics
// it relies on rather than a fake.
func TestRedisClient_AcquireIdempotencyKey_Integration_ClaimsOnceWithinTTL(t *testing.T) {
	client := newIntegrationRedis(t)
	ctx := context.Background()
	key := platformredis.CreditSourceIdempotencyKey("u1", "grant_monthly:u1:2026-08")

	require.True(t, client.AcquireIdempotencyKey(ctx, key, time.Minute))
	require.False(t, client.AcquireIdempotencyKey(ctx, key, time.Minute))
}

// TestCreditEngine_GrantTopup_Integration_IsIdempotentViaRedisGuard drives
// the engine end to end against a real Postgres and a real Redis: the
// second grant call for the same source must short-circuit on the Redis
// guard and return the same ledger row without double-crediting the
// account.
func TestCreditEngine_GrantTopup_Integration_IsIdempotentViaRedisGuard(t *testing.T) {
	pool := newIntegrationPool(t)
	cache := newIntegrationRedis(t)
	repo := creditRepo.NewCreditRepository(pool)
	engine := NewCreditEngine(repo, cache, nil, 90*24*time.Hour)
	ctx := context.Background()
	userID := seedUser(t, pool)

	source := "topup:" + userID + ":order-1"

	first, err := engine.GrantTopup(ctx, userID, 500, source, nil)
	require.NoError(t, err)
	require.Equal(t, 500, first.Delta)

	second, err := engine.GrantTopup(ctx, userID, 500, source, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	balance, err := engine.RecalculateEffectiveBalance(ctx, userID, time.Now())
	require.NoError(t, err)
	require.Equal(t, 500, balance, "a repeated grant under the same source must never double-credit")
}
