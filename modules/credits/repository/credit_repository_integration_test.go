//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brightleads/dmengine/internal/apperr"
	"github.com/brightleads/dmengine/modules/credits/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newIntegrationPool starts a disposable postgres container seeded with the
// real migration, the way the rest of the ecosystem spins up testcontainers
// for database-backed suites.
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

func seedUser(t *testing.T, pool *pgxpool.Pool) string {
	userID := uuid.New().String()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, 'Test User', 'hash')
	`, userID, userID+"@example.com")
	require.NoError(t, err)
	return userID
}

func TestCreditRepository_InsertGrant_Integration_IsIdempotentPerSource(t *testing.T) {
	pool := newIntegrationPool(t)
	repo := NewCreditRepository(pool)
	ctx := context.Background()
	userID := seedUser(t, pool)

	row := &model.CreditLedger{UserID: userID, EventType: model.EventGrantMonthly, Delta: 26_000, Source: "grant_monthly:" + userID + ":2026-08"}

	first, created, err := repo.InsertGrant(ctx, row)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 26_000, first.Delta)

	second, created, err := repo.InsertGrant(ctx, &model.CreditLedger{UserID: userID, EventType: model.EventGrantMonthly, Delta: 26_000, Source: row.Source})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	balance, err := repo.RecalculateBalance(ctx, userID, time.Now())
	require.NoError(t, err)
	require.Equal(t, 26_000, balance)
}

func TestCreditRepository_SpendLots_Integration_ConsumesSoonestExpiringLotFirst(t *testing.T) {
	pool := newIntegrationPool(t)
	repo := NewCreditRepository(pool)
	ctx := context.Background()
	userID := seedUser(t, pool)
	now := time.Now()

	soonExpiry := now.Add(24 * time.Hour)
	laterExpiry := now.Add(30 * 24 * time.Hour)
	soonLot, laterLot := uuid.NewString(), uuid.NewString()

	_, _, err := repo.InsertGrant(ctx, &model.CreditLedger{
		UserID: userID, LotID: &soonLot, EventType: model.EventTopup, Delta: 100, Source: "topup:1", ExpiresAt: &soonExpiry,
	})
	require.NoError(t, err)
	_, _, err = repo.InsertGrant(ctx, &model.CreditLedger{
		UserID: userID, LotID: &laterLot, EventType: model.EventGrantMonthly, Delta: 100, Source: "grant_monthly:1", ExpiresAt: &laterExpiry,
	})
	require.NoError(t, err)

	spendRows, newBalance, err := repo.SpendLots(ctx, userID, 150, "", "job:job-1", now)
	require.NoError(t, err)
	require.Equal(t, 50, newBalance)
	require.Len(t, spendRows, 2)
	require.Equal(t, -100, spendRows[0].Delta)
	require.Equal(t, -50, spendRows[1].Delta)
	require.NotNil(t, spendRows[0].ExpiresAt)
	require.WithinDuration(t, soonExpiry, *spendRows[0].ExpiresAt, time.Second)

	_, _, err = repo.SpendLots(ctx, userID, 1000, "", "job:job-2", now)
	require.Error(t, err)
}

// TestCreditRepository_SpendLots_Integration_ConcurrentSpendsDoNotOverdraw
// fires two SpendLots calls for the same user at once against a balance
// that can satisfy only one of them. Without the pg_advisory_xact_lock
// serializing the two transactions, both could read the same pre-spend
// balance and both succeed, overdrawing the account.
func TestCreditRepository_SpendLots_Integration_ConcurrentSpendsDoNotOverdraw(t *testing.T) {
	pool := newIntegrationPool(t)
	repo := NewCreditRepository(pool)
	ctx := context.Background()
	userID := seedUser(t, pool)
	now := time.Now()
	lotID := uuid.NewString()

	_, _, err := repo.InsertGrant(ctx, &model.CreditLedger{
		UserID: userID, LotID: &lotID, EventType: model.EventGrantMonthly, Delta: 100, Source: "grant_monthly:1",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	balances := make([]int, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, balance, err := repo.SpendLots(ctx, userID, 100, "", "job:job-concurrent:"+string(rune('a'+i)), now)
			results[i] = err
			balances[i] = balance
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range results {
		if err == nil {
			successes++
			require.Equal(t, 0, balances[i])
			continue
		}
		var insufficient *apperr.InsufficientCredits
		require.ErrorAs(t, err, &insufficient)
	}
	require.Equal(t, 1, successes, "exactly one of two concurrent spends against a 100-credit balance must succeed")

	finalBalance, err := repo.RecalculateBalance(ctx, userID, now)
	require.NoError(t, err)
	require.Equal(t, 0, finalBalance)
}
