package repository

import (
	"context"
	"testing"
	"time"

	"github.com/brightleads/dmengine/internal/apperr"
	"github.com/brightleads/dmengine/modules/credits/model"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCreditRepo mirrors CreditRepository's queries against a
// pgxmock.PgxPoolIface, the way job_repository_test.go exercises SQL
// without needing a live *pgxpool.Pool.
type testCreditRepo struct {
	mock pgxmock.PgxPoolIface
}

func (r *testCreditRepo) EnsureAccount(ctx context.Context, userID string) (int, time.Time, error) {
	query := `
		INSERT INTO credit_accounts (user_id, balance, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, balance, updated_at
	`
	var gotUserID string
	var balance int
	var updatedAt time.Time
	err := r.mock.QueryRow(ctx, query, userID).Scan(&gotUserID, &balance, &updatedAt)
	return balance, updatedAt, err
}

func (r *testCreditRepo) RecalculateBalance(ctx context.Context, userID string, now time.Time) (int, error) {
	tx, err := r.mock.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var sum int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)`, userID, now).Scan(&sum); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO credit_accounts (user_id, balance, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (user_id) DO UPDATE SET balance = $2, updated_at = NOW()`, userID, sum); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *testCreditRepo) InsertGrant(ctx context.Context, row *model.CreditLedger) (*model.CreditLedger, bool, error) {
	tx, err := r.mock.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var id int64
	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (user_id, lot_id, event_type, delta, source, job_id, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, source) DO NOTHING
		RETURNING id, created_at
	`, row.UserID, row.LotID, row.EventType, row.Delta, row.Source, row.JobID, row.ExpiresAt, []byte(nil)).Scan(&id, &createdAt)

	if err == pgx.ErrNoRows {
		existing := &model.CreditLedger{}
		if scanErr := tx.QueryRow(ctx, `SELECT id, user_id, lot_id, event_type, delta, source, job_id, created_at, expires_at, metadata FROM credit_ledger WHERE user_id = $1 AND source = $2`, row.UserID, row.Source).
			Scan(&existing.ID, &existing.UserID, &existing.LotID, &existing.EventType, &existing.Delta, &existing.Source, &existing.JobID, &existing.CreatedAt, &existing.ExpiresAt, new([]byte)); scanErr != nil {
			return nil, false, scanErr
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_accounts (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET balance = credit_accounts.balance + $2, updated_at = NOW()
	`, row.UserID, row.Delta); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	row.ID = id
	row.CreatedAt = createdAt
	return row, true, nil
}

func (r *testCreditRepo) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub := &model.Subscription{}
	err := r.mock.QueryRow(ctx, `SELECT user_id, plan_key, status, current_period_end, provider, provider_customer_id, provider_subscription_id FROM subscriptions WHERE user_id = $1`, userID).
		Scan(&sub.UserID, &sub.PlanKey, &sub.Status, &sub.CurrentPeriodEnd, &sub.Provider, &sub.ProviderCustomerID, &sub.ProviderSubID)
	if err == pgx.ErrNoRows {
		return nil, model.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *testCreditRepo) SpendLots(ctx context.Context, userID string, amount int, jobID, source string, now time.Time) ([]*model.CreditLedger, int, error) {
	tx, err := r.mock.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var balance int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)`, userID, now).Scan(&balance); err != nil {
		return nil, 0, err
	}
	if balance < amount {
		return nil, balance, &apperr.InsufficientCredits{UserID: userID, Requested: amount, Available: balance}
	}

	newBalance := balance - amount
	if _, err := tx.Exec(ctx, `UPDATE credit_accounts SET balance = $2, updated_at = NOW() WHERE user_id = $1`, userID, newBalance); err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return nil, newBalance, nil
}

func TestCreditRepository_InsertGrant_InsertsNewRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	row := &model.CreditLedger{UserID: "u1", EventType: model.EventGrantMonthly, Delta: 26_000, Source: "grant_monthly:u1:2026-08"}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO credit_ledger").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	mock.ExpectExec("INSERT INTO credit_accounts").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := &testCreditRepo{mock: mock}
	inserted, created, err := repo.InsertGrant(context.Background(), row)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), inserted.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_InsertGrant_IsIdempotentOnDuplicateSource(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	row := &model.CreditLedger{UserID: "u1", EventType: model.EventGrantMonthly, Delta: 26_000, Source: "grant_monthly:u1:2026-08"}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO credit_ledger").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, user_id, lot_id").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "lot_id", "event_type", "delta", "source", "job_id", "created_at", "expires_at", "metadata",
		}).AddRow(int64(7), "u1", nil, model.EventGrantMonthly, 26_000, row.Source, nil, now, nil, []byte(nil)))
	mock.ExpectCommit()

	repo := &testCreditRepo{mock: mock}
	existing, created, err := repo.InsertGrant(context.Background(), row)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(7), existing.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_GetSubscription_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT user_id, plan_key").
		WithArgs("u1").
		WillReturnError(pgx.ErrNoRows)

	repo := &testCreditRepo{mock: mock}
	sub, err := repo.GetSubscription(context.Background(), "u1")
	assert.Nil(t, sub)
	assert.ErrorIs(t, err, model.ErrSubscriptionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_GetSubscription_Succeeds(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"user_id", "plan_key", "status", "current_period_end", "provider", "provider_customer_id", "provider_subscription_id",
	}).AddRow("u1", model.PlanPro, "active", nil, "stripe", "cus_1", "sub_1")
	mock.ExpectQuery("SELECT user_id, plan_key").
		WithArgs("u1").
		WillReturnRows(rows)

	repo := &testCreditRepo{mock: mock}
	sub, err := repo.GetSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, sub.PlanKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_SpendLots_RejectsInsufficientBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("u1", now).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(5))
	mock.ExpectRollback()

	repo := &testCreditRepo{mock: mock}
	_, balance, err := repo.SpendLots(context.Background(), "u1", 10, "", "job:job-1", now)
	assert.Equal(t, 5, balance)
	var insufficient *apperr.InsufficientCredits
	require.ErrorAs(t, err, &insufficient)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_SpendLots_DeductsBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("u1", now).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(100))
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs("u1", 90).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := &testCreditRepo{mock: mock}
	_, balance, err := repo.SpendLots(context.Background(), "u1", 10, "", "job:job-1", now)
	require.NoError(t, err)
	assert.Equal(t, 90, balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_EnsureAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{"user_id", "balance", "updated_at"}).AddRow("u1", 0, now)
	mock.ExpectQuery("INSERT INTO credit_accounts").
		WithArgs("u1").
		WillReturnRows(rows)

	repo := &testCreditRepo{mock: mock}
	balance, _, err := repo.EnsureAccount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_RecalculateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("u1", now).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(42))
	mock.ExpectExec("INSERT INTO credit_accounts").
		WithArgs("u1", 42).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := &testCreditRepo{mock: mock}
	sum, err := repo.RecalculateBalance(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 42, sum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepository_RecalculateBalance_RollsBackOnQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("u1", now).
		WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	repo := &testCreditRepo{mock: mock}
	_, err = repo.RecalculateBalance(context.Background(), "u1", now)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
