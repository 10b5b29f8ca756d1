// Package repository implements the credit ledger's persistence boundary
// on top of pgx, matching the transactional, SUM-over-non-expired-rows
// pattern used for balance accounting elsewhere in the ecosystem.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/brightleads/dmengine/internal/apperr"
	"github.com/brightleads/dmengine/modules/credits/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreditRepository implements ports.CreditRepository.
type CreditRepository struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new credit repository.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{pool: pool}
}

func (r *CreditRepository) EnsureAccount(ctx context.Context, userID string) (*model.CreditAccount, error) {
	query := `
		INSERT INTO credit_accounts (user_id, balance, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, balance, updated_at
	`
	acc := &model.CreditAccount{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&acc.UserID, &acc.Balance, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *CreditRepository) RecalculateBalance(ctx context.Context, userID string, now time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	sum, err := sumNonExpired(ctx, tx, userID, now)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_accounts (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET balance = $2, updated_at = NOW()
	`, userID, sum); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return sum, nil
}

func sumNonExpired(ctx context.Context, q querier, userID string, now time.Time) (int, error) {
	var sum int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM credit_ledger
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, userID, now).Scan(&sum)
	return sum, err
}

func (r *CreditRepository) FindBySource(ctx context.Context, userID, source string) (*model.CreditLedger, error) {
	row, err := scanLedgerRow(r.pool.QueryRow(ctx, selectLedgerBySourceQuery, userID, source))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

const selectLedgerBySourceQuery = `
	SELECT id, user_id, lot_id, event_type, delta, source, job_id, created_at, expires_at, metadata
	FROM credit_ledger WHERE user_id = $1 AND source = $2
`

func (r *CreditRepository) InsertGrant(ctx context.Context, row *model.CreditLedger) (*model.CreditLedger, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	metadata, err := marshalMetadata(row.Metadata)
	if err != nil {
		return nil, false, err
	}

	var id int64
	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (user_id, lot_id, event_type, delta, source, job_id, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, source) DO NOTHING
		RETURNING id, created_at
	`, row.UserID, row.LotID, row.EventType, row.Delta, row.Source, row.JobID, row.ExpiresAt, metadata).Scan(&id, &createdAt)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := scanLedgerRow(tx.QueryRow(ctx, selectLedgerBySourceQuery, row.UserID, row.Source))
		if findErr != nil {
			return nil, false, findErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, false, commitErr
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

// SpendLots recalculates the balance, walks spendable lots in
// soonest-to-expire-first order, and appends one negative row per lot
// consumed. sumNonExpired and spendableLots both aggregate over the
// ledger (SUM/GROUP BY), which Postgres will not let a SELECT ... FOR
// UPDATE touch directly, so two concurrent spends on the same user
// instead serialize on a transaction-scoped advisory lock keyed by a
// hash of the user id: the second transaction blocks at pg_advisory_xact_lock
// until the first commits or rolls back, and only then recomputes the
// balance it spends against.
func (r *CreditRepository) SpendLots(ctx context.Context, userID string, amount int, jobID, source string, now time.Time) ([]*model.CreditLedger, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return nil, 0, err
	}

	balance, err := sumNonExpired(ctx, tx, userID, now)
	if err != nil {
		return nil, 0, err
	}
	if balance < amount {
		return nil, balance, &apperr.InsufficientCredits{UserID: userID, Requested: amount, Available: balance}
	}

	lots, err := spendableLots(ctx, tx, userID, now)
	if err != nil {
		return nil, 0, err
	}

	var jobIDPtr *string
	if jobID != "" {
		jobIDPtr = &jobID
	}

	var spendRows []*model.CreditLedger
	remaining := amount
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		used := lot.Remaining
		if used > remaining {
			used = remaining
		}
		if used <= 0 {
			continue
		}
		lotID := lot.LotID
		var id int64
		var createdAt time.Time
		err := tx.QueryRow(ctx, `
			INSERT INTO credit_ledger (user_id, lot_id, event_type, delta, source, job_id, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, userID, lotID, model.EventSpend, -used, source, jobIDPtr, lot.ExpiresAt).Scan(&id, &createdAt)
		if err != nil {
			return nil, 0, err
		}
		spendRows = append(spendRows, &model.CreditLedger{
			ID: id, UserID: userID, LotID: &lotID, EventType: model.EventSpend,
			Delta: -used, Source: source, JobID: jobIDPtr, CreatedAt: createdAt, ExpiresAt: lot.ExpiresAt,
		})
		remaining -= used
	}

	if remaining > 0 {
		return nil, balance, &apperr.InsufficientCredits{UserID: userID, Requested: amount, Available: amount - remaining}
	}

	newBalance := balance - amount
	if _, err := tx.Exec(ctx, `
		UPDATE credit_accounts SET balance = $2, updated_at = NOW() WHERE user_id = $1
	`, userID, newBalance); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return spendRows, newBalance, nil
}

// spendableLots groups non-expired positive-lot ledger rows by lot_id,
// ordering lots by the originating grant's (expires_at, created_at, id) —
// "soonest to expire first" — and computing each lot's remaining balance
// as the sum of every row (grant and prior spends) sharing that lot_id.
func spendableLots(ctx context.Context, q querier, userID string, now time.Time) ([]model.Lot, error) {
	rows, err := q.Query(ctx, `
		SELECT lot_id, MIN(expires_at) AS expires_at, SUM(delta) AS remaining
		FROM credit_ledger
		WHERE user_id = $1 AND lot_id IS NOT NULL
		GROUP BY lot_id
		HAVING SUM(delta) > 0 AND (MIN(expires_at) IS NULL OR MIN(expires_at) > $2)
		ORDER BY MIN(expires_at) ASC NULLS LAST, MIN(created_at) ASC, MIN(id) ASC
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		var lot model.Lot
		if err := rows.Scan(&lot.LotID, &lot.ExpiresAt, &lot.Remaining); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *CreditRepository) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	query := `
		SELECT user_id, plan_key, status, current_period_end, provider, provider_customer_id, provider_subscription_id
		FROM subscriptions WHERE user_id = $1
	`
	sub := &model.Subscription{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&sub.UserID, &sub.PlanKey, &sub.Status, &sub.CurrentPeriodEnd,
		&sub.Provider, &sub.ProviderCustomerID, &sub.ProviderSubID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func scanLedgerRow(row pgx.Row) (*model.CreditLedger, error) {
	l := &model.CreditLedger{}
	var metadata []byte
	if err := row.Scan(&l.ID, &l.UserID, &l.LotID, &l.EventType, &l.Delta, &l.Source, &l.JobID, &l.CreatedAt, &l.ExpiresAt, &metadata); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &l.Metadata); err != nil {
			return nil, err
		}
	}
	return l, nil
}
