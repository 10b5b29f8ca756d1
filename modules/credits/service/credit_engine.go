// Package service implements the credit engine: an append-only ledger with
// expiring positive lots, FIFO consumption, and a cached balance
// reconciled against the ledger as the source of truth.
package service

import (
	"context"
	"time"

	"github.com/brightleads/dmengine/internal/platform/logger"
	platformredis "github.com/brightleads/dmengine/internal/platform/redis"
	"github.com/brightleads/dmengine/modules/credits/model"
	"github.com/brightleads/dmengine/modules/credits/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreditEngine is the public API for the append-only ledger described in
// the data model: grants, admin adjustments, and FIFO spend.
type CreditEngine struct {
	repo  ports.CreditRepository
	cache *platformredis.Client
	log   *logger.Logger
	topup time.Duration
}

// NewCreditEngine builds a CreditEngine. cache may be nil; it is only an
// idempotency accelerator, never the source of truth.
func NewCreditEngine(repo ports.CreditRepository, cache *platformredis.Client, log *logger.Logger, topupExpiry time.Duration) *CreditEngine {
	return &CreditEngine{repo: repo, cache: cache, log: log, topup: topupExpiry}
}

// GetOrCreateAccount returns the user's cached balance row, creating it
// with a zero balance if this is the first time the user is seen.
func (e *CreditEngine) GetOrCreateAccount(ctx context.Context, userID string) (*model.CreditAccount, error) {
	return e.repo.EnsureAccount(ctx, userID)
}

// RecalculateEffectiveBalance is the single source of truth: it sums every
// non-expired ledger delta for the user, persists it onto the cached
// account, and returns the sum.
func (e *CreditEngine) RecalculateEffectiveBalance(ctx context.Context, userID string, now time.Time) (int, error) {
	return e.repo.RecalculateBalance(ctx, userID, now)
}

// GrantMonthly appends the plan's fixed monthly credit grant as a fresh
// lot expiring at currentPeriodEnd. Idempotent per (userID, source).
func (e *CreditEngine) GrantMonthly(ctx context.Context, userID string, planKey model.PlanKey, currentPeriodEnd time.Time, source string, metadata map[string]any) (*model.CreditLedger, error) {
	credits, ok := model.PlanMonthlyCredits[planKey]
	if !ok {
		return nil, model.ErrInvalidPlanKey
	}
	lotID := uuid.NewString()
	row := &model.CreditLedger{
		UserID: userID, LotID: &lotID, EventType: model.EventGrantMonthly,
		Delta: credits, Source: source, ExpiresAt: &currentPeriodEnd, Metadata: metadata,
	}
	return e.grant(ctx, userID, row)
}

// GrantTopup appends a purchased, 90-day-expiring lot. Idempotent per
// (userID, source).
func (e *CreditEngine) GrantTopup(ctx context.Context, userID string, credits int, source string, metadata map[string]any) (*model.CreditLedger, error) {
	lotID := uuid.NewString()
	expires := time.Now().Add(e.topup)
	row := &model.CreditLedger{
		UserID: userID, LotID: &lotID, EventType: model.EventTopup,
		Delta: credits, Source: source, ExpiresAt: &expires, Metadata: metadata,
	}
	return e.grant(ctx, userID, row)
}

// GrantCoupon appends a promotional lot with a caller-supplied expiry
// (nil means no expiry). Idempotent per (userID, source).
func (e *CreditEngine) GrantCoupon(ctx context.Context, userID string, credits int, source string, expiresAt *time.Time, metadata map[string]any) (*model.CreditLedger, error) {
	lotID := uuid.NewString()
	row := &model.CreditLedger{
		UserID: userID, LotID: &lotID, EventType: model.EventCoupon,
		Delta: credits, Source: source, ExpiresAt: expiresAt, Metadata: metadata,
	}
	return e.grant(ctx, userID, row)
}

// AdminAdjust appends a signed adjustment row with no lot semantics (it is
// never selected by spend's lot walk since it carries no lot_id) and no
// expiry. Idempotent per (userID, source).
func (e *CreditEngine) AdminAdjust(ctx context.Context, userID string, delta int, source string, metadata map[string]any) (*model.CreditLedger, error) {
	row := &model.CreditLedger{
		UserID: userID, EventType: model.EventAdminAdjust,
		Delta: delta, Source: source, Metadata: metadata,
	}
	return e.grant(ctx, userID, row)
}

// AdminSet appends whatever signed delta is required to bring the
// reconciled balance to target, recorded as event_type=admin_set.
// Idempotent per (userID, source).
func (e *CreditEngine) AdminSet(ctx context.Context, userID string, target int, source string, metadata map[string]any) (*model.CreditLedger, error) {
	current, err := e.repo.RecalculateBalance(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	row := &model.CreditLedger{
		UserID: userID, EventType: model.EventAdminSet,
		Delta: target - current, Source: source, Metadata: metadata,
	}
	return e.grant(ctx, userID, row)
}

func (e *CreditEngine) grant(ctx context.Context, userID string, row *model.CreditLedger) (*model.CreditLedger, error) {
	if e.cache != nil {
		guarded := e.cache.AcquireIdempotencyKey(ctx, platformredis.CreditSourceIdempotencyKey(userID, row.Source), 24*time.Hour)
		if !guarded {
			if existing, err := e.repo.FindBySource(ctx, userID, row.Source); err == nil && existing != nil {
				return existing, nil
			}
		}
	}

	result, created, err := e.repo.InsertGrant(ctx, row)
	if err != nil {
		return nil, err
	}
	if e.log != nil {
		e.log.WithAction("credits.grant").Info("credit grant",
			zap.String("user_id", userID), zap.String("source", row.Source),
			zap.String("event_type", string(row.EventType)), zap.Int("delta", row.Delta),
			zap.Bool("created", created))
	}
	return result, nil
}

// SpendResult is the outcome of a successful Spend call.
type SpendResult struct {
	SpendRows []*model.CreditLedger
	Balance   int
}

// Spend consumes amount credits from the user's non-expired lots in
// soonest-to-expire-first order, within one transaction, or returns
// *apperr.InsufficientCredits if the balance cannot cover it.
func (e *CreditEngine) Spend(ctx context.Context, userID string, amount int, jobID string, source string, now time.Time) (*SpendResult, error) {
	rows, balance, err := e.repo.SpendLots(ctx, userID, amount, jobID, source, now)
	if err != nil {
		return nil, err
	}
	if e.log != nil {
		e.log.WithAction("credits.spend").Info("credit spend",
			zap.String("user_id", userID), zap.Int("amount", amount),
			zap.String("job_id", jobID), zap.Int("balance", balance))
	}
	return &SpendResult{SpendRows: rows, Balance: balance}, nil
}

// GetSubscription returns the user's plan binding, a read path only;
// mutating it is the out-of-scope billing webhook's job.
func (e *CreditEngine) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	return e.repo.GetSubscription(ctx, userID)
}
