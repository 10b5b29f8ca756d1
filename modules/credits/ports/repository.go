package ports

import (
	"context"
	"time"

	"github.com/brightleads/dmengine/modules/credits/model"
)

// CreditRepository is the persistence boundary for the credit engine. Each
// method is transactional on its own: callers never see a partially
// applied ledger row plus stale account balance.
type CreditRepository interface {
	// EnsureAccount idempotently creates the zero-balance account row for
	// userID if it does not already exist, then returns the current row.
	EnsureAccount(ctx context.Context, userID string) (*model.CreditAccount, error)

	// RecalculateBalance sums every non-expired ledger delta for userID as
	// of now, persists it onto the account row, and returns the sum.
	RecalculateBalance(ctx context.Context, userID string, now time.Time) (int, error)

	// FindBySource looks up the existing ledger row for (userID, source),
	// returning nil if none exists.
	FindBySource(ctx context.Context, userID, source string) (*model.CreditLedger, error)

	// InsertGrant inserts a positive ledger row and bumps the cached account
	// balance by row.Delta, atomically, unless a row for (userID, row.Source)
	// already exists — in which case it returns the existing row and
	// created=false without mutating anything.
	InsertGrant(ctx context.Context, row *model.CreditLedger) (result *model.CreditLedger, created bool, err error)

	// SpendLots recalculates the effective balance, selects spendable lots
	// in FIFO-by-expiry order, appends one negative ledger row per consumed
	// lot, and decrements the account balance — all within one transaction.
	// Returns the spend rows created and the resulting balance, or
	// *apperr.InsufficientCredits if the balance (or lot total) cannot
	// cover amount.
	SpendLots(ctx context.Context, userID string, amount int, jobID, source string, now time.Time) ([]*model.CreditLedger, int, error)

	// GetSubscription returns the user's subscription row, or
	// model.ErrSubscriptionNotFound if none exists.
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
}
