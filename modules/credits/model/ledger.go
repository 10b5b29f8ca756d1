// Package model defines the credit ledger, cached account balance, and
// subscription shapes the credit engine operates on.
package model

import "time"

// EventType enumerates the kinds of row that may appear in the ledger.
type EventType string

const (
	EventGrantMonthly EventType = "grant_monthly"
	EventTopup        EventType = "topup"
	EventCoupon       EventType = "coupon"
	EventAdminAdjust  EventType = "admin_adjust"
	EventAdminSet     EventType = "admin_set"
	EventSpend        EventType = "spend"
)

// PlanKey enumerates the subscription tiers that drive monthly grant sizes.
type PlanKey string

const (
	PlanTrial    PlanKey = "trial"
	PlanEntry    PlanKey = "entry"
	PlanPro      PlanKey = "pro"
	PlanBusiness PlanKey = "business"
	PlanAgency   PlanKey = "agency"
)

// PlanMonthlyCredits is the fixed monthly grant size per plan.
var PlanMonthlyCredits = map[PlanKey]int{
	PlanTrial:    20,
	PlanEntry:    7_250,
	PlanPro:      26_000,
	PlanBusiness: 80_000,
	PlanAgency:   249_000,
}

// CreditLedger is one append-only event row. Delta is signed; it is
// negative only for EventSpend.
type CreditLedger struct {
	ID        int64
	UserID    string
	LotID     *string
	EventType EventType
	Delta     int
	Source    string
	JobID     *string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Metadata  map[string]any
}

// CreditAccount is the cached, reconciled balance for a user.
type CreditAccount struct {
	UserID    string
	Balance   int
	UpdatedAt time.Time
}

// Subscription is a read-only reference to the user's plan binding; the
// credit engine never mutates it, only reads plan_key/current_period_end.
type Subscription struct {
	UserID             string
	PlanKey            PlanKey
	Status             string
	CurrentPeriodEnd   *time.Time
	Provider           string
	ProviderCustomerID string
	ProviderSubID      string
}

// Lot is one spendable grant: a positive ledger row plus the running
// remaining balance of every row (grant and subsequent spends) sharing its
// lot_id, as of the query time.
type Lot struct {
	LotID     string
	ExpiresAt *time.Time
	Remaining int
}
