package model

import "errors"

// ErrInvalidPlanKey is returned by GrantMonthly for a plan_key absent from
// PlanMonthlyCredits.
var ErrInvalidPlanKey = errors.New("credits: invalid plan key")

// ErrSubscriptionNotFound is returned when no subscription row exists for
// the user.
var ErrSubscriptionNotFound = errors.New("credits: subscription not found")
