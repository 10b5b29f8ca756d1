// Package apperr defines the error taxonomy shared by the search, LLM,
// research, credits, and job-runner components.
package apperr

import "fmt"

// ProviderError is a non-retryable (or retry-exhausted) failure from an
// outbound HTTP provider (search or LLM).
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error: status=%d body=%q", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderDisabled signals a fatal, non-retryable provider condition such
// as HTTP 402 (insufficient provider credits) or missing configuration.
type ProviderDisabled struct {
	Reason string
}

func (e *ProviderDisabled) Error() string { return "provider disabled: " + e.Reason }

// InsufficientCredits is raised by the credit engine when a spend cannot be
// fully covered by non-expired ledger lots.
type InsufficientCredits struct {
	UserID    string
	Requested int
	Available int
}

func (e *InsufficientCredits) Error() string {
	return fmt.Sprintf("insufficient credits for user %s: requested=%d available=%d", e.UserID, e.Requested, e.Available)
}

// CancellationRequested signals the Job Runner observed an externally-set
// cancelled status at a batch boundary.
type CancellationRequested struct {
	JobID string
}

func (e *CancellationRequested) Error() string {
	return fmt.Sprintf("job %s cancellation requested", e.JobID)
}

// MalformedLLMResponse signals extraction output that is not valid JSON
// even after the brace-slice recovery attempt.
type MalformedLLMResponse struct {
	Raw string
}

func (e *MalformedLLMResponse) Error() string { return "malformed LLM response" }

// NormalizationFailure signals a row with no usable company identity after
// normalization.
type NormalizationFailure struct {
	Reason string
}

func (e *NormalizationFailure) Error() string { return "normalization failure: " + e.Reason }
