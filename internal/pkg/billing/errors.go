package billing

import (
	"errors"
	"fmt"

	"github.com/keetontrades/membergate/app/models"
)

var (
	// ErrPlanNotFound is returned by the catalog for unknown plan identifiers.
	ErrPlanNotFound = errors.New("billing: plan not found")

	// ErrNotConfigured is returned by a provider client constructed with a
	// missing or placeholder credential. The client refuses to issue requests.
	ErrNotConfigured = errors.New("billing: provider is not configured")

	// ErrNoProviderConfigured is returned by the checkout router when neither
	// provider can take the purchase. Not retryable.
	ErrNoProviderConfigured = errors.New("billing: no payment provider is configured")

	// ErrSessionNotFound is returned by the session registry.
	ErrSessionNotFound = errors.New("billing: checkout session not found")
)

// ProviderErrorKind classifies provider call failures.
type ProviderErrorKind string

const (
	ProviderErrUnauthorized ProviderErrorKind = "unauthorized"
	ProviderErrRateLimited  ProviderErrorKind = "rate_limited"
	ProviderErrNotFound     ProviderErrorKind = "not_found"
	ProviderErrUnreachable  ProviderErrorKind = "unreachable"
	ProviderErrFailure      ProviderErrorKind = "provider_error"
)

// ProviderError carries a failed provider call with the original response
// preserved for diagnostics. Retrying is the caller's policy, never the
// client's.
type ProviderError struct {
	Provider   models.Provider
	Kind       ProviderErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status=%d body=%s)", e.Provider, e.Kind, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CheckoutFailedError wraps a provider failure that aborted a checkout.
// No partial session state exists when this is returned.
type CheckoutFailedError struct {
	PlanID   string
	Provider models.Provider
	Err      error
}

func (e *CheckoutFailedError) Error() string {
	return fmt.Sprintf("checkout failed for plan %q via %s: %v", e.PlanID, e.Provider, e.Err)
}

func (e *CheckoutFailedError) Unwrap() error { return e.Err }
