package errors

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed claim input. Field names the offending
// field so the caller can correct it; these are never retried automatically.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Msg)
}

// EntityNotFoundError indicates the requested claim/plan/report does not
// exist. Distinct from UnauthorizedError internally; the HTTP boundary may
// present the two identically.
type EntityNotFoundError struct {
	Entity string
	ID     uint
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("no %s found with id %d", e.Entity, e.ID)
}

// UnauthorizedError indicates the actor does not own the resource.
type UnauthorizedError struct {
	Entity string
	ID     uint
	UserID uint
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %d does not own %s %d", e.UserID, e.Entity, e.ID)
}

// InvalidTransitionError indicates a status edge not present in the claim
// state machine. The claim is left unmodified.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid claim status transition from %s to %s", e.From, e.To)
}

// ClaimNotSubmittableError indicates a submit attempt on a claim whose
// current status does not permit submission.
type ClaimNotSubmittableError struct {
	ClaimID uint
	Status  string
}

func (e *ClaimNotSubmittableError) Error() string {
	return fmt.Sprintf("claim %d cannot be submitted in status %s", e.ClaimID, e.Status)
}

// ClaimNotEditableError indicates a line-item or field mutation attempt
// outside of DRAFT/READY/REJECTED.
type ClaimNotEditableError struct {
	ClaimID uint
	Status  string
}

func (e *ClaimNotEditableError) Error() string {
	return fmt.Sprintf("claim %d cannot be edited in status %s", e.ClaimID, e.Status)
}

// ClaimNotCancellableError indicates a cancel attempt outside of the
// deletable states.
type ClaimNotCancellableError struct {
	ClaimID uint
	Status  string
}

func (e *ClaimNotCancellableError) Error() string {
	return fmt.Sprintf("claim %d cannot be cancelled in status %s", e.ClaimID, e.Status)
}

// ProviderError reports an external eligibility API failure after retries
// are exhausted. The checker absorbs these via the simulated fallback.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("eligibility provider %s failed: %s", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UnexpectedStatusCodeError reports a non-2xx response from an eligibility
// provider endpoint.
type UnexpectedStatusCodeError struct {
	StatusCode int
	Body       string
}

func (e *UnexpectedStatusCodeError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

// ConfigurationError reports missing provider credentials. Raised at
// construction time so misconfiguration fails fast rather than on first use.
type ConfigurationError struct {
	Provider string
	Missing  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s misconfigured, missing: %s", e.Provider, strings.Join(e.Missing, ", "))
}
