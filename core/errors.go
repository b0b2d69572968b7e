package core

import "fmt"

// The error taxonomy of the pipeline. Auth and provider failures are the only
// turn-fatal classes; everything else is surfaced as structured data and left
// to the caller (or the model, for tool errors) to act on. The core never
// retries: a silent retry could duplicate side-effecting tool calls.

// AuthError signals missing or invalid caller identity. Fatal to the turn.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %s", e.Message) }

// ValidationError signals bad tool input or an invalid state transition.
// For approval transitions, CurrentStatus names the state the record was
// actually in so the caller can decide whether to refresh and retry.
type ValidationError struct {
	Field         string
	Message       string
	CurrentStatus ApprovalStatus
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

// NotFoundError signals a referenced entity that is missing or inaccessible
// within the caller's organization.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %q", e.Entity, e.ID)
}

// ConflictError signals an optimistic-concurrency version mismatch or a
// duplicate identifier. The caller may retry with fresh data.
type ConflictError struct {
	Entity          string
	ID              string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %q changed (draft version %d, current %d)",
		e.Entity, e.ID, e.ExpectedVersion, e.ActualVersion)
}

// ProviderError signals a model call failure or timeout. Partial output
// already emitted before the failure is preserved on the stream.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
