package core

import "github.com/google/uuid"

// UserContext is the caller identity resolved by the tenant/session resolver.
// Every store access in the pipeline is scoped by OrganizationID taken from
// here — never from tool arguments or client input.
type UserContext struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// Valid reports whether the context carries the identifiers required for
// tenant scoping.
func (uc UserContext) Valid() bool {
	return uc.UserID != "" && uc.OrganizationID != ""
}

// NewID generates a new unique identifier for conversations, approvals and
// stream correlation.
func NewID() string { return uuid.NewString() }
