// Package approval implements the draft-approval subsystem: persistence for
// staged mutation drafts and the workflow that moves them through their
// lifecycle. Nothing in the CRM changes until a draft reaches applied, and
// the apply itself re-derives the mutation from the stored draft alone.
package approval

import (
	"context"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
)

// Store persists approval records. Every operation is scoped by organization
// id; records of another organization behave as missing.
type Store interface {
	// Stage inserts a new pending record. The id must be unused.
	Stage(ctx context.Context, rec *core.ApprovalRecord) error

	// Get returns the record or a NotFoundError.
	Get(ctx context.Context, orgID, id string) (*core.ApprovalRecord, error)

	// List returns records filtered by status, newest first. An empty filter
	// returns all records of the organization.
	List(ctx context.Context, orgID string, statuses ...core.ApprovalStatus) ([]*core.ApprovalRecord, error)

	// SetStatus transitions the record, recording who reviewed it. The
	// transition itself is validated by the workflow; the store only writes.
	SetStatus(ctx context.Context, orgID, id string, status core.ApprovalStatus, reviewedBy string) error

	// Apply runs mutate and the transition to applied atomically: either the
	// domain mutations commit and the record becomes applied, or neither
	// happens.
	Apply(ctx context.Context, orgID, id, appliedBy string, mutate func(tx domain.Tx) error) error
}
