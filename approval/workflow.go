package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/logging"
)

// Workflow drives approval records through their lifecycle:
//
//	pending  -> approved | rejected | cancelled
//	approved -> applied  | cancelled
//
// Every other transition fails with a ValidationError naming the state the
// record is actually in. Apply is the only path that touches CRM data, and it
// re-derives the mutation from the stored draft alone.
type Workflow struct {
	store    Store
	appliers map[string]Applier
	logger   logging.Logger
	now      func() time.Time
}

// NewWorkflow constructs a workflow over the given store with the standard
// appliers. logger may be nil.
func NewWorkflow(store Store, logger logging.Logger) *Workflow {
	return &Workflow{
		store:    store,
		appliers: DefaultAppliers(),
		logger:   logging.OrNoOp(logger),
		now:      time.Now,
	}
}

// RegisterApplier adds or replaces the applier for an action. Intended for
// deployments that extend the write-tool fleet.
func (w *Workflow) RegisterApplier(action string, fn Applier) {
	w.appliers[action] = fn
}

// SetClock overrides the expiry clock. Test hook.
func (w *Workflow) SetClock(now func() time.Time) { w.now = now }

// Get returns the record, org-scoped.
func (w *Workflow) Get(ctx context.Context, uc core.UserContext, id string) (*core.ApprovalRecord, error) {
	return w.store.Get(ctx, uc.OrganizationID, id)
}

// ListPending returns the organization's drafts still awaiting review.
func (w *Workflow) ListPending(ctx context.Context, uc core.UserContext) ([]*core.ApprovalRecord, error) {
	return w.store.List(ctx, uc.OrganizationID, core.StatusPending)
}

// Approve transitions a pending record to approved. Expired drafts cannot be
// approved; they must be re-staged.
func (w *Workflow) Approve(ctx context.Context, uc core.UserContext, id string) (*core.ApprovalRecord, error) {
	rec, err := w.transition(ctx, uc, id, core.StatusApproved, core.StatusPending)
	if err != nil {
		return nil, err
	}
	w.logger.Info("approval.approved", "approval_id", id, "action", rec.Action, "reviewed_by", uc.UserID)
	return rec, nil
}

// Reject transitions a pending record to rejected.
func (w *Workflow) Reject(ctx context.Context, uc core.UserContext, id string) (*core.ApprovalRecord, error) {
	rec, err := w.transition(ctx, uc, id, core.StatusRejected, core.StatusPending)
	if err != nil {
		return nil, err
	}
	w.logger.Info("approval.rejected", "approval_id", id, "action", rec.Action, "reviewed_by", uc.UserID)
	return rec, nil
}

// Cancel withdraws a record that has not been applied yet. Both pending and
// approved records can be cancelled.
func (w *Workflow) Cancel(ctx context.Context, uc core.UserContext, id string) (*core.ApprovalRecord, error) {
	rec, err := w.transition(ctx, uc, id, core.StatusCancelled, core.StatusPending, core.StatusApproved)
	if err != nil {
		return nil, err
	}
	w.logger.Info("approval.cancelled", "approval_id", id, "action", rec.Action, "reviewed_by", uc.UserID)
	return rec, nil
}

// ApplyOptions tunes an apply.
type ApplyOptions struct {
	// Force skips the optimistic version check against the draft's base
	// version. The mutation still runs on current data.
	Force bool
}

// Apply performs an approved record's mutation atomically with its transition
// to applied. An expired record fails here regardless of its status: the
// review window lapsed and the draft must be re-staged.
func (w *Workflow) Apply(ctx context.Context, uc core.UserContext, id string, opts ApplyOptions) (*core.ApprovalRecord, error) {
	orgID := uc.OrganizationID
	rec, err := w.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != core.StatusApproved {
		return nil, transitionError(rec.Status, "apply requires an approved record")
	}
	if rec.Expired(w.now()) {
		return nil, &core.ValidationError{
			Field:         "expires_at",
			Message:       fmt.Sprintf("approval expired at %s; stage the change again", rec.ExpiresAt.Format(time.RFC3339)),
			CurrentStatus: rec.Status,
		}
	}

	applier, ok := w.appliers[rec.Action]
	if !ok {
		return nil, &core.ValidationError{Field: "action", Message: fmt.Sprintf("no applier for action %q", rec.Action)}
	}

	draft := gjson.ParseBytes(rec.Draft)
	err = w.store.Apply(ctx, orgID, id, uc.UserID, func(tx domain.Tx) error {
		return applier(ctx, tx, orgID, draft, opts.Force)
	})
	if err != nil {
		w.logger.Warn("approval.apply_failed", "approval_id", id, "action", rec.Action, "error", err.Error())
		return nil, err
	}

	w.logger.Info("approval.applied", "approval_id", id, "action", rec.Action, "applied_by", uc.UserID)
	return w.store.Get(ctx, orgID, id)
}

// transition validates the current state against the allowed sources, then
// writes the new status.
func (w *Workflow) transition(ctx context.Context, uc core.UserContext, id string, to core.ApprovalStatus, from ...core.ApprovalStatus) (*core.ApprovalRecord, error) {
	orgID := uc.OrganizationID
	rec, err := w.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, f := range from {
		if rec.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, transitionError(rec.Status, fmt.Sprintf("cannot transition to %s", to))
	}
	if to == core.StatusApproved && rec.Expired(w.now()) {
		return nil, &core.ValidationError{
			Field:         "expires_at",
			Message:       fmt.Sprintf("approval expired at %s; stage the change again", rec.ExpiresAt.Format(time.RFC3339)),
			CurrentStatus: rec.Status,
		}
	}

	if err := w.store.SetStatus(ctx, orgID, id, to, uc.UserID); err != nil {
		return nil, err
	}
	return w.store.Get(ctx, orgID, id)
}

func transitionError(current core.ApprovalStatus, msg string) error {
	return &core.ValidationError{
		Field:         "status",
		Message:       fmt.Sprintf("%s (record is %s)", msg, current),
		CurrentStatus: current,
	}
}
