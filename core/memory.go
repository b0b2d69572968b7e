package core

import "time"

// MaxRecentActions bounds the action trail carried in working memory.
const MaxRecentActions = 10

// WorkingMemory is the short-lived, TTL-bound UI/session context for a user
// within an organization: where they are, what they touched, what is pending.
// It may be absent, in which case it is treated as empty — memory is an
// enhancement, never a correctness requirement.
type WorkingMemory struct {
	UserID             string    `json:"user_id"`
	OrganizationID     string    `json:"organization_id"`
	CurrentPage        string    `json:"current_page,omitempty"`
	ActiveEntityID     string    `json:"active_entity_id,omitempty"`
	RecentActions      []string  `json:"recent_actions,omitempty"`
	PendingApprovalIDs []string  `json:"pending_approval_ids,omitempty"`
	DraftInProgress    string    `json:"draft_in_progress,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Empty reports whether the memory carries no usable context.
func (w WorkingMemory) Empty() bool {
	return w.CurrentPage == "" && w.ActiveEntityID == "" &&
		len(w.RecentActions) == 0 && len(w.PendingApprovalIDs) == 0 &&
		w.DraftInProgress == ""
}

// RecordAction appends an action to the trail, trimming to MaxRecentActions.
func (w *WorkingMemory) RecordAction(action string) {
	w.RecentActions = append(w.RecentActions, action)
	if len(w.RecentActions) > MaxRecentActions {
		w.RecentActions = w.RecentActions[len(w.RecentActions)-MaxRecentActions:]
	}
}
