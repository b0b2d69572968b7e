package core

import (
	"encoding/json"
	"time"
)

// ApprovalStatus enumerates the draft-approval lifecycle.
type ApprovalStatus string

// Lifecycle states. Applied, rejected and cancelled are terminal; approved is
// not — it awaits apply.
const (
	StatusPending   ApprovalStatus = "pending"
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
	StatusApplied   ApprovalStatus = "applied"
	StatusCancelled ApprovalStatus = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s ApprovalStatus) Terminal() bool {
	switch s {
	case StatusApplied, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// ApprovalTTL is the lifetime of a pending draft from creation.
const ApprovalTTL = 24 * time.Hour

// ApprovalRecord is a staged mutation awaiting human review. Draft is opaque
// JSON computed by the originating write tool and must contain everything
// needed to perform the mutation: apply never consults conversation state.
type ApprovalRecord struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	OrganizationID string          `json:"organization_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Action         string          `json:"action"`
	Agent          string          `json:"agent"`
	Draft          json.RawMessage `json:"draft"`
	Diff           *Diff           `json:"diff,omitempty"`
	Status         ApprovalStatus  `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ReviewedBy     string          `json:"reviewed_by,omitempty"`
	AppliedBy      string          `json:"applied_by,omitempty"`
}

// NewApprovalRecord stages a pending record with the default 24h lifetime.
func NewApprovalRecord(uc UserContext, conversationID, action, agent string, draft json.RawMessage, diff *Diff) *ApprovalRecord {
	now := time.Now().UTC()
	return &ApprovalRecord{
		ID:             NewID(),
		UserID:         uc.UserID,
		OrganizationID: uc.OrganizationID,
		ConversationID: conversationID,
		Action:         action,
		Agent:          agent,
		Draft:          draft,
		Diff:           diff,
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ApprovalTTL),
	}
}

// Expired reports whether the record's review window has lapsed at t.
func (r *ApprovalRecord) Expired(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// Clone returns a deep copy safe for independent mutation.
func (r *ApprovalRecord) Clone() *ApprovalRecord {
	c := *r
	c.Draft = append(json.RawMessage(nil), r.Draft...)
	if r.Diff != nil {
		d := Diff{
			Before: append(json.RawMessage(nil), r.Diff.Before...),
			After:  append(json.RawMessage(nil), r.Diff.After...),
		}
		c.Diff = &d
	}
	return &c
}
