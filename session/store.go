// Package session persists conversation records: the durable transcript and
// routing metadata of each conversation. Records are appended to on every
// turn and never deleted by the agent pipeline.
package session

import (
	"context"
	"time"

	"github.com/crmforge/agentdesk/core"
)

// Store is the conversation persistence contract. Every operation is scoped
// by organization id; a record belonging to another organization behaves as
// missing.
type Store interface {
	// Create inserts a new conversation owned by the given user.
	Create(ctx context.Context, uc core.UserContext, id string) (*core.ConversationRecord, error)

	// Get returns the conversation or a NotFoundError.
	Get(ctx context.Context, orgID, id string) (*core.ConversationRecord, error)

	// AppendMessages adds messages to the transcript.
	AppendMessages(ctx context.Context, orgID, id string, msgs ...core.Message) error

	// SetActiveAgent records the specialist a turn was routed to and appends
	// it to the routing history.
	SetActiveAgent(ctx context.Context, orgID, id string, agent string) error

	// SetMetadata merges key/value pairs into the conversation metadata.
	SetMetadata(ctx context.Context, orgID, id string, md map[string]string) error
}

// NewRecord builds an empty conversation record for the caller.
func NewRecord(uc core.UserContext, id string) *core.ConversationRecord {
	if id == "" {
		id = core.NewID()
	}
	now := time.Now().UTC()
	return &core.ConversationRecord{
		ID:             id,
		UserID:         uc.UserID,
		OrganizationID: uc.OrganizationID,
		Metadata:       map[string]string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
