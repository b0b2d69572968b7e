// Package tool implements the typed capability surface exposed to the
// specialist agents: schema-validated read tools returning sanitized data,
// write tools that stage pending drafts instead of mutating, and the registry
// that scopes toolsets per specialist.
package tool

import (
	"context"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/logging"
)

// Tool is one callable capability. Implementations must be safe for
// concurrent use; each Execute receives already-decoded arguments that the
// registry validated against Parameters.
//
// Execute returns a ToolOutcome on the normal path. A non-nil error is
// reserved for infrastructure faults the registry converts into an Error
// outcome; domain failures (not found, conflict) should be returned as
// core.Error outcomes directly so the model can adapt.
type Tool interface {
	// Name returns the unique snake_case identifier.
	Name() string

	// Description is the natural-language guidance shown to the model.
	Description() string

	// Parameters returns a minimal JSON Schema object for the arguments.
	Parameters() map[string]any

	Execute(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error)
}

// Streaming is implemented by long-running tools that report progress while
// they work. The returned channel is closed after a final emission
// (StageComplete or StageError). Execute on a Streaming tool must be
// equivalent to draining the channel and keeping the last result.
type Streaming interface {
	Tool

	Stream(ctx context.Context, tc *Context, args map[string]any) (<-chan core.Progress, error)
}

// ApprovalStager persists pending drafts produced by write tools. Satisfied
// by the approval store; split out here so tools do not depend on the
// workflow package.
type ApprovalStager interface {
	Stage(ctx context.Context, rec *core.ApprovalRecord) error
}

// Context carries per-call ambient state into tool executions: the resolved
// caller identity (the only source of the organization scope), the
// conversation and originating call ids, and the collaborator handles.
type Context struct {
	User           core.UserContext
	ConversationID string
	Agent          core.Specialist
	CallID         string

	Store     domain.Reader
	Approvals ApprovalStager

	logger logging.Logger
}

// NewContext builds a tool context. logger may be nil.
func NewContext(uc core.UserContext, conversationID string, agent core.Specialist, store domain.Reader, approvals ApprovalStager, logger logging.Logger) *Context {
	return &Context{
		User:           uc,
		ConversationID: conversationID,
		Agent:          agent,
		Store:          store,
		Approvals:      approvals,
		logger:         logging.OrNoOp(logger),
	}
}

// WithCallID returns a shallow copy bound to the given tool-call id.
func (c *Context) WithCallID(id string) *Context {
	cp := *c
	cp.CallID = id
	return &cp
}

// OrgID is the tenant scope applied to every store access.
func (c *Context) OrgID() string { return c.User.OrganizationID }

// Logger returns the bound logger, never nil.
func (c *Context) Logger() logging.Logger { return logging.OrNoOp(c.logger) }
