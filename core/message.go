package core

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

// Conversation roles understood by the provider adapters.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall describes a tool invocation request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider
// branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one turn fragment in a conversation. Assistant messages may carry
// tool calls; tool messages carry the serialized outcome for the originating
// call (ToolCallID links the two).
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// UserMessage is a convenience constructor for a user-authored text message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage constructs an assistant message with plain text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolResultMessage records the serialized outcome of a tool call so the
// model can observe it on the next turn.
func ToolResultMessage(callID string, payload string) Message {
	return Message{Role: RoleTool, Content: payload, ToolCallID: callID}
}

// ConversationRecord is the durable session memory for one conversation:
// the transcript, the last routed specialist and routing history. Records are
// appended to on every turn and never deleted by this subsystem.
type ConversationRecord struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	OrganizationID string            `json:"organization_id"`
	Messages       []Message         `json:"messages"`
	ActiveAgent    string            `json:"active_agent,omitempty"`
	AgentHistory   []string          `json:"agent_history,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// LastMessages returns up to n trailing messages of the transcript. The
// returned slice is a copy.
func (c *ConversationRecord) LastMessages(n int) []Message {
	if c == nil || n <= 0 {
		return nil
	}
	msgs := c.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
