package model

import (
	"context"

	"github.com/crmforge/agentdesk/core"
)

// ToolChoiceMode selects how the provider may use the attached tools.
type ToolChoiceMode string

// Tool choice modes. ToolChoiceForced pins the model to a single named tool —
// it must invoke that tool rather than answer freely.
const (
	ToolChoiceAuto   ToolChoiceMode = "auto"
	ToolChoiceForced ToolChoiceMode = "forced"
)

// ToolChoice is an explicit request parameter, not a convention the caller
// must remember: a forced choice names the one tool the model is required to
// call.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Tool string         `json:"tool,omitempty"`
}

// ForceTool builds a forced-single-tool choice.
func ForceTool(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceForced, Tool: name}
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input for one generation call.
type Request struct {
	Model       string           `json:"model"`
	System      string           `json:"system"`
	Messages    []core.Message   `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  ToolChoice       `json:"tool_choice"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream,omitempty"`
}

// Usage captures token accounting for a completed call.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}

// Add accumulates another call's usage into u. The last non-empty model id
// wins, which matches a pipeline where every call in a turn uses one model.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	if other.Model != "" {
		u.Model = other.Model
	}
}

// Response is a (partial or final) chunk emitted by a streaming model call.
// Partial chunks carry incremental TextDelta; the final chunk carries any
// completed tool calls, the finish reason and usage.
type Response struct {
	Partial      bool            `json:"partial"`
	TextDelta    string          `json:"text_delta,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the provider interface the pipeline drives. Generate returns a
// cancellable response stream plus a terminal error channel; cancelling ctx
// immediately terminates the underlying provider stream. Implementations must
// honor ToolChoiceForced by constraining the model to the named tool.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}
