package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/logging"
	"github.com/crmforge/agentdesk/model"
)

// HandoffToolName is the single tool the triage model is forced to call.
const HandoffToolName = "handoff_to_agent"

// FallbackReason is the justification recorded when triage cannot produce a
// usable decision and routing falls through to the customer specialist.
const FallbackReason = "Default routing due to missing tool call"

const triagePrompt = `You are the triage router of a CRM copilot. Read the
conversation and decide which specialist should handle the latest user
message. You must call handoff_to_agent exactly once with your decision:
- customer: customer profiles, contacts, notes, account questions
- order: order status, line items, shipping, order changes
- analytics: revenue, trends, reports, aggregated numbers
- quote: drafting offers and pricing proposals
Set preserve_context to true unless the user clearly changed topic.`

// handoffDefinition is the forced-call schema for the routing decision.
func handoffDefinition() model.ToolDefinition {
	targets := make([]any, 0, 4)
	for _, s := range core.Specialists() {
		targets = append(targets, string(s))
	}
	return model.ToolDefinition{
		Name:        HandoffToolName,
		Description: "Route the conversation to the specialist best suited for the latest user message.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target_agent": map[string]any{
					"type":        "string",
					"description": "The specialist to hand the conversation to",
					"enum":        targets,
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Short justification for the routing choice",
					"maxLength":   core.MaxHandoffReasonLen,
				},
				"preserve_context": map[string]any{
					"type":        "boolean",
					"description": "Whether prior conversation context travels to the specialist",
				},
			},
			"required": []string{"target_agent", "reason"},
		},
	}
}

// Triage performs the routing step: one non-streaming model call with the
// handoff tool forced, returning the first valid decision or the
// deterministic fallback.
type Triage struct {
	model  model.Model
	desc   Descriptor
	logger logging.Logger
}

// NewTriage constructs the triage router. logger may be nil.
func NewTriage(m model.Model, desc Descriptor, logger logging.Logger) *Triage {
	return &Triage{model: m, desc: desc, logger: logging.OrNoOp(logger)}
}

// Route decides the specialist for the latest user message. A model that
// violates the forced tool choice, or returns an undecodable or invalid
// decision, does not fail the turn: routing falls back to the customer
// specialist with context preserved, and the violation is logged.
func (t *Triage) Route(ctx context.Context, messages []core.Message) (core.HandoffDecision, model.Usage, error) {
	req := model.Request{
		Model:       t.desc.Model,
		System:      triagePrompt,
		Messages:    messages,
		Tools:       []model.ToolDefinition{handoffDefinition()},
		ToolChoice:  model.ForceTool(HandoffToolName),
		Temperature: t.desc.Temperature,
		MaxTokens:   t.desc.MaxTokens,
	}

	respCh, errCh := t.model.Generate(ctx, req)

	var (
		usage    model.Usage
		decision *core.HandoffDecision
	)
	for resp := range respCh {
		if resp.Usage != nil {
			usage.Add(*resp.Usage)
		}
		if decision != nil {
			continue
		}
		for _, call := range resp.ToolCalls {
			if d, ok := t.decodeHandoff(call); ok {
				decision = &d
				break
			}
		}
	}
	err := <-errCh

	// The first valid decision stands even when the stream fails after it:
	// the routing choice was already made.
	if decision != nil {
		if err != nil {
			t.logger.Warn("triage.stream_error_after_decision", "error", err.Error())
		}
		return *decision, usage, nil
	}
	if err != nil {
		return core.HandoffDecision{}, usage, fmt.Errorf("triage: %w", err)
	}

	t.logger.Warn("triage.fallback", "reason", "no valid handoff tool call", "model", t.desc.Model)
	return core.HandoffDecision{
		TargetAgent:     core.SpecialistCustomer,
		Reason:          FallbackReason,
		PreserveContext: true,
	}, usage, nil
}

// decodeHandoff decodes and validates one tool call as a routing decision.
// preserve_context is optional in the schema and defaults to true when the
// model omits it.
func (t *Triage) decodeHandoff(call core.ToolCall) (core.HandoffDecision, bool) {
	if call.Name != HandoffToolName {
		return core.HandoffDecision{}, false
	}
	var raw struct {
		TargetAgent     core.Specialist `json:"target_agent"`
		Reason          string          `json:"reason"`
		PreserveContext *bool           `json:"preserve_context"`
	}
	if err := json.Unmarshal(call.Arguments, &raw); err != nil {
		t.logger.Warn("triage.decision_undecodable", "error", err.Error())
		return core.HandoffDecision{}, false
	}
	decision := core.HandoffDecision{
		TargetAgent:     raw.TargetAgent,
		Reason:          raw.Reason,
		PreserveContext: raw.PreserveContext == nil || *raw.PreserveContext,
	}
	if err := decision.Validate(); err != nil {
		t.logger.Warn("triage.decision_invalid", "error", err.Error())
		return core.HandoffDecision{}, false
	}
	return decision, true
}
