// Package agent implements the orchestration layer: the triage step that
// routes each user turn to one specialist, and the runner that drives a
// specialist's model/tool loop while streaming events to the caller.
package agent

import (
	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/memory"
)

// MemoryPolicy controls whether and how a descriptor's turns consume the
// memory context.
type MemoryPolicy struct {
	Enabled bool         `json:"enabled"`
	Scope   memory.Scope `json:"scope,omitempty"`
}

// Descriptor is the immutable configuration of one agent: model selection,
// sampling, loop bounds and memory policy. Descriptors are assembled once at
// wiring time through Build and never mutated afterwards.
type Descriptor struct {
	Name         core.Specialist `json:"name"`
	SystemPrompt string          `json:"system_prompt"`
	Model        string          `json:"model"`
	Temperature  float64         `json:"temperature"`
	MaxTokens    int             `json:"max_tokens"`
	MaxTurns     int             `json:"max_turns"`
	Memory       MemoryPolicy    `json:"memory"`
}

// Overrides selectively replaces descriptor fields. Pointer fields
// distinguish "leave the default" from an explicit zero.
type Overrides struct {
	SystemPrompt string
	Model        string
	Temperature  *float64
	MaxTokens    int
	MaxTurns     int
	Memory       *MemoryPolicy
}

// SpecialistDefaults returns the base configuration shared by the specialist
// fleet. The domain prompt is filled in per specialist by Build.
func SpecialistDefaults() Descriptor {
	return Descriptor{
		Model:       "gpt-4o",
		Temperature: 0.3,
		MaxTokens:   2048,
		MaxTurns:    10,
		Memory:      MemoryPolicy{Enabled: true, Scope: memory.ScopeUser},
	}
}

// TriageDefaults returns the routing model configuration: a small fast model,
// near-deterministic sampling, a single forced-tool turn and no memory.
func TriageDefaults() Descriptor {
	return Descriptor{
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   256,
		MaxTurns:    1,
	}
}

// Build derives a specialist descriptor from the defaults, the specialist's
// domain prompt and the caller's overrides. It is a pure function: neither
// input is mutated.
func Build(name core.Specialist, base Descriptor, ov Overrides) Descriptor {
	d := base
	d.Name = name
	d.SystemPrompt = DomainPrompt(name)

	if ov.SystemPrompt != "" {
		d.SystemPrompt = ov.SystemPrompt
	}
	if ov.Model != "" {
		d.Model = ov.Model
	}
	if ov.Temperature != nil {
		d.Temperature = *ov.Temperature
	}
	if ov.MaxTokens > 0 {
		d.MaxTokens = ov.MaxTokens
	}
	if ov.MaxTurns > 0 {
		d.MaxTurns = ov.MaxTurns
	}
	if ov.Memory != nil {
		d.Memory = *ov.Memory
	}
	return d
}
