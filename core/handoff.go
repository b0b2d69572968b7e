package core

import "fmt"

// Specialist names the four routing targets of the triage step.
type Specialist string

// The fixed specialist fleet. Triage maps every user turn to exactly one.
const (
	SpecialistCustomer  Specialist = "customer"
	SpecialistOrder     Specialist = "order"
	SpecialistAnalytics Specialist = "analytics"
	SpecialistQuote     Specialist = "quote"
)

// Specialists lists the allowed routing targets in stable order.
func Specialists() []Specialist {
	return []Specialist{SpecialistCustomer, SpecialistOrder, SpecialistAnalytics, SpecialistQuote}
}

// MaxHandoffReasonLen bounds the triage justification carried in a decision.
const MaxHandoffReasonLen = 500

// HandoffDecision is the immutable result of one triage invocation: the
// chosen specialist, a short justification and whether prior conversation
// context travels along.
type HandoffDecision struct {
	TargetAgent     Specialist `json:"target_agent"`
	Reason          string     `json:"reason"`
	PreserveContext bool       `json:"preserve_context"`
}

// Validate checks the decision against the handoff schema: a known target and
// a bounded reason.
func (d HandoffDecision) Validate() error {
	switch d.TargetAgent {
	case SpecialistCustomer, SpecialistOrder, SpecialistAnalytics, SpecialistQuote:
	default:
		return &ValidationError{Field: "target_agent", Message: fmt.Sprintf("unknown specialist %q", d.TargetAgent)}
	}
	if len(d.Reason) > MaxHandoffReasonLen {
		return &ValidationError{Field: "reason", Message: fmt.Sprintf("reason exceeds %d characters", MaxHandoffReasonLen)}
	}
	return nil
}
