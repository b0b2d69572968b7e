package core

import "encoding/json"

// ToolOutcome is the closed result union produced by every tool execution.
// Exactly one of the three variants is returned per call:
//
//	Data             — a read succeeded, payload is safe to show the model
//	ApprovalRequired — a write was staged as a pending draft
//	Error            — the call failed; the model sees a structured message
//
// Concrete variants implement the unexported marker so the set stays closed
// and consumers can type-switch exhaustively.
type ToolOutcome interface{ isToolOutcome() }

// Data is the success variant for read tools. Payload must already have the
// sensitive-field deny list applied before it is wrapped here.
type Data struct {
	Payload any            `json:"payload"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func (Data) isToolOutcome() {}

// ApprovalRequired is the staged-mutation variant returned by write tools.
// Draft must be sufficient on its own to perform the mutation later; the
// workflow never re-reads conversation state after approval.
type ApprovalRequired struct {
	Action     string          `json:"action"`
	ApprovalID string          `json:"approval_id"`
	Draft      json.RawMessage `json:"draft"`
	Summary    string          `json:"summary"`
	Diff       *Diff           `json:"diff,omitempty"`
}

func (ApprovalRequired) isToolOutcome() {}

// Error is the structured failure variant. It is handed back to the model as
// a tool result so it can adapt its next action; it is never raised as a Go
// error through the turn.
type Error struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (Error) isToolOutcome() {}

// Diff captures the net effect of a staged change for reviewer display.
type Diff struct {
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

// MarshalOutcome serializes an outcome for delivery to the model as a tool
// result. The variant is tagged by a "type" field so downstream consumers can
// distinguish shapes without guessing from optional fields.
func MarshalOutcome(o ToolOutcome) string {
	var tagged any
	switch v := o.(type) {
	case Data:
		tagged = struct {
			Type string `json:"type"`
			Data
		}{Type: "data", Data: v}
	case ApprovalRequired:
		tagged = struct {
			Type string `json:"type"`
			ApprovalRequired
		}{Type: "approval_required", ApprovalRequired: v}
	case Error:
		tagged = struct {
			Type string `json:"type"`
			Error
		}{Type: "error", Error: v}
	default:
		tagged = struct {
			Type string `json:"type"`
		}{Type: "error"}
	}
	b, err := json.Marshal(tagged)
	if err != nil {
		return `{"type":"error","message":"unserializable tool outcome"}`
	}
	return string(b)
}
