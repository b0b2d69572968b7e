package model

import (
	"context"
	"fmt"

	"github.com/crmforge/agentdesk/core"
)

// Turn scripts one model call of a ScriptedModel: text streamed as per-rune
// deltas, optional tool calls on the final chunk, or a mid-stream failure
// after the text was emitted.
type Turn struct {
	Text      string
	ToolCalls []core.ToolCall
	Fail      error
	Usage     Usage
}

// ScriptedModel is an in-memory Model for tests. Calls consume scripted turns
// in order; a call past the end of the script returns an error. It is the
// deterministic stand-in for a provider, including policy violations (a
// forced-choice call whose turn carries no tool call) and mid-stream
// failures.
type ScriptedModel struct {
	info     Info
	turns    []Turn
	call     int
	Requests []Request // captured inputs, inspectable by tests
}

// NewScriptedModel constructs a ScriptedModel that plays back turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "test", SupportsTools: true},
		turns: turns,
	}
}

// Generate implements Model; emits streaming rune chunks then the final
// response, or the scripted failure.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.Requests = append(m.Requests, req)
	if m.call >= len(m.turns) {
		close(respCh)
		errCh <- fmt.Errorf("scripted model exhausted after %d calls", m.call)
		close(errCh)
		return respCh, errCh
	}
	turn := m.turns[m.call]
	m.call++

	go func() {
		defer close(respCh)
		defer close(errCh)

		if req.Stream {
			for _, r := range turn.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, TextDelta: string(r)}:
				}
			}
		}

		if turn.Fail != nil {
			errCh <- turn.Fail
			return
		}

		final := Response{
			ToolCalls:    turn.ToolCalls,
			FinishReason: "stop",
			Usage:        &Usage{},
		}
		*final.Usage = turn.Usage
		if final.Usage.Model == "" {
			final.Usage.Model = req.Model
		}
		if !req.Stream {
			final.TextDelta = turn.Text
		}
		if len(turn.ToolCalls) > 0 {
			final.FinishReason = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- final:
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Calls reports how many generation calls were made.
func (m *ScriptedModel) Calls() int { return m.call }
