// Package stream defines the event protocol between a running agent turn and
// its consumer: a typed event channel carrying text deltas, tool activity,
// progress and handoffs, plus awaitable usage totals when the turn finishes.
package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/model"
)

// Event is the closed set of emissions a turn produces. Concrete variants
// implement the unexported marker so consumers can type-switch exhaustively.
type Event interface{ isEvent() }

// TextDelta is an incremental chunk of assistant text.
type TextDelta struct {
	Text string `json:"text"`
}

func (TextDelta) isEvent() {}

// ToolCallBegin announces that the model requested a tool invocation.
type ToolCallBegin struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
}

func (ToolCallBegin) isEvent() {}

// ToolProgress is one staged emission of a streaming tool.
type ToolProgress struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Progress core.Progress `json:"progress"`
}

func (ToolProgress) isEvent() {}

// ToolResult carries a completed tool call's outcome.
type ToolResult struct {
	CallID  string           `json:"call_id"`
	Name    string           `json:"name"`
	Outcome core.ToolOutcome `json:"outcome"`
}

func (ToolResult) isEvent() {}

// Handoff reports the triage routing decision for the turn.
type Handoff struct {
	Decision core.HandoffDecision `json:"decision"`
}

func (Handoff) isEvent() {}

// Stream is a single turn's event pipe. Events() yields until the turn
// finishes; Usage() and Err() block until then. Cancel() stops the producer;
// events already emitted stay deliverable, and side effects already committed
// (staged approvals included) are not rolled back.
type Stream struct {
	id     string
	events chan Event
	cancel context.CancelFunc

	done  chan struct{}
	once  sync.Once
	usage model.Usage
	err   error
}

// New builds a stream whose producer can be stopped through cancel.
func New(id string, cancel context.CancelFunc) *Stream {
	if id == "" {
		id = core.NewID()
	}
	return &Stream{
		id:     id,
		events: make(chan Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the stream correlation id.
func (s *Stream) ID() string { return s.id }

// Events returns the event channel. It is closed when the turn finishes.
func (s *Stream) Events() <-chan Event { return s.events }

// Cancel stops the producing turn. Safe to call multiple times.
func (s *Stream) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Usage blocks until the turn finished and returns the accumulated token
// usage across every model call of the turn.
func (s *Stream) Usage() model.Usage {
	<-s.done
	return s.usage
}

// Err blocks until the turn finished and returns its terminal error, if any.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Emit delivers an event unless the producer context is gone. The producer
// never wedges on a slow consumer beyond the channel buffer: cancellation
// always unblocks it.
func (s *Stream) Emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Close finishes the stream with the turn's usage and terminal error. Only
// the producer calls this, exactly once; later calls are no-ops.
func (s *Stream) Close(usage model.Usage, err error) {
	s.once.Do(func() {
		s.usage = usage
		s.err = err
		close(s.events)
		close(s.done)
	})
}

// Result is the batch view of a drained stream.
type Result struct {
	Text      string
	Events    []Event
	Approvals []core.ApprovalRequired
	Usage     model.Usage
	Err       error
}

// Collect drains the stream to completion and assembles the batch result:
// concatenated text, the full event trail and any staged approvals. It
// returns early if ctx is done, cancelling the producer.
func (s *Stream) Collect(ctx context.Context) Result {
	var (
		text   strings.Builder
		events []Event
	)
	var approvals []core.ApprovalRequired

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return Result{
					Text:      text.String(),
					Events:    events,
					Approvals: approvals,
					Usage:     s.Usage(),
					Err:       s.Err(),
				}
			}
			events = append(events, ev)
			switch e := ev.(type) {
			case TextDelta:
				text.WriteString(e.Text)
			case ToolResult:
				if ar, ok := e.Outcome.(core.ApprovalRequired); ok {
					approvals = append(approvals, ar)
				}
			}
		case <-ctx.Done():
			s.Cancel()
			return Result{
				Text:   text.String(),
				Events: events,
				Err:    ctx.Err(),
			}
		}
	}
}
