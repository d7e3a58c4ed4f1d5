package core

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventActions encodes side-effects or orchestration signals attached to an
// Event. All fields are optional pointers / maps so absence can be
// distinguished from zero values. The runner interprets StateDelta and
// ArtifactDelta during commit; Escalate is consumed by enclosing loop agents.
type EventActions struct {
	// StateDelta maps state keys to new values. A Tombstone value requests
	// deletion of the key from its scope.
	StateDelta map[string]any `json:"state_delta,omitempty"`
	// ArtifactDelta records artifact filenames saved during the step mapped to
	// the version the save produced.
	ArtifactDelta map[string]int `json:"artifact_delta,omitempty"`
	// Escalate asks the nearest enclosing loop agent to terminate.
	Escalate *bool `json:"escalate,omitempty"`
	// SkipSummarization hints callers to bypass default post-processing of a
	// tool result.
	SkipSummarization *bool `json:"skip_summarization,omitempty"`
}

// IsEscalate reports whether the escalate signal is set.
func (a EventActions) IsEscalate() bool { return a.Escalate != nil && *a.Escalate }

// Event is the primary unit of communication between agents, the runner and
// external clients. After emission it must be treated as immutable. It
// captures:
//   - Correlation (ID, InvocationID, Author, Branch)
//   - Conversational content (optional role-based Parts)
//   - Orchestration directives (Actions)
//   - Streaming status (Partial) and a high precision UTC timestamp
//
// Content may be nil for control or error-only events. Event IDs are ULIDs so
// the append-only history sorts lexically by creation order.
type Event struct {
	ID           string       `json:"id"`
	InvocationID string       `json:"invocation_id"`
	Author       string       `json:"author"`
	Branch       *string      `json:"branch,omitempty"`
	Actions      EventActions `json:"actions"`
	Content      *Content     `json:"content,omitempty"`
	Partial      *bool        `json:"partial,omitempty"`
	TurnComplete *bool        `json:"turn_complete,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewEvent creates a bare event authored by 'author' bound to an invocation.
// Prefer the helper constructors for common semantic categories.
func NewEvent(invocationID, author string) Event {
	return Event{
		ID:           NewEventID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
		Actions:      EventActions{},
	}
}

// NewEventID generates a new lexically sortable unique event identifier.
func NewEventID() string { return ulid.Make().String() }

// NewMessageEvent creates an assistant-style message event with a single text part.
func NewMessageEvent(invocationID, author, message string) Event {
	e := NewEvent(invocationID, author)
	e.Content = NewTextContent("assistant", message)
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(invocationID, message string) Event {
	e := NewEvent(invocationID, "user")
	e.Content = NewTextContent("user", message)
	return e
}

// NewUserContentEvent creates a user-authored event with arbitrary Content.
func NewUserContentEvent(invocationID string, content *Content) Event {
	e := NewEvent(invocationID, "user")
	e.Content = content
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named
// function/tool.
func NewFunctionCallEvent(invocationID, author string, call FunctionCall) Event {
	e := NewEvent(invocationID, author)
	e.Content = &Content{
		Role:  "assistant",
		Parts: []Part{FunctionCallPart{FunctionCall: call}},
	}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a
// tool/function invocation. If err is non-nil its message is copied into the
// response's Error field.
func NewFunctionResponseEvent(invocationID, author, id, functionName string, result any, err error) Event {
	e := NewEvent(invocationID, author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewErrorEvent wraps an execution failure as a system-authored event so the
// caller sees the failure in stream order.
func NewErrorEvent(invocationID, author string, err error) Event {
	e := NewEvent(invocationID, author)
	msg := err.Error()
	e.ErrorMessage = &msg
	return e
}

// IsPartial reports whether this event represents a streaming / incomplete
// fragment that will be followed by additional events composing the final
// turn. Partial events are forwarded for progressive display but never
// committed to session state.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts contained within the
// event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse implements the heuristic used by higher layers to decide
// when an assistant turn is complete (no pending tool calls/responses, not a
// streaming fragment, not flagged for further processing).
func (e Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization != nil && *e.Actions.SkipSummarization {
		return true
	}
	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial()
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
