package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentkit/logging"
)

// ToolContext provides a constrained, auditable surface for tool / function
// implementations invoked by an agent. It accumulates EventActions (state
// deltas, escalation signals, artifact diffs) without directly mutating the
// underlying session; the accumulated actions are attached to the function
// response event and committed by the runner.
type ToolContext struct {
	ictx           *InvocationContext
	functionCallID string
	eventActions   EventActions
}

// NewToolContext constructs a tool context bound to a parent
// InvocationContext and unique functionCallID.
func NewToolContext(ictx *InvocationContext, functionCallID string) *ToolContext {
	return &ToolContext{
		ictx:           ictx,
		functionCallID: functionCallID,
		eventActions:   EventActions{},
	}
}

// Context returns the ambient context of the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ictx.Context }

// AppName returns the owning application name.
func (tc *ToolContext) AppName() string { return tc.ictx.AppName }

// UserID returns the owning user identifier.
func (tc *ToolContext) UserID() string { return tc.ictx.UserID }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.ictx.SessionID }

// InvocationID returns the invocation ID associated with the tool invocation.
func (tc *ToolContext) InvocationID() string { return tc.ictx.InvocationID }

// FunctionCallID correlates the model's call request with this execution.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent executing the tool.
func (tc *ToolContext) AgentName() string {
	if tc.ictx.Agent == nil {
		return ""
	}
	return tc.ictx.Agent.Name()
}

// Logger returns the invocation logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.ictx.Logger }

// GetState retrieves the state associated with the given key.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.ictx.GetState(k) }

// SetState records a state mutation both on the underlying invocation context
// (for immediate visibility) and in the local EventActions delta so it is
// committed with the function response event.
func (tc *ToolContext) SetState(k string, v any) {
	tc.ictx.SetState(k, v)
	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = map[string]any{}
	}
	tc.eventActions.StateDelta[k] = v
}

// DeleteState stages a tombstone for the key.
func (tc *ToolContext) DeleteState(k string) { tc.SetState(k, Tombstone) }

// Actions returns the event actions accumulated in the tool context.
func (tc *ToolContext) Actions() *EventActions { return &tc.eventActions }

// Escalate asks the nearest enclosing loop agent to terminate after this
// tool's response event.
func (tc *ToolContext) Escalate() {
	b := true
	tc.eventActions.Escalate = &b
	tc.ictx.Logger.Info("tool.escalate.request", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
}

// SkipSummarization requests that post-processing of the tool result be
// bypassed for the originating event.
func (tc *ToolContext) SkipSummarization() {
	b := true
	tc.eventActions.SkipSummarization = &b
}

// SaveArtifact persists artifact bytes and records the produced version in
// the pending ArtifactDelta.
func (tc *ToolContext) SaveArtifact(filename string, data []byte) (int, error) {
	version, err := tc.ictx.SaveArtifact(filename, data)
	if err != nil {
		return 0, err
	}
	if tc.eventActions.ArtifactDelta == nil {
		tc.eventActions.ArtifactDelta = map[string]int{}
	}
	tc.eventActions.ArtifactDelta[filename] = version
	return version, nil
}

// LoadArtifact retrieves a persisted artifact (latest version when version < 0).
func (tc *ToolContext) LoadArtifact(filename string, version int) ([]byte, error) {
	return tc.ictx.LoadArtifact(filename, version)
}

// ListArtifacts returns artifact filenames stored for the session.
func (tc *ToolContext) ListArtifacts() ([]string, error) {
	if tc.ictx.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}
	return tc.ictx.ArtifactStore.List(tc.Context(), tc.AppName(), tc.UserID(), tc.SessionID())
}

// SearchMemory performs a recall query against the configured MemoryStore.
func (tc *ToolContext) SearchMemory(query string, limit int) ([]MemorySnippet, error) {
	return tc.ictx.SearchMemory(query, limit)
}

// GetSessionHistory returns conversation history (filtered) for context.
func (tc *ToolContext) GetSessionHistory() []Event {
	if tc.ictx.Session == nil {
		return nil
	}
	return tc.ictx.Session.GetConversationHistory()
}
