// Package flow provides execution flow management for AgentKit agents.
//
// Flows orchestrate the request -> model -> tool pipeline of a single agent,
// allowing modular and configurable processing of requests and responses.
// Typed callback chains around model and tool interactions let callers
// intercept, short-circuit, or rewrite each step.
package flow

import (
	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/model"
	"github.com/hupe1980/agentkit/tool"
)

// Flow defines the interface for agent execution flows.
//
// A flow drives the complete execution pipeline of one agent invocation,
// emitting events through the invocation context and honoring the
// commit-before-resume protocol for every non-partial event.
type Flow interface {
	Run(ictx *core.InvocationContext) error
}

// FlowAgent is the view of an agent a flow needs to drive generation without
// depending on the full agent implementation.
type FlowAgent interface {
	// GetName returns the agent's display name.
	GetName() string

	// GetModel returns the language model instance.
	GetModel() model.Model

	// ResolveInstructions produces the (untemplated) system instructions.
	ResolveInstructions(ictx *core.InvocationContext) (string, error)

	// GetTools returns the registered tools for function calling.
	GetTools() map[string]tool.Tool

	// IsStreamingEnabled returns whether streaming responses are enabled.
	IsStreamingEnabled() bool

	// GetOutputKey returns the session state key for saving final responses,
	// empty when disabled.
	GetOutputKey() string

	// MaxHistoryMessages returns the maximum number of conversation history
	// messages to include in a request.
	MaxHistoryMessages() int

	// BeforeModelCallbacks returns the chain run before each model request.
	BeforeModelCallbacks() []BeforeModelCallback

	// AfterModelCallbacks returns the chain run after each final model response.
	AfterModelCallbacks() []AfterModelCallback

	// BeforeToolCallbacks returns the chain run before each tool execution.
	BeforeToolCallbacks() []BeforeToolCallback

	// AfterToolCallbacks returns the chain run after each tool execution.
	AfterToolCallbacks() []AfterToolCallback
}

// RequestProcessor mutates the model request before it is sent.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the chat request before model execution.
	ProcessRequest(ictx *core.InvocationContext, req *model.Request, agent FlowAgent) error
}

// BeforeModelCallback runs before a model request. Returning a non-nil
// response skips generation and uses the returned response instead; the
// remaining callbacks in the chain are not consulted. Returning an error
// fails the agent's execution.
type BeforeModelCallback func(cc *core.CallbackContext, req *model.Request) (*model.Response, error)

// AfterModelCallback runs after each final model response. Returning a
// non-nil response replaces the model's response and short-circuits the rest
// of the chain.
type AfterModelCallback func(cc *core.CallbackContext, resp *model.Response) (*model.Response, error)

// BeforeToolCallback runs before a tool executes. Returning a non-nil result
// skips the tool and uses the returned value as its result.
type BeforeToolCallback func(tc *core.ToolContext, t tool.Tool, args map[string]any) (any, error)

// AfterToolCallback runs after a tool executes. Returning a non-nil value
// replaces the tool's result.
type AfterToolCallback func(tc *core.ToolContext, t tool.Tool, args map[string]any, result any) (any, error)
