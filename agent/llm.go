package agent

import (
	"fmt"

	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/flow"
	"github.com/hupe1980/agentkit/model"
	"github.com/hupe1980/agentkit/tool"
)

// LLMAgentOptions configures an LLMAgent instance. Use functional options
// with NewLLMAgent to override defaults.
type LLMAgentOptions struct {
	Description        string
	Instruction        Instruction
	EnableStreaming    bool
	OutputKey          string
	MaxHistoryMessages int
	Tools              []tool.Tool

	BeforeAgentCallbacks []BeforeAgentCallback
	AfterAgentCallbacks  []AfterAgentCallback
	BeforeModelCallbacks []flow.BeforeModelCallback
	AfterModelCallbacks  []flow.AfterModelCallback
	BeforeToolCallbacks  []flow.BeforeToolCallback
	AfterToolCallbacks   []flow.AfterToolCallback
}

// LLMAgent integrates a language model to provide conversational behavior
// with function calling, streaming, instruction templating and output-key
// state capture.
//
// It embeds BaseAgent for hierarchy and agent-level callbacks, and satisfies
// flow.FlowAgent so its execution pipeline is driven by a SingleAgentFlow.
type LLMAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	tools              map[string]tool.Tool
	enableStreaming    bool
	outputKey          string
	maxHistoryMessages int

	beforeModelCallbacks []flow.BeforeModelCallback
	afterModelCallbacks  []flow.AfterModelCallback
	beforeToolCallbacks  []flow.BeforeToolCallback
	afterToolCallbacks   []flow.AfterToolCallback

	fl flow.Flow
}

// NewLLMAgent creates a model-backed agent with sensible defaults: a generic
// assistant instruction, 20-message history window and streaming disabled.
func NewLLMAgent(name string, llm model.Model, optFns ...func(o *LLMAgentOptions)) *LLMAgent {
	opts := LLMAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		MaxHistoryMessages: 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &LLMAgent{
		BaseAgent:            NewBaseAgent(name),
		llm:                  llm,
		instruction:          opts.Instruction,
		tools:                make(map[string]tool.Tool, len(opts.Tools)),
		enableStreaming:      opts.EnableStreaming,
		outputKey:            opts.OutputKey,
		maxHistoryMessages:   opts.MaxHistoryMessages,
		beforeModelCallbacks: opts.BeforeModelCallbacks,
		afterModelCallbacks:  opts.AfterModelCallbacks,
		beforeToolCallbacks:  opts.BeforeToolCallbacks,
		afterToolCallbacks:   opts.AfterToolCallbacks,
	}

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}
	for _, cb := range opts.BeforeAgentCallbacks {
		a.AddBeforeAgentCallback(cb)
	}
	for _, cb := range opts.AfterAgentCallbacks {
		a.AddAfterAgentCallback(cb)
	}
	for _, t := range opts.Tools {
		a.tools[t.Name()] = t
	}

	a.fl = flow.NewSingleAgentFlow(a)

	return a
}

// RegisterTool adds a function tool to the agent's capability set.
func (a *LLMAgent) RegisterTool(t tool.Tool) { a.tools[t.Name()] = t }

// RegisterTools adds multiple tools to the agent's capability set.
func (a *LLMAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *LLMAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// GetName returns the agent's display name.
func (a *LLMAgent) GetName() string { return a.Name() }

// GetModel returns the language model instance.
func (a *LLMAgent) GetModel() model.Model { return a.llm }

// GetTools returns a copy of the registered tools for function calling.
func (a *LLMAgent) GetTools() map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(a.tools))
	for name, t := range a.tools {
		tools[name] = t
	}
	return tools
}

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *LLMAgent) IsStreamingEnabled() bool { return a.enableStreaming }

// GetOutputKey returns the session state key for saving responses.
func (a *LLMAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages returns the maximum number of conversation history
// messages to include per model request.
func (a *LLMAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ResolveInstructions produces the final (untemplated) system prompt by
// resolving static or dynamic instruction sources.
func (a *LLMAgent) ResolveInstructions(ictx *core.InvocationContext) (string, error) {
	return a.instruction.Resolve(ictx)
}

// BeforeModelCallbacks returns the chain run before each model request.
func (a *LLMAgent) BeforeModelCallbacks() []flow.BeforeModelCallback { return a.beforeModelCallbacks }

// AfterModelCallbacks returns the chain run after each final model response.
func (a *LLMAgent) AfterModelCallbacks() []flow.AfterModelCallback { return a.afterModelCallbacks }

// BeforeToolCallbacks returns the chain run before each tool execution.
func (a *LLMAgent) BeforeToolCallbacks() []flow.BeforeToolCallback { return a.beforeToolCallbacks }

// AfterToolCallbacks returns the chain run after each tool execution.
func (a *LLMAgent) AfterToolCallbacks() []flow.AfterToolCallback { return a.afterToolCallbacks }

// Run implements core.Agent. The flow drives model turns until a final
// response; agent-level callbacks fire around it via core.RunAgent.
func (a *LLMAgent) Run(ictx *core.InvocationContext) error {
	ictx.Logger.Debug("agent.run.start", "agent", a.Name(), "invocation", ictx.InvocationID)

	if err := a.fl.Run(ictx); err != nil {
		return fmt.Errorf("agent %s run failed: %w", a.Name(), err)
	}

	return nil
}
