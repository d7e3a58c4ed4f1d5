package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentkit/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string           `json:"instructions"` // System instructions for the model
	Contents     []core.Content   `json:"contents"`     // Conversation converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows and agents to drive
// generation. Implementations close both channels when generation completes;
// at most one error is delivered on the error channel.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// mockFunctionCall is a scripted tool invocation returned by MockModel.
type mockFunctionCall struct {
	name string
	args string
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Completions are keyed by the text of the last content; unknown prompts get
// a generated placeholder response.
type MockModel struct {
	info          Info
	responses     map[string]string
	functionCalls map[string]mockFunctionCall
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses:     make(map[string]string),
		functionCalls: make(map[string]mockFunctionCall),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// AddFunctionCall scripts a tool call for an input prompt. The follow-up turn
// (prompt plus the tool result appended to contents) falls through to the
// canned text responses.
func (m *MockModel) AddFunctionCall(prompt, functionName, argumentsJSON string) {
	m.functionCalls[prompt] = mockFunctionCall{name: functionName, args: argumentsJSON}
}

// Generate implements Model; emits optional streaming char chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		inputText := lastUserText(req.Contents)

		if fc, ok := m.functionCalls[inputText]; ok && !hasFunctionResponse(req.Contents) {
			respCh <- Response{
				Partial: false,
				Content: core.Content{
					Role: "assistant",
					Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
						ID:        core.NewEventID(),
						Name:      fc.name,
						Arguments: fc.args,
					}}},
				},
				FinishReason: "tool_calls",
			}
			return
		}

		full := m.responses[inputText]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{
						Role:  "assistant",
						Parts: []core.Part{core.TextPart{Text: string(r)}},
					},
				}:
				}
			}
		}
		respCh <- Response{
			Partial: false,
			Content: core.Content{
				Role:  "assistant",
				Parts: []core.Part{core.TextPart{Text: full}},
			},
			FinishReason: "stop",
			Usage: &TokenUsage{
				PromptTokens:     len(inputText),
				CompletionTokens: len(full),
				TotalTokens:      len(inputText) + len(full),
			},
		}
	}()
	return respCh, errCh
}

// Info implements the Model interface.
func (m *MockModel) Info() Info { return m.info }

// lastUserText returns the concatenated text of the most recent non-tool
// content, the prompt key for canned responses.
func lastUserText(contents []core.Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i].Role == "tool" {
			continue
		}
		var text string
		for _, p := range contents[i].Parts {
			if tp, ok := p.(core.TextPart); ok {
				text += tp.Text
			}
		}
		if text != "" {
			return text
		}
	}
	return ""
}

func hasFunctionResponse(contents []core.Content) bool {
	for _, c := range contents {
		for _, p := range c.Parts {
			if _, ok := p.(core.FunctionResponsePart); ok {
				return true
			}
		}
	}
	return false
}
