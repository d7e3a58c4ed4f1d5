package tool

import (
	"context"
	"testing"

	"github.com/hupe1980/agentkit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToolContext(t *testing.T) *core.ToolContext {
	t.Helper()
	sess := core.NewSession("app", "user", "sess")
	ictx := core.NewInvocationContext(
		context.Background(),
		"app", "user", "sess", "inv-1",
		nil, core.Content{}, nil, nil,
		sess, nil, nil, nil, nil,
	)
	return core.NewToolContext(ictx, "fc-1")
}

func TestFunctionToolCall(t *testing.T) {
	sum := NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	assert.Equal(t, "calculate_sum", sum.Name())

	result, err := sum.Call(newTestToolContext(t), map[string]any{"a": 1.5, "b": 2.5})
	require.NoError(t, err)
	assert.Equal(t, 4.0, result)
}

func TestFunctionToolValidationError(t *testing.T) {
	echo := NewFunctionTool(
		"echo",
		"Echo the message",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["message"], nil
		},
	)

	_, err := echo.Call(newTestToolContext(t), map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "echo", toolErr.Tool)
}

func TestFunctionToolExecutionError(t *testing.T) {
	failing := NewFunctionTool(
		"fail",
		"Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, assert.AnError
		},
	)

	_, err := failing.Call(newTestToolContext(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestFunctionToolPreservesCustomToolError(t *testing.T) {
	custom := NewToolError("lookup", "not found", "NOT_FOUND")
	failing := NewFunctionTool(
		"lookup",
		"Lookup a record",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, custom
		},
	)

	_, err := failing.Call(newTestToolContext(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, custom, toolErr)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type greetArgs struct {
		Name string `json:"name" description:"Who to greet"`
	}
	greet := NewFunctionToolFromStruct(
		"greet",
		"Greet someone",
		greetArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return "hello " + args["name"].(string), nil
		},
	)

	schema := greet.Parameters()
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")

	result, err := greet.Call(newTestToolContext(t), map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", result)
}

func TestExitLoopToolEscalates(t *testing.T) {
	tc := newTestToolContext(t)
	exit := NewExitLoopTool()

	result, err := exit.Call(tc, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "loop exit requested", result)
	assert.True(t, tc.Actions().IsEscalate())
	require.NotNil(t, tc.Actions().SkipSummarization)
	assert.True(t, *tc.Actions().SkipSummarization)
}
