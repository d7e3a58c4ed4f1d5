package tool

import (
	"github.com/hupe1980/agentkit/core"
)

// NewExitLoopTool returns a tool that lets the model terminate the nearest
// enclosing loop agent. Calling it sets the escalate action on the function
// response event; the loop observes the signal and stops iterating.
//
// Pair it with a loop agent whose worker is instructed to call exit_loop once
// its completion condition is met.
func NewExitLoopTool() *FunctionTool {
	return NewFunctionTool(
		"exit_loop",
		"Exit the current processing loop. Call this only when the task is complete and no further iterations are needed.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(toolCtx *core.ToolContext, _ map[string]any) (any, error) {
			toolCtx.Escalate()
			toolCtx.SkipSummarization()
			return "loop exit requested", nil
		},
	)
}
