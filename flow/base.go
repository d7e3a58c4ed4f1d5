package flow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/model"
)

// BaseFlow is a single-agent flow implementation supporting a
// request -> model -> (optional tool loop) cycle with pluggable request
// processors and typed model/tool callback chains.
type BaseFlow struct {
	agent             FlowAgent
	requestProcessors []RequestProcessor
}

// NewBaseFlow creates a new basic single-agent flow.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:             agent,
		requestProcessors: []RequestProcessor{},
	}
}

// AddRequestProcessor appends a request processor; registration order defines
// execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// Run drives model turns until a final response is produced, the invocation
// is cooperatively ended, or an error occurs. Each non-partial event is
// emitted through the invocation context and followed by a resume wait so the
// runner commits it before the flow continues.
func (f *BaseFlow) Run(ictx *core.InvocationContext) error {
	for {
		last, err := f.runOnce(ictx)
		if err != nil {
			return err
		}
		if last == nil || ictx.EndInvocation() {
			return nil
		}
		if last.Actions.IsEscalate() {
			return nil
		}
		if len(last.GetFunctionResponses()) > 0 {
			if last.Actions.SkipSummarization != nil && *last.Actions.SkipSummarization {
				return nil
			}
			continue // another model turn to consume the tool result
		}
		return nil
	}
}

// runOnce performs one model turn including any tool executions and returns
// the last emitted event. A nil event signals termination.
func (f *BaseFlow) runOnce(ictx *core.InvocationContext) (*core.Event, error) {
	// Refresh the session snapshot so request processors see the latest
	// committed conversation, including tool responses from prior turns.
	if ictx.SessionStore != nil {
		if err := ictx.RefreshSession(ictx.Context); err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
	}

	req := &model.Request{Stream: f.agent.IsStreamingEnabled()}

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(ictx, req, f.agent); err != nil {
			return nil, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	tools := f.agent.GetTools()
	if len(tools) > 0 {
		toolDefinitions := make([]model.ToolDefinition, 0, len(tools))
		for _, t := range tools {
			toolDefinitions = append(toolDefinitions, model.ToolDefinition{
				Type: "function",
				Function: model.FunctionDefinition{
					Name:        t.Name(),
					Description: t.Description(),
					Parameters:  t.Parameters(),
				},
			})
		}
		req.Tools = toolDefinitions
	}

	cc := core.NewCallbackContext(ictx, f.agent.GetName())

	if override, err := f.runBeforeModelCallbacks(cc, req); err != nil {
		return nil, err
	} else if override != nil {
		return f.handleModelResponse(ictx, cc, override)
	}

	respCh, errCh := f.agent.GetModel().Generate(ictx.Context, *req)

	var lastEvent *core.Event
	for resp := range respCh {
		if resp.Partial {
			if err := f.forwardPartial(ictx, &resp); err != nil {
				return nil, err
			}
			continue
		}
		ev, err := f.handleModelResponse(ictx, cc, &resp)
		if err != nil {
			return nil, err
		}
		lastEvent = ev
		if ev.Actions.IsEscalate() || ictx.EndInvocation() {
			break
		}
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("model generation failed: %w", err)
	}

	return lastEvent, nil
}

// runBeforeModelCallbacks runs the before-model chain. The first non-nil
// response short-circuits generation.
func (f *BaseFlow) runBeforeModelCallbacks(cc *core.CallbackContext, req *model.Request) (*model.Response, error) {
	for _, cb := range f.agent.BeforeModelCallbacks() {
		resp, err := cb(cc, req)
		if err != nil {
			return nil, fmt.Errorf("before model callback failed: %w", err)
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

// forwardPartial relays a streaming chunk upstream. Partial events are never
// committed, so no resume wait follows.
func (f *BaseFlow) forwardPartial(ictx *core.InvocationContext, resp *model.Response) error {
	ev := core.NewEvent(ictx.InvocationID, f.agent.GetName())
	ev.Content = &resp.Content
	partial := true
	ev.Partial = &partial
	if ictx.Branch != "" {
		b := ictx.Branch
		ev.Branch = &b
	}
	return ictx.Forward(ev)
}

// handleModelResponse applies the after-model chain, emits the (committed)
// assistant event, and executes any requested function calls.
func (f *BaseFlow) handleModelResponse(
	ictx *core.InvocationContext,
	cc *core.CallbackContext,
	resp *model.Response,
) (*core.Event, error) {
	final := resp
	for _, cb := range f.agent.AfterModelCallbacks() {
		replaced, err := cb(cc, final)
		if err != nil {
			return nil, fmt.Errorf("after model callback failed: %w", err)
		}
		if replaced != nil {
			final = replaced
			break
		}
	}

	ev := core.NewEvent(ictx.InvocationID, f.agent.GetName())
	ev.Content = &final.Content
	partial := false
	ev.Partial = &partial

	if len(ev.GetFunctionCalls()) == 0 {
		complete := true
		ev.TurnComplete = &complete
		if key := f.agent.GetOutputKey(); key != "" {
			if text := final.Content.Text(); text != "" {
				ictx.SetState(key, text)
			}
		}
	}

	if err := ictx.EmitEvent(ev); err != nil {
		return nil, err
	}
	if err := ictx.WaitForResume(); err != nil {
		return nil, err
	}

	lastEvent := &ev

	for _, fnCall := range ev.GetFunctionCalls() {
		respEv, err := f.executeFunctionCall(ictx, fnCall)
		if err != nil {
			return nil, err
		}
		lastEvent = respEv
		if respEv.Actions.IsEscalate() {
			break
		}
	}

	return lastEvent, nil
}

// executeFunctionCall runs one tool invocation (with its callback chain) and
// emits the committed function response event carrying the tool's actions.
func (f *BaseFlow) executeFunctionCall(ictx *core.InvocationContext, fnCall core.FunctionCall) (*core.Event, error) {
	toolCtx := core.NewToolContext(ictx, fnCall.ID)

	args := map[string]any{}
	var execErr error
	if fnCall.Arguments != "" {
		if err := json.Unmarshal([]byte(fnCall.Arguments), &args); err != nil {
			execErr = fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	var result any
	if execErr == nil {
		result, execErr = f.callTool(toolCtx, fnCall, args)
	}

	ictx.Logger.Info("agent.tool.executed",
		"agent", f.agent.GetName(), "tool", fnCall.Name, "error", execErr != nil)

	respEv := core.NewFunctionResponseEvent(ictx.InvocationID, f.agent.GetName(), fnCall.ID, fnCall.Name, result, execErr)
	respEv.Actions = *toolCtx.Actions()

	if err := ictx.EmitEvent(respEv); err != nil {
		return nil, err
	}
	if err := ictx.WaitForResume(); err != nil {
		return nil, err
	}

	return &respEv, nil
}

// callTool resolves the named tool and runs the before/after tool callback
// chains around its execution. A non-nil before-tool result skips the tool;
// a non-nil after-tool result replaces the tool's result.
func (f *BaseFlow) callTool(toolCtx *core.ToolContext, fnCall core.FunctionCall, args map[string]any) (any, error) {
	t, ok := f.agent.GetTools()[fnCall.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", fnCall.Name)
	}

	var result any
	for _, cb := range f.agent.BeforeToolCallbacks() {
		r, err := cb(toolCtx, t, args)
		if err != nil {
			return nil, fmt.Errorf("before tool callback failed: %w", err)
		}
		if r != nil {
			result = r
			break
		}
	}

	if result == nil {
		start := time.Now()
		r, err := t.Call(toolCtx, args)
		if err != nil {
			return nil, err
		}
		toolCtx.Logger().Debug("tool.call.duration",
			"tool", fnCall.Name, "duration_ms", time.Since(start).Milliseconds())
		result = r
	}

	for _, cb := range f.agent.AfterToolCallbacks() {
		r, err := cb(toolCtx, t, args, result)
		if err != nil {
			return nil, fmt.Errorf("after tool callback failed: %w", err)
		}
		if r != nil {
			result = r
			break
		}
	}

	return result, nil
}
