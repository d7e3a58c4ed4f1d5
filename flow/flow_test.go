package flow

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/model"
	"github.com/hupe1980/agentkit/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent is a minimal FlowAgent for exercising BaseFlow.
type fakeAgent struct {
	name         string
	llm          model.Model
	instructions string
	tools        map[string]tool.Tool
	streaming    bool
	outputKey    string
	maxHistory   int

	beforeModel []BeforeModelCallback
	afterModel  []AfterModelCallback
	beforeTool  []BeforeToolCallback
	afterTool   []AfterToolCallback
}

func (a *fakeAgent) GetName() string        { return a.name }
func (a *fakeAgent) GetModel() model.Model  { return a.llm }
func (a *fakeAgent) ResolveInstructions(*core.InvocationContext) (string, error) {
	return a.instructions, nil
}
func (a *fakeAgent) GetTools() map[string]tool.Tool { return a.tools }
func (a *fakeAgent) IsStreamingEnabled() bool       { return a.streaming }
func (a *fakeAgent) GetOutputKey() string           { return a.outputKey }
func (a *fakeAgent) MaxHistoryMessages() int        { return a.maxHistory }

func (a *fakeAgent) BeforeModelCallbacks() []BeforeModelCallback { return a.beforeModel }
func (a *fakeAgent) AfterModelCallbacks() []AfterModelCallback   { return a.afterModel }
func (a *fakeAgent) BeforeToolCallbacks() []BeforeToolCallback   { return a.beforeTool }
func (a *fakeAgent) AfterToolCallbacks() []AfterToolCallback     { return a.afterTool }

// runFlow executes the flow against a fresh session, acting as a runner that
// commits each non-partial event into the session and resumes the producer.
func runFlow(t *testing.T, agent *fakeAgent, userMessage string) ([]core.Event, error) {
	t.Helper()

	sess := core.NewSession("app", "user", "sess")
	userEv := core.NewUserMessageEvent("inv-1", userMessage)
	sess.AppendCommittedEvent(userEv)

	emit := make(chan core.Event)
	resume := make(chan struct{})

	ictx := core.NewInvocationContext(
		context.Background(),
		"app", "user", "sess", "inv-1",
		nil, *core.NewTextContent("user", userMessage),
		emit, resume,
		sess, nil, nil, nil, nil,
	)

	f := NewSingleAgentFlow(agent)

	var runErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(emit)
		runErr = f.Run(ictx)
	}()

	var events []core.Event
	for ev := range emit {
		events = append(events, ev)
		if !ev.IsPartial() {
			sess.ApplyCommittedDelta(ev.Actions.StateDelta)
			sess.AppendCommittedEvent(ev)
			resume <- struct{}{}
		}
	}
	wg.Wait()

	return events, runErr
}

func TestBaseFlowFinalResponse(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("hello", "hi there")

	events, err := runFlow(t, &fakeAgent{name: "assistant", llm: llm}, "hello")
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "assistant", events[0].Author)
	assert.Equal(t, "hi there", events[0].Content.Text())
	assert.True(t, events[0].IsFinalResponse())
}

func TestBaseFlowStreamingPartials(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("hello", "abc")

	events, err := runFlow(t, &fakeAgent{name: "assistant", llm: llm, streaming: true}, "hello")
	require.NoError(t, err)

	require.Len(t, events, 4) // 3 partial chunks + committed final
	for _, ev := range events[:3] {
		assert.True(t, ev.IsPartial())
	}
	final := events[3]
	assert.False(t, final.IsPartial())
	assert.Equal(t, "abc", final.Content.Text())
}

func TestBaseFlowOutputKey(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("hello", "stored reply")

	events, err := runFlow(t, &fakeAgent{name: "assistant", llm: llm, outputKey: "reply"}, "hello")
	require.NoError(t, err)

	require.Len(t, events, 1)
	require.NotNil(t, events[0].Actions.StateDelta)
	assert.Equal(t, "stored reply", events[0].Actions.StateDelta["reply"])
}

func TestBaseFlowToolLoop(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddFunctionCall("add 1 and 2", "calculate_sum", `{"a":1,"b":2}`)
	llm.AddResponse("add 1 and 2", "the sum is 3")

	sum := tool.NewFunctionTool(
		"calculate_sum", "Calculate the sum of two numbers",
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

	agent := &fakeAgent{
		name:  "assistant",
		llm:   llm,
		tools: map[string]tool.Tool{sum.Name(): sum},
	}

	events, err := runFlow(t, agent, "add 1 and 2")
	require.NoError(t, err)

	// function call event, function response event, final answer
	require.Len(t, events, 3)
	require.Len(t, events[0].GetFunctionCalls(), 1)
	responses := events[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, 3.0, responses[0].Response)
	assert.Equal(t, "the sum is 3", events[2].Content.Text())
}

func TestBaseFlowBeforeModelOverride(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("hello", "model reply")

	agent := &fakeAgent{
		name: "assistant",
		llm:  llm,
		beforeModel: []BeforeModelCallback{
			func(_ *core.CallbackContext, _ *model.Request) (*model.Response, error) {
				return &model.Response{
					Content:      *core.NewTextContent("assistant", "cached reply"),
					FinishReason: "stop",
				}, nil
			},
		},
	}

	events, err := runFlow(t, agent, "hello")
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "cached reply", events[0].Content.Text())
}

func TestBaseFlowBeforeToolSkip(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddFunctionCall("lookup", "lookup_record", `{}`)
	llm.AddResponse("lookup", "done")

	called := false
	lookup := tool.NewFunctionTool(
		"lookup_record", "Lookup a record",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			called = true
			return "from tool", nil
		},
	)

	agent := &fakeAgent{
		name:  "assistant",
		llm:   llm,
		tools: map[string]tool.Tool{lookup.Name(): lookup},
		beforeTool: []BeforeToolCallback{
			func(_ *core.ToolContext, _ tool.Tool, _ map[string]any) (any, error) {
				return "from cache", nil
			},
		},
	}

	events, err := runFlow(t, agent, "lookup")
	require.NoError(t, err)

	assert.False(t, called)
	responses := events[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "from cache", responses[0].Response)
}

func TestBaseFlowEscalatingToolStopsTurns(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddFunctionCall("finish up", "exit_loop", `{}`)
	llm.AddResponse("finish up", "should never be produced")

	exit := tool.NewExitLoopTool()
	agent := &fakeAgent{
		name:  "worker",
		llm:   llm,
		tools: map[string]tool.Tool{exit.Name(): exit},
	}

	events, err := runFlow(t, agent, "finish up")
	require.NoError(t, err)

	// call + escalating response, no summarization turn afterwards
	require.Len(t, events, 2)
	assert.True(t, events[1].Actions.IsEscalate())
}
