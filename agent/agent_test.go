package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAgent runs an arbitrary function as its behavior.
type scriptedAgent struct {
	BaseAgent
	run func(ictx *core.InvocationContext) error
}

func newScriptedAgent(name string, run func(ictx *core.InvocationContext) error) *scriptedAgent {
	return &scriptedAgent{BaseAgent: NewBaseAgent(name), run: run}
}

func (a *scriptedAgent) Run(ictx *core.InvocationContext) error { return a.run(ictx) }

// emitMessage emits one committed message event and waits for the resume token.
func emitMessage(ictx *core.InvocationContext, author, text string) error {
	ev := core.NewMessageEvent(ictx.InvocationID, author, text)
	if err := ictx.EmitEvent(ev); err != nil {
		return err
	}
	return ictx.WaitForResume()
}

// runAgent drives an agent tree the way the runner does: committing every
// non-partial event into the session and sending exactly one resume token
// per commit.
func runAgent(t *testing.T, root core.Agent, userMessage string) ([]core.Event, error) {
	t.Helper()

	sess := core.NewSession("app", "user", "sess")
	sess.AppendCommittedEvent(core.NewUserMessageEvent("inv-1", userMessage))

	emit := make(chan core.Event)
	resume := make(chan struct{})

	ictx := core.NewInvocationContext(
		context.Background(),
		"app", "user", "sess", "inv-1",
		root, *core.NewTextContent("user", userMessage),
		emit, resume,
		sess, nil, nil, nil, nil,
	)

	var runErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(emit)
		runErr = core.RunAgent(root, ictx)
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

func TestSequentialAgentOrderAndStateVisibility(t *testing.T) {
	var secondSawSummary atomic.Bool

	first := newScriptedAgent("writer", func(ictx *core.InvocationContext) error {
		ictx.SetState("summary", "draft done")
		return emitMessage(ictx, "writer", "wrote draft")
	})
	second := newScriptedAgent("reviewer", func(ictx *core.InvocationContext) error {
		if v, ok := ictx.GetState("summary"); ok && v == "draft done" {
			secondSawSummary.Store(true)
		}
		return emitMessage(ictx, "reviewer", "approved")
	})

	seq := NewSequentialAgent("pipeline", first, second)
	events, err := runAgent(t, seq, "go")
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "writer", events[0].Author)
	assert.Equal(t, "reviewer", events[1].Author)
	assert.True(t, secondSawSummary.Load(), "second child must see state committed by the first")
}

func TestSequentialAgentStopsOnChildError(t *testing.T) {
	ran := false
	failing := newScriptedAgent("broken", func(*core.InvocationContext) error {
		return assert.AnError
	})
	after := newScriptedAgent("after", func(ictx *core.InvocationContext) error {
		ran = true
		return nil
	})

	seq := NewSequentialAgent("pipeline", failing, after)
	_, err := runAgent(t, seq, "go")
	require.Error(t, err)
	assert.ErrorContains(t, err, "broken")
	assert.False(t, ran)
}

func TestParallelAgentRunsAllChildren(t *testing.T) {
	childA := newScriptedAgent("worker_a", func(ictx *core.InvocationContext) error {
		ictx.SetState("a_done", true)
		return emitMessage(ictx, "worker_a", "a finished")
	})
	childB := newScriptedAgent("worker_b", func(ictx *core.InvocationContext) error {
		ictx.SetState("b_done", true)
		return emitMessage(ictx, "worker_b", "b finished")
	})

	par := NewParallelAgent("fanout", childA, childB)
	events, err := runAgent(t, par, "go")
	require.NoError(t, err)

	require.Len(t, events, 2)
	authors := map[string]bool{}
	branches := map[string]bool{}
	for _, ev := range events {
		authors[ev.Author] = true
		require.NotNil(t, ev.Branch)
		branches[*ev.Branch] = true
	}
	assert.True(t, authors["worker_a"])
	assert.True(t, authors["worker_b"])
	assert.Contains(t, branches, "fanout.worker_a")
	assert.Contains(t, branches, "fanout.worker_b")
}

func TestParallelAgentCommitsBothStateDeltas(t *testing.T) {
	childA := newScriptedAgent("worker_a", func(ictx *core.InvocationContext) error {
		ictx.SetState("result_a", "A")
		return emitMessage(ictx, "worker_a", "done")
	})
	childB := newScriptedAgent("worker_b", func(ictx *core.InvocationContext) error {
		ictx.SetState("result_b", "B")
		return emitMessage(ictx, "worker_b", "done")
	})

	par := NewParallelAgent("fanout", childA, childB)

	sess := core.NewSession("app", "user", "sess")
	emit := make(chan core.Event)
	resume := make(chan struct{})
	ictx := core.NewInvocationContext(
		context.Background(), "app", "user", "sess", "inv-1",
		par, *core.NewTextContent("user", "go"),
		emit, resume, sess, nil, nil, nil, nil,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		defer close(emit)
		runErr = core.RunAgent(par, ictx)
	}()
	for ev := range emit {
		if !ev.IsPartial() {
			sess.ApplyCommittedDelta(ev.Actions.StateDelta)
			sess.AppendCommittedEvent(ev)
			resume <- struct{}{}
		}
	}
	wg.Wait()
	require.NoError(t, runErr)

	a, ok := sess.GetState("result_a")
	require.True(t, ok)
	assert.Equal(t, "A", a)
	b, ok := sess.GetState("result_b")
	require.True(t, ok)
	assert.Equal(t, "B", b)
}

func TestLoopAgentIterationCap(t *testing.T) {
	var runs atomic.Int32
	worker := newScriptedAgent("worker", func(ictx *core.InvocationContext) error {
		runs.Add(1)
		return emitMessage(ictx, "worker", "working")
	})

	loop := NewLoopAgent("poller", []core.Agent{worker}, WithMaxIterations(3))
	events, err := runAgent(t, loop, "go")
	require.NoError(t, err)

	assert.Equal(t, int32(3), runs.Load())
	assert.Len(t, events, 3)
}

func TestLoopAgentEscalationStopsLoop(t *testing.T) {
	var runs atomic.Int32
	worker := newScriptedAgent("worker", func(ictx *core.InvocationContext) error {
		n := runs.Add(1)
		ev := core.NewMessageEvent(ictx.InvocationID, "worker", "attempt")
		if n == 2 {
			escalate := true
			ev.Actions.Escalate = &escalate
		}
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})

	loop := NewLoopAgent("retry", []core.Agent{worker}, WithMaxIterations(10))
	events, err := runAgent(t, loop, "go")
	require.NoError(t, err)

	assert.Equal(t, int32(2), runs.Load())
	require.Len(t, events, 2)
	assert.True(t, events[1].Actions.IsEscalate())
}

func TestLoopAgentEscalationSkipsRemainingChildren(t *testing.T) {
	var secondRuns atomic.Int32
	escalator := newScriptedAgent("escalator", func(ictx *core.InvocationContext) error {
		escalate := true
		ev := core.NewMessageEvent(ictx.InvocationID, "escalator", "stop now")
		ev.Actions.Escalate = &escalate
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})
	follower := newScriptedAgent("follower", func(ictx *core.InvocationContext) error {
		secondRuns.Add(1)
		return emitMessage(ictx, "follower", "following")
	})

	loop := NewLoopAgent("cycle", []core.Agent{escalator, follower}, WithMaxIterations(5))
	events, err := runAgent(t, loop, "go")
	require.NoError(t, err)

	assert.Equal(t, int32(0), secondRuns.Load(), "children after the escalator must not run")
	require.Len(t, events, 1)
	assert.True(t, events[0].Actions.IsEscalate())
}

func TestLoopAgentChildErrorTerminates(t *testing.T) {
	worker := newScriptedAgent("worker", func(*core.InvocationContext) error {
		return assert.AnError
	})

	loop := NewLoopAgent("retry", []core.Agent{worker}, WithMaxIterations(5))
	_, err := runAgent(t, loop, "go")
	require.Error(t, err)
	assert.ErrorContains(t, err, "iteration 1")
}

func TestBeforeAgentCallbackOverride(t *testing.T) {
	bodyRan := false
	worker := newScriptedAgent("worker", func(ictx *core.InvocationContext) error {
		bodyRan = true
		return emitMessage(ictx, "worker", "real work")
	})
	worker.AddBeforeAgentCallback(func(cc *core.CallbackContext) (*core.Content, error) {
		return core.NewTextContent("assistant", "handled by guardrail"), nil
	})

	events, err := runAgent(t, worker, "go")
	require.NoError(t, err)

	assert.False(t, bodyRan, "agent body must be skipped when the callback overrides")
	require.Len(t, events, 1)
	assert.Equal(t, "handled by guardrail", events[0].Content.Text())
	assert.Equal(t, "worker", events[0].Author)
}

func TestAfterAgentCallbackAppendsEvent(t *testing.T) {
	worker := newScriptedAgent("worker", func(ictx *core.InvocationContext) error {
		return emitMessage(ictx, "worker", "done")
	})
	worker.AddAfterAgentCallback(func(cc *core.CallbackContext) (*core.Content, error) {
		return core.NewTextContent("assistant", "postscript"), nil
	})

	events, err := runAgent(t, worker, "go")
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "postscript", events[1].Content.Text())
}

func TestBeforeAgentCallbackErrorFailsRun(t *testing.T) {
	worker := newScriptedAgent("worker", func(ictx *core.InvocationContext) error {
		return emitMessage(ictx, "worker", "never")
	})
	worker.AddBeforeAgentCallback(func(*core.CallbackContext) (*core.Content, error) {
		return nil, assert.AnError
	})

	events, err := runAgent(t, worker, "go")
	require.Error(t, err)
	assert.Empty(t, events)
}

func TestAgentCallbacksFireForChildrenOfComposites(t *testing.T) {
	bodyRan := false
	guarded := newScriptedAgent("guarded", func(ictx *core.InvocationContext) error {
		bodyRan = true
		return emitMessage(ictx, "guarded", "real work")
	})
	guarded.AddBeforeAgentCallback(func(cc *core.CallbackContext) (*core.Content, error) {
		return core.NewTextContent("assistant", "blocked"), nil
	})

	annotated := newScriptedAgent("annotated", func(ictx *core.InvocationContext) error {
		return emitMessage(ictx, "annotated", "main output")
	})
	annotated.AddAfterAgentCallback(func(cc *core.CallbackContext) (*core.Content, error) {
		return core.NewTextContent("assistant", "addendum"), nil
	})

	seq := NewSequentialAgent("pipeline", guarded, annotated)
	events, err := runAgent(t, seq, "go")
	require.NoError(t, err)

	assert.False(t, bodyRan, "before-agent callback must short-circuit a nested child")
	require.Len(t, events, 3)
	assert.Equal(t, "blocked", events[0].Content.Text())
	assert.Equal(t, "main output", events[1].Content.Text())
	assert.Equal(t, "addendum", events[2].Content.Text())
}

func TestSingleParentEnforcement(t *testing.T) {
	child := newScriptedAgent("shared", func(*core.InvocationContext) error { return nil })
	_ = NewSequentialAgent("first_owner", child)

	assert.Panics(t, func() {
		NewSequentialAgent("second_owner", child)
	})
}

func TestFindAgentTraversesHierarchy(t *testing.T) {
	leaf := newScriptedAgent("leaf", func(*core.InvocationContext) error { return nil })
	inner := NewSequentialAgent("inner", leaf)
	root := NewSequentialAgent("root", inner)

	found := root.FindAgent("leaf")
	require.NotNil(t, found)
	assert.Equal(t, "leaf", found.Name())
	assert.Nil(t, root.FindAgent("missing"))
}

func TestLLMAgentWithMockModel(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("hello", "hi from llm")

	a := NewLLMAgent("assistant", llm, func(o *LLMAgentOptions) {
		o.OutputKey = "last_reply"
	})

	events, err := runAgent(t, a, "hello")
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "hi from llm", events[0].Content.Text())
	require.NotNil(t, events[0].Actions.StateDelta)
	assert.Equal(t, "hi from llm", events[0].Actions.StateDelta["last_reply"])
}
