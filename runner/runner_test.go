package runner

import (
	"context"
	"testing"

	"github.com/hupe1980/agentkit/agent"
	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/model"
	"github.com/hupe1980/agentkit/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAgent runs an arbitrary function as its behavior.
type testAgent struct {
	agent.BaseAgent
	run func(ictx *core.InvocationContext) error
}

func newTestAgent(name string, run func(ictx *core.InvocationContext) error) *testAgent {
	return &testAgent{BaseAgent: agent.NewBaseAgent(name), run: run}
}

func (a *testAgent) Run(ictx *core.InvocationContext) error { return a.run(ictx) }

func TestRunnerCommitsBeforeResume(t *testing.T) {
	store := session.NewInMemoryStore()

	var committedAtResume int
	worker := newTestAgent("worker", func(ictx *core.InvocationContext) error {
		ev := core.NewMessageEvent(ictx.InvocationID, "worker", "step one")
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		if err := ictx.WaitForResume(); err != nil {
			return err
		}
		// By the time the resume token arrives the event must be durable.
		sess, err := store.Get(ictx.Context, ictx.AppName, ictx.UserID, ictx.SessionID)
		if err != nil {
			return err
		}
		committedAtResume = len(sess.Events)
		return nil
	})

	r := New("app", worker, func(o *Options) { o.SessionStore = store })
	events, err := r.RunSync(context.Background(), "alice", "s1", *core.NewTextContent("user", "go"))
	require.NoError(t, err)

	require.Len(t, events, 1)
	// User event plus the worker event.
	assert.Equal(t, 2, committedAtResume)
}

func TestRunnerPersistsUserAndAgentEvents(t *testing.T) {
	store := session.NewInMemoryStore()
	worker := newTestAgent("worker", func(ictx *core.InvocationContext) error {
		ev := core.NewMessageEvent(ictx.InvocationID, "worker", "hi")
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})

	r := New("app", worker, func(o *Options) { o.SessionStore = store })
	_, err := r.RunSync(context.Background(), "alice", "s1", *core.NewTextContent("user", "hello"))
	require.NoError(t, err)

	sess, err := store.Get(context.Background(), "app", "alice", "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "user", sess.Events[0].Author)
	assert.Equal(t, "hello", sess.Events[0].Content.Text())
	assert.Equal(t, "worker", sess.Events[1].Author)
}

func TestRunnerTempStateNotDurable(t *testing.T) {
	store := session.NewInMemoryStore()
	worker := newTestAgent("worker", func(ictx *core.InvocationContext) error {
		ictx.SetState("temp:scratch", "working value")
		ictx.SetState("kept", "forever")
		ev := core.NewMessageEvent(ictx.InvocationID, "worker", "done")
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})

	r := New("app", worker, func(o *Options) { o.SessionStore = store })
	_, err := r.RunSync(context.Background(), "alice", "s1", *core.NewTextContent("user", "go"))
	require.NoError(t, err)

	sess, err := store.Get(context.Background(), "app", "alice", "s1")
	require.NoError(t, err)
	v, ok := sess.GetState("kept")
	require.True(t, ok)
	assert.Equal(t, "forever", v)
	_, ok = sess.GetState("temp:scratch")
	assert.False(t, ok, "temp state must not survive the invocation")
}

func TestRunnerSessionContinuity(t *testing.T) {
	store := session.NewInMemoryStore()
	var historyLen int
	worker := newTestAgent("worker", func(ictx *core.InvocationContext) error {
		historyLen = len(ictx.GetSessionHistory())
		ev := core.NewMessageEvent(ictx.InvocationID, "worker", "reply")
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})

	r := New("app", worker, func(o *Options) { o.SessionStore = store })
	ctx := context.Background()

	_, err := r.RunSync(ctx, "alice", "s1", *core.NewTextContent("user", "first"))
	require.NoError(t, err)
	_, err = r.RunSync(ctx, "alice", "s1", *core.NewTextContent("user", "second"))
	require.NoError(t, err)

	// Second invocation sees: first user event, first reply, second user event.
	assert.Equal(t, 3, historyLen)
}

func TestRunnerGeneratesSessionID(t *testing.T) {
	worker := newTestAgent("worker", func(ictx *core.InvocationContext) error {
		assert.NotEmpty(t, ictx.SessionID)
		return nil
	})

	r := New("app", worker)
	events, err := r.RunSync(context.Background(), "alice", "", *core.NewTextContent("user", "go"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRunnerSurfacesAgentError(t *testing.T) {
	worker := newTestAgent("worker", func(*core.InvocationContext) error {
		return assert.AnError
	})

	r := New("app", worker)
	_, err := r.RunSync(context.Background(), "alice", "s1", *core.NewTextContent("user", "go"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "agent execution failed")
}

func TestRunnerStreamingPartialsForwardedNotCommitted(t *testing.T) {
	store := session.NewInMemoryStore()
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("stream this", "chunked reply")

	a := agent.NewLLMAgent("assistant", llm, func(o *agent.LLMAgentOptions) {
		o.EnableStreaming = true
	})

	r := New("app", a, func(o *Options) { o.SessionStore = store })
	events, err := r.RunSync(context.Background(), "alice", "s1", *core.NewTextContent("user", "stream this"))
	require.NoError(t, err)

	var partials, finals int
	for _, ev := range events {
		if ev.IsPartial() {
			partials++
		} else {
			finals++
		}
	}
	assert.Greater(t, partials, 0, "streaming must forward partial events")
	assert.Equal(t, 1, finals)

	sess, err := store.Get(context.Background(), "app", "alice", "s1")
	require.NoError(t, err)
	// Only the user event and the final reply are durable.
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "chunked reply", sess.Events[1].Content.Text())
}

func TestRunnerEndToEndWorkflow(t *testing.T) {
	store := session.NewInMemoryStore()

	research := newTestAgent("research", func(ictx *core.InvocationContext) error {
		ictx.SetState("findings", "three sources")
		ev := core.NewMessageEvent(ictx.InvocationID, "research", "research done")
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})
	writer := newTestAgent("writer", func(ictx *core.InvocationContext) error {
		v, ok := ictx.GetState("findings")
		if !ok {
			t.Error("writer must see committed findings")
		}
		ev := core.NewMessageEvent(ictx.InvocationID, "writer", "report based on "+v.(string))
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})

	pipeline := agent.NewSequentialAgent("pipeline", research, writer)
	r := New("app", pipeline, func(o *Options) { o.SessionStore = store })

	events, err := r.RunSync(context.Background(), "alice", "s1", *core.NewTextContent("user", "write a report"))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "report based on three sources", events[1].Content.Text())
}

func TestRunnerAddSessionToMemory(t *testing.T) {
	worker := newTestAgent("worker", func(ictx *core.InvocationContext) error {
		ev := core.NewMessageEvent(ictx.InvocationID, "worker", "the answer is blue")
		if err := ictx.EmitEvent(ev); err != nil {
			return err
		}
		return ictx.WaitForResume()
	})

	r := New("app", worker)
	ctx := context.Background()
	_, err := r.RunSync(ctx, "alice", "s1", *core.NewTextContent("user", "what color?"))
	require.NoError(t, err)

	require.NoError(t, r.AddSessionToMemory(ctx, "alice", "s1"))

	snippets, err := r.memoryStore.Search(ctx, "app", "alice", "blue", 10)
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Contains(t, snippets[0].Content, "blue")
}
