package flow

import (
	"context"
	"testing"

	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchPtr(s string) *string { return &s }

func TestBranchVisible(t *testing.T) {
	assert.True(t, branchVisible(nil, "root.seq.a"))
	assert.True(t, branchVisible(branchPtr(""), "root.seq.a"))
	assert.True(t, branchVisible(branchPtr("root.seq"), "root.seq.a"))
	assert.True(t, branchVisible(branchPtr("root.seq.a"), "root.seq.a"))
	assert.False(t, branchVisible(branchPtr("root.seq.b"), "root.seq.a"))
	assert.False(t, branchVisible(branchPtr("root.sequence"), "root.seq.a"))
	assert.False(t, branchVisible(branchPtr("root.seq.a"), ""))
}

func newProcessorContext(sess *core.Session, branch string) *core.InvocationContext {
	ictx := core.NewInvocationContext(
		context.Background(),
		"app", "user", "sess", "inv-1",
		nil, *core.NewTextContent("user", "hi"),
		nil, nil,
		sess, nil, nil, nil, nil,
	)
	ictx.Branch = branch
	return ictx
}

func TestContentsProcessorFiltersSiblingBranches(t *testing.T) {
	sess := core.NewSession("app", "user", "sess")
	sess.AppendCommittedEvent(core.NewUserMessageEvent("inv-1", "hi"))

	evA := core.NewMessageEvent("inv-1", "worker_a", "from a")
	evA.Branch = branchPtr("par.worker_a")
	sess.AppendCommittedEvent(evA)

	evB := core.NewMessageEvent("inv-1", "worker_b", "from b")
	evB.Branch = branchPtr("par.worker_b")
	sess.AppendCommittedEvent(evB)

	req := &model.Request{}
	p := NewContentsProcessor()
	err := p.ProcessRequest(newProcessorContext(sess, "par.worker_a"), req, &fakeAgent{name: "worker_a"})
	require.NoError(t, err)

	require.Len(t, req.Contents, 2) // user turn + own branch event
	assert.Equal(t, "hi", req.Contents[0].Text())
	assert.Equal(t, "from a", req.Contents[1].Text())
}

func TestContentsProcessorHistoryCap(t *testing.T) {
	sess := core.NewSession("app", "user", "sess")
	for _, msg := range []string{"one", "two", "three", "four"} {
		sess.AppendCommittedEvent(core.NewUserMessageEvent("inv-1", msg))
	}

	req := &model.Request{}
	p := NewContentsProcessor()
	err := p.ProcessRequest(newProcessorContext(sess, ""), req, &fakeAgent{name: "a", maxHistory: 2})
	require.NoError(t, err)

	require.Len(t, req.Contents, 2)
	assert.Equal(t, "three", req.Contents[0].Text())
	assert.Equal(t, "four", req.Contents[1].Text())
}

func TestInstructionsProcessorRendersTemplate(t *testing.T) {
	sess := core.NewSession("app", "user", "sess")
	sess.ApplyCommittedDelta(map[string]any{"user:name": "ada"})

	req := &model.Request{}
	p := NewInstructionsProcessor()
	agent := &fakeAgent{name: "a", instructions: `Help {{index . "user:name"}} politely.`}
	err := p.ProcessRequest(newProcessorContext(sess, ""), req, agent)
	require.NoError(t, err)

	assert.Equal(t, "Help ada politely.", req.Instructions)
}
