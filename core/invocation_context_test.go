package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvocationContext(emit chan<- Event, resume <-chan struct{}) *InvocationContext {
	sess := NewSession("app", "user", "sess")
	return NewInvocationContext(
		context.Background(),
		"app", "user", "sess", "inv-1",
		nil, *NewTextContent("user", "hello"),
		emit, resume,
		sess, nil, nil, nil, nil,
	)
}

func TestNewChildContextInheritsParentBranch(t *testing.T) {
	ictx := newTestInvocationContext(nil, nil)
	ictx.Branch = "root.fanout"

	child := ictx.NewChildContext(nil, nil, nil, "")
	assert.Equal(t, "root.fanout", child.Branch)
}

func TestNewChildContextOverridesBranch(t *testing.T) {
	ictx := newTestInvocationContext(nil, nil)
	ictx.Branch = "root"

	child := ictx.NewChildContext(nil, nil, nil, "root.fanout.worker_a")
	assert.Equal(t, "root.fanout.worker_a", child.Branch)

	grandchild := child.NewChildContext(nil, nil, nil, "")
	assert.Equal(t, "root.fanout.worker_a", grandchild.Branch)
}

func TestNewChildContextSharesEndLatch(t *testing.T) {
	ictx := newTestInvocationContext(nil, nil)
	child := ictx.NewChildContext(nil, nil, nil, "sub")

	child.SetEndInvocation(true)
	assert.True(t, ictx.EndInvocation())
}

func TestEmitEventStampsChildBranch(t *testing.T) {
	emit := make(chan Event, 1)
	ictx := newTestInvocationContext(emit, nil)

	child := ictx.NewChildContext(nil, emit, nil, "fanout.worker_a")
	child.SetState("done", true)

	require.NoError(t, child.EmitEvent(NewMessageEvent("inv-1", "worker_a", "ok")))

	ev := <-emit
	require.NotNil(t, ev.Branch)
	assert.Equal(t, "fanout.worker_a", *ev.Branch)
	assert.Equal(t, true, ev.Actions.StateDelta["done"])
	assert.Empty(t, child.StateDelta, "staged delta must reset after emission")
}
