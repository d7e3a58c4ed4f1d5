package agent

import (
	"fmt"

	"github.com/hupe1980/agentkit/core"
)

// SequentialAgent coordinates the execution of multiple child agents in
// order. Each child runs to completion before the next starts, and committed
// state from earlier children is visible to later ones because every child
// shares the parent's emit/resume channels and working session.
//
// SequentialAgent is ideal for multi-step pipelines where agent outputs build
// upon each other, typically via output keys.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

// NewSequentialAgent creates a new sequential execution coordinator. Children
// execute in the order given.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	s := &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
	// Parent linkage mirrors SetSubAgents; construction-time wiring keeps the
	// single-parent rule checkable up front.
	if err := s.SetSubAgents(children...); err != nil {
		panic(err)
	}
	return s
}

// Run implements core.Agent. It executes each child in order with the shared
// invocation context; the first error stops further processing. A cooperative
// end-invocation request between children is honored.
func (s *SequentialAgent) Run(ictx *core.InvocationContext) error {
	for _, child := range s.children {
		if ictx.EndInvocation() {
			break
		}
		childCtx := ictx.NewChildContext(child, ictx.Emit, ictx.Resume, "")
		if err := core.RunAgent(child, childCtx); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
