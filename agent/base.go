package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentkit/core"
)

// BaseAgent bundles identity, hierarchy management and agent-level callback
// chains shared by all agent implementations. Embed it in concrete agents and
// supply a Run method to satisfy the core.Agent interface. All exported
// methods are goroutine-safe unless otherwise documented.
type BaseAgent struct {
	name        string
	description string
	mu          sync.Mutex
	parent      core.Agent
	subAgents   []core.Agent

	beforeCallbacks []BeforeAgentCallback
	afterCallbacks  []AfterAgentCallback
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// AddBeforeAgentCallback appends a callback run before this agent executes.
func (b *BaseAgent) AddBeforeAgentCallback(cb BeforeAgentCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beforeCallbacks = append(b.beforeCallbacks, cb)
}

// AddAfterAgentCallback appends a callback run after this agent finishes.
func (b *BaseAgent) AddAfterAgentCallback(cb AfterAgentCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.afterCallbacks = append(b.afterCallbacks, cb)
}

func (b *BaseAgent) beforeAgentCallbacks() []BeforeAgentCallback {
	b.mu.Lock()
	defer b.mu.Unlock()
	cbs := make([]BeforeAgentCallback, len(b.beforeCallbacks))
	copy(cbs, b.beforeCallbacks)
	return cbs
}

func (b *BaseAgent) afterAgentCallbacks() []AfterAgentCallback {
	b.mu.Lock()
	defer b.mu.Unlock()
	cbs := make([]AfterAgentCallback, len(b.afterCallbacks))
	copy(cbs, b.afterCallbacks)
	return cbs
}

// RunBeforeAgentCallbacks runs the before-agent chain. When a callback
// returns content, the content is emitted and committed as this agent's
// response and the returned bool is true: the agent's own Run must be skipped
// for this execution. Invoked by core.RunAgent, not by concrete Run methods.
func (b *BaseAgent) RunBeforeAgentCallbacks(ictx *core.InvocationContext) (bool, error) {
	cc := core.NewCallbackContext(ictx, b.name)
	for _, cb := range b.beforeAgentCallbacks() {
		content, err := cb(cc)
		if err != nil {
			return false, fmt.Errorf("before agent callback failed for %s: %w", b.name, err)
		}
		if content != nil {
			if err := b.emitCallbackContent(ictx, content); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// RunAfterAgentCallbacks runs the after-agent chain; content returned by a
// callback is emitted as an additional committed event. Invoked by
// core.RunAgent after a clean Run.
func (b *BaseAgent) RunAfterAgentCallbacks(ictx *core.InvocationContext) error {
	cc := core.NewCallbackContext(ictx, b.name)
	for _, cb := range b.afterAgentCallbacks() {
		content, err := cb(cc)
		if err != nil {
			return fmt.Errorf("after agent callback failed for %s: %w", b.name, err)
		}
		if content != nil {
			return b.emitCallbackContent(ictx, content)
		}
	}
	return nil
}

// emitCallbackContent emits a committed, turn-completing event carrying
// callback-provided content.
func (b *BaseAgent) emitCallbackContent(ictx *core.InvocationContext, content *core.Content) error {
	ev := core.NewEvent(ictx.InvocationID, b.name)
	ev.Content = content
	partial := false
	ev.Partial = &partial
	complete := true
	ev.TurnComplete = &complete
	if err := ictx.EmitEvent(ev); err != nil {
		return err
	}
	return ictx.WaitForResume()
}

// SetSubAgents replaces the existing child set and assigns this agent as
// parent of each child. The single-parent rule is enforced: attaching an
// agent that already belongs to another parent is an error. Previous children
// are detached.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, child := range children {
		if p := child.Parent(); p != nil && p.Name() != b.name {
			return fmt.Errorf("agent %s already has parent %s", child.Name(), p.Name())
		}
	}

	// Clear existing relationships to prevent orphaned references.
	for _, child := range b.subAgents {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(nil)
		}
	}
	b.subAgents = nil

	for _, child := range children {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			// Wrap so the reference satisfies core.Agent (Run provided by wrapper).
			setter.setParent(&agentWrapper{b})
		}
		b.subAgents = append(b.subAgents, child)
	}

	return nil
}

// setParent sets the internal parent reference.
func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Parent returns the parent agent in the hierarchy, nil for root agents.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SubAgents returns a shallow copy of current child agents for safe iteration.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent performs a depth-first search over the subtree rooted at this
// agent (including itself) returning the first agent whose Name matches, or
// nil if no match is found.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name {
		return &agentWrapper{b}
	}

	for _, child := range b.SubAgents() {
		if child.Name() == name {
			return child
		}
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// agentWrapper wraps BaseAgent to satisfy core.Agent for hierarchy references.
type agentWrapper struct{ *BaseAgent }

// Run reports that a bare BaseAgent has no behavior of its own.
func (w *agentWrapper) Run(_ *core.InvocationContext) error {
	return fmt.Errorf("cannot execute BaseAgent directly - embed it in a concrete agent with Run implementation")
}
