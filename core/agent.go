package core

// Agent is the interface all task units in AgentKit implement.
//
// An agent receives an InvocationContext, produces events through the
// context's Emit channel and suspends after every non-partial emission until
// the runner has committed the event (see InvocationContext.WaitForResume).
// Run returns when the agent's event sequence is exhausted or an unhandled
// failure occurs.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Emit events only through the provided InvocationContext
//   - Wait for resumption after every non-partial event
type Agent interface {
	// Name returns the unique, human-readable agent name.
	Name() string

	// Description returns a short description of the agent's purpose.
	Description() string

	// Run executes the agent's behavior, emitting events via ictx.
	Run(ictx *InvocationContext) error

	// SetSubAgents replaces the child set, enforcing the single-parent rule.
	SetSubAgents(children ...Agent) error

	// SubAgents returns a copy of the current child agents.
	SubAgents() []Agent

	// Parent returns the parent agent or nil for a root.
	Parent() Agent

	// FindAgent searches the subtree rooted at this agent by name.
	FindAgent(name string) Agent
}

// callbackRunner is implemented by agents carrying agent-level callback
// chains (any agent embedding the agent package's BaseAgent).
type callbackRunner interface {
	RunBeforeAgentCallbacks(ictx *InvocationContext) (bool, error)
	RunAfterAgentCallbacks(ictx *InvocationContext) error
}

// RunAgent executes an agent wrapped in its agent-level callback chains. The
// before chain may handle the run (its content is emitted and committed as
// the agent's response, skipping Run entirely); the after chain runs once Run
// returns cleanly. Every execution path — the runner for the root agent,
// composite agents for their children — goes through this wrapper, so the
// hooks fire for any Agent implementation, including user-defined ones.
// Agents without callback chains run unwrapped.
func RunAgent(a Agent, ictx *InvocationContext) error {
	cr, hasCallbacks := a.(callbackRunner)
	if hasCallbacks {
		handled, err := cr.RunBeforeAgentCallbacks(ictx)
		if err != nil {
			return err
		}
		if handled || ictx.EndInvocation() {
			return nil
		}
	}

	if err := a.Run(ictx); err != nil {
		return err
	}

	if hasCallbacks {
		return cr.RunAfterAgentCallbacks(ictx)
	}
	return nil
}
