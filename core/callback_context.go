package core

// CallbackContext is the constrained surface handed to before/after agent and
// model callbacks. It exposes identity, the invocation input, and state
// access that stages writes into the invocation's pending delta so callback
// mutations ride the next committed event.
type CallbackContext struct {
	ictx      *InvocationContext
	agentName string
}

// NewCallbackContext binds a callback context to an invocation and agent.
func NewCallbackContext(ictx *InvocationContext, agentName string) *CallbackContext {
	return &CallbackContext{ictx: ictx, agentName: agentName}
}

// AgentName returns the name of the agent the callback wraps.
func (cc *CallbackContext) AgentName() string { return cc.agentName }

// InvocationID returns the current invocation identifier.
func (cc *CallbackContext) InvocationID() string { return cc.ictx.InvocationID }

// AppName returns the owning application name.
func (cc *CallbackContext) AppName() string { return cc.ictx.AppName }

// UserID returns the owning user identifier.
func (cc *CallbackContext) UserID() string { return cc.ictx.UserID }

// SessionID returns the session identifier.
func (cc *CallbackContext) SessionID() string { return cc.ictx.SessionID }

// Branch returns the current branch path.
func (cc *CallbackContext) Branch() string { return cc.ictx.Branch }

// UserContent returns the content that initiated the invocation.
func (cc *CallbackContext) UserContent() Content { return cc.ictx.UserContent }

// GetState reads a key through the staged-then-committed lookup path, so a
// callback observes writes made earlier in the same step.
func (cc *CallbackContext) GetState(k string) (any, bool) { return cc.ictx.GetState(k) }

// SetState stages a state write that will be carried by the next emitted
// event of this agent.
func (cc *CallbackContext) SetState(k string, v any) { cc.ictx.SetState(k, v) }

// DeleteState stages a tombstone for the key.
func (cc *CallbackContext) DeleteState(k string) { cc.ictx.DeleteState(k) }

// EndInvocation requests a cooperative stop of the whole invocation.
func (cc *CallbackContext) EndInvocation() { cc.ictx.SetEndInvocation(true) }

// InvocationContext exposes the underlying context for advanced callbacks.
func (cc *CallbackContext) InvocationContext() *InvocationContext { return cc.ictx }
