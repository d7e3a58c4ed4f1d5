package agent

import "github.com/hupe1980/agentkit/core"

// BeforeAgentCallback runs before an agent executes. Returning non-nil
// content skips the agent's own execution for this run: the content is
// emitted (and committed) as the agent's response instead. The first callback
// returning a concrete value short-circuits the rest of the chain. Returning
// an error fails the agent's execution.
type BeforeAgentCallback func(cc *core.CallbackContext) (*core.Content, error)

// AfterAgentCallback runs after an agent finishes. Returning non-nil content
// emits an additional committed event authored by the agent. The first
// callback returning a concrete value short-circuits the rest of the chain.
type AfterAgentCallback func(cc *core.CallbackContext) (*core.Content, error)
