// Package agent provides the agent implementations of AgentKit: the
// model-driven LLMAgent plus the workflow coordinators SequentialAgent,
// ParallelAgent and LoopAgent. All agents embed BaseAgent for hierarchy
// management, identity and agent-level callback chains, and cooperate with
// the runner through the emit/resume protocol of core.InvocationContext.
package agent
