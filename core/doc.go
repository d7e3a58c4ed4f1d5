// Package core provides the foundational domain types, interfaces and execution
// contexts used by AgentKit. It defines the core abstractions for:
//
//   - Agents (composable task units producing lazy event sequences)
//   - Sessions (durable conversational containers with append-only histories)
//   - Events (immutable communication + orchestration records)
//   - Scoped state (app / user / session / temp key partitions behind one flat view)
//   - InvocationContext / ToolContext (scoped execution & tool sandboxing)
//   - Pluggable stores for session state, artifacts and memory recall/search
//
// The package intentionally keeps implementation concerns (persistence
// backends, runner orchestration, concrete agents) out of scope, exposing
// small interfaces so that custom backends and extensions can be plugged in.
package core
