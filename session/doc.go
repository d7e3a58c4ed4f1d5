// Package session provides SessionStore implementations. The in-memory store
// lives here; durable backends (sqlite, redis) live in subpackages. All
// implementations share the same contract: AppendEvent is the sole mutation
// entry point, state keys are routed to scope partitions by prefix, and
// temp-scoped values are never persisted.
package session
