// Package runner drives top-level invocations against an agent tree. The
// Runner resolves or creates the session, appends the triggering user event,
// then shuttles emitted events through the commit pipeline: every non-partial
// event is persisted via the SessionStore before it is forwarded to the
// caller and before the producing agent receives its resume token. Partial
// (streaming) events are forwarded immediately and never committed.
package runner
