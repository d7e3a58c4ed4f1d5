// Package agentkit provides a high-level façade over the runner and service
// abstractions (sessions, artifacts, memory & logging) for building
// multi-agent systems with strict event ordering. Most applications interact
// with this package by:
//  1. Composing an agent tree (llm, sequential, parallel, loop, custom)
//  2. Creating an AgentKit via New() (optionally overriding the default
//     in-memory services)
//  3. Invoking the tree asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// concise. All defaults are safe for local development and testing;
// production deployments typically supply durable store implementations and
// a structured logger.
package agentkit

import (
	"context"

	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/logging"
	"github.com/hupe1980/agentkit/runner"
)

// Options configures the AgentKit instance.
type Options struct {
	// SessionStore persists sessions and committed events (defaults to
	// in-memory).
	SessionStore core.SessionStore

	// ArtifactStore persists versioned binary artifacts (defaults to
	// in-memory).
	ArtifactStore core.ArtifactStore

	// MemoryStore provides long-term recall across sessions (defaults to
	// in-memory).
	MemoryStore core.MemoryStore

	// Logger receives structured runtime logs (defaults to NoOp).
	Logger logging.Logger

	// EventBufferSize sets the channel buffer size for the caller-facing
	// event stream. Larger buffers reduce blocking but increase memory usage.
	EventBufferSize int
}

// AgentKit is the high-level façade aggregating the runner and its services.
type AgentKit struct {
	runner *runner.Runner
}

// New creates an AgentKit for the given application name and root agent.
// Any unset service is initialized with an in-memory implementation.
func New(appName string, root core.Agent, optFns ...func(o *Options)) *AgentKit {
	opts := Options{EventBufferSize: 100}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(appName, root, func(o *runner.Options) {
		if opts.SessionStore != nil {
			o.SessionStore = opts.SessionStore
		}
		if opts.ArtifactStore != nil {
			o.ArtifactStore = opts.ArtifactStore
		}
		if opts.MemoryStore != nil {
			o.MemoryStore = opts.MemoryStore
		}
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
		o.EventBufferSize = opts.EventBufferSize
	})

	return &AgentKit{runner: r}
}

// Run starts an asynchronous invocation returning the invocation id plus
// event and error channels. Both channels close when the invocation finishes.
func (k *AgentKit) Run(ctx context.Context, userID, sessionID string, content core.Content) (string, <-chan core.Event, <-chan error, error) {
	return k.runner.Run(ctx, userID, sessionID, content)
}

// RunSync runs an invocation to completion, returning every emitted event.
func (k *AgentKit) RunSync(ctx context.Context, userID, sessionID string, content core.Content) ([]core.Event, error) {
	return k.runner.RunSync(ctx, userID, sessionID, content)
}

// Cancel cancels a running invocation by id.
func (k *AgentKit) Cancel(invocationID string) error {
	return k.runner.Cancel(invocationID)
}

// AddSessionToMemory ingests a session's conversation into the MemoryStore.
func (k *AgentKit) AddSessionToMemory(ctx context.Context, userID, sessionID string) error {
	return k.runner.AddSessionToMemory(ctx, userID, sessionID)
}
