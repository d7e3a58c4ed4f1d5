package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/agentkit/artifact"
	"github.com/hupe1980/agentkit/core"
	"github.com/hupe1980/agentkit/logging"
	"github.com/hupe1980/agentkit/memory"
	"github.com/hupe1980/agentkit/session"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// SessionStore persists sessions and committed events.
	SessionStore core.SessionStore
	// ArtifactStore persists versioned binary artifacts.
	ArtifactStore core.ArtifactStore
	// MemoryStore provides long-term recall across sessions.
	MemoryStore core.MemoryStore
	// Logger receives structured runtime logs.
	Logger logging.Logger
	// EventBufferSize sets the buffering of the caller-facing event channel.
	EventBufferSize int
}

// Runner coordinates invocations of one agent tree for one application:
// it resolves sessions, creates invocation contexts, commits emitted events
// and hands out resume tokens. Public methods are safe for concurrent use.
type Runner struct {
	appName string
	agent   core.Agent

	sessionStore    core.SessionStore
	artifactStore   core.ArtifactStore
	memoryStore     core.MemoryStore
	logger          logging.Logger
	eventBufferSize int

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner for the given application name and root agent.
// Without overrides it uses in-memory stores and discards logs.
func New(appName string, agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		SessionStore:    session.NewInMemoryStore(),
		ArtifactStore:   artifact.NewInMemoryStore(),
		MemoryStore:     memory.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
		EventBufferSize: 100,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		appName:         appName,
		agent:           agent,
		sessionStore:    opts.SessionStore,
		artifactStore:   opts.ArtifactStore,
		memoryStore:     opts.MemoryStore,
		logger:          opts.Logger,
		eventBufferSize: opts.EventBufferSize,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// SessionStore exposes the configured session store, e.g. for pre-seeding
// state or out-of-band inspection.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous invocation for userID / sessionID with the given
// user content. An empty sessionID creates a fresh session; an unknown one is
// created with the requested id. It returns the invocation id plus the event
// and error streams. Both channels close when the invocation finishes.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, content core.Content) (string, <-chan core.Event, <-chan error, error) {
	sess, err := r.resolveSession(ctx, userID, sessionID)
	if err != nil {
		return "", nil, nil, err
	}

	invocationID := uuid.NewString()

	userEvent := core.NewUserContentEvent(invocationID, &content)
	if sess, err = r.sessionStore.AppendEvent(ctx, sess, userEvent); err != nil {
		return "", nil, nil, fmt.Errorf("append user event: %w", err)
	}

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event)
	resumeCh := make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[invocationID] = cancel
	r.mu.Unlock()

	ictx := core.NewInvocationContext(
		runCtx,
		r.appName, userID, sess.ID, invocationID,
		r.agent, content,
		agentEmit, resumeCh,
		sess,
		r.sessionStore, r.artifactStore, r.memoryStore,
		r.logger,
	)

	go func() {
		defer close(agentEmit)
		if err := core.RunAgent(r.agent, ictx); err != nil {
			select {
			case errorsCh <- fmt.Errorf("agent execution failed: %w", err):
			default:
			}
		}
	}()

	go func() {
		defer func() {
			cancel()
			// Wait for the producer goroutine to finish before closing the
			// outward channels; it closes agentEmit last.
			for range agentEmit {
			}
			r.mu.Lock()
			delete(r.activeRuns, invocationID)
			r.mu.Unlock()
			sess.DropTempState()
			close(eventsCh)
			close(errorsCh)
		}()
		r.processEvents(ictx, sess, agentEmit, resumeCh, eventsCh, errorsCh)
	}()

	r.logger.Debug("runner.invocation.start", "invocation_id", invocationID, "session_id", sess.ID)

	return invocationID, eventsCh, errorsCh, nil
}

// RunSync runs an invocation to completion and returns all emitted events.
// The first agent or commit error is returned alongside the events collected
// up to that point.
func (r *Runner) RunSync(ctx context.Context, userID, sessionID string, content core.Content) ([]core.Event, error) {
	_, eventsCh, errorsCh, err := r.Run(ctx, userID, sessionID, content)
	if err != nil {
		return nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}
	return events, <-errorsCh
}

// Cancel cancels a running invocation by id.
func (r *Runner) Cancel(invocationID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[invocationID]
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("invocation %s not found", invocationID)
	}
	cancel()
	return nil
}

// AddSessionToMemory ingests a session's conversation into the MemoryStore so
// later invocations can recall it. Typically called when a conversation ends.
func (r *Runner) AddSessionToMemory(ctx context.Context, userID, sessionID string) error {
	sess, err := r.sessionStore.Get(ctx, r.appName, userID, sessionID)
	if err != nil {
		return err
	}
	return r.memoryStore.AddSession(ctx, sess)
}

func (r *Runner) resolveSession(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	if sessionID == "" {
		sess, err := r.sessionStore.Create(ctx, r.appName, userID, "", nil)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return sess, nil
	}

	sess, err := r.sessionStore.Get(ctx, r.appName, userID, sessionID)
	if errors.Is(err, core.ErrSessionNotFound) {
		sess, err = r.sessionStore.Create(ctx, r.appName, userID, sessionID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return sess, nil
}

// processEvents is the commit pipeline. Ordering per non-partial event is
// strict: persist, forward to the caller, then release exactly one resume
// token back to the producer. The resume send never drops; a producer that
// emitted a non-partial event is guaranteed to be waiting for it.
func (r *Runner) processEvents(
	ictx *core.InvocationContext,
	sess *core.Session,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	for {
		select {
		case <-ictx.Done():
			return
		case ev, ok := <-agentEmit:
			if !ok {
				return
			}

			if ev.IsPartial() {
				select {
				case <-ictx.Done():
					return
				case eventsCh <- ev:
				}
				continue
			}

			if _, err := r.sessionStore.AppendEvent(ictx.Context, sess, ev); err != nil {
				select {
				case errorsCh <- fmt.Errorf("commit event: %w", err):
				default:
				}
				return
			}
			r.logger.Debug("runner.event.committed", "event_id", ev.ID, "session_id", sess.ID)

			select {
			case <-ictx.Done():
				return
			case eventsCh <- ev:
			}

			select {
			case <-ictx.Done():
				return
			case resumeCh <- struct{}{}:
			}

			if ictx.EndInvocation() {
				r.logger.Debug("runner.invocation.end_requested", "session_id", sess.ID)
				return
			}
		}
	}
}
