package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentkit/logging"
)

// InvocationContext carries execution state & helpers for one top-level
// invocation. It encapsulates the mutable, per-invocation scope passed to an
// Agent's Run method and aggregates:
//   - The ambient cancellation Context
//   - Identity (AppName, UserID, SessionID, InvocationID, current Agent)
//   - Input user Content
//   - Emission / resumption coordination channels (cooperative yield)
//   - Backing services (session, artifact, memory) for persistence concerns
//   - A working Session snapshot and a pending StateDelta buffer
//   - Branch label disambiguating concurrent sibling executions
//
// State mutations performed via SetState accumulate in StateDelta until an
// emitted event carries them; until then they are visible to code running in
// the same step (dirty reads) but not durable. Composite agents derive child
// contexts via NewChildContext and may vary only the agent and branch.
type InvocationContext struct {
	Context      context.Context
	AppName      string
	UserID       string
	SessionID    string
	InvocationID string
	Agent        Agent
	UserContent  Content
	Branch       string

	Emit   chan<- Event
	Resume <-chan struct{}

	Session       *Session
	SessionStore  SessionStore
	ArtifactStore ArtifactStore
	MemoryStore   MemoryStore
	Logger        logging.Logger

	StateDelta map[string]any

	end *endFlag
}

// endFlag is the shared, invocation-wide cancellation latch. All derived
// child contexts point at the same flag so a callback deep in the tree can
// stop the whole invocation.
type endFlag struct {
	mu  sync.Mutex
	set bool
}

// NewInvocationContext constructs the root context for an invocation.
func NewInvocationContext(
	ctx context.Context,
	appName, userID, sessionID, invocationID string,
	agent Agent,
	userContent Content,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	artifactStore ArtifactStore,
	memoryStore MemoryStore,
	logger logging.Logger,
) *InvocationContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &InvocationContext{
		Context:       ctx,
		AppName:       appName,
		UserID:        userID,
		SessionID:     sessionID,
		InvocationID:  invocationID,
		Agent:         agent,
		UserContent:   userContent,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		ArtifactStore: artifactStore,
		MemoryStore:   memoryStore,
		Logger:        logger,
		StateDelta:    map[string]any{},
		end:           &endFlag{},
	}
}

// Done mirrors context.Context's Done.
func (ic *InvocationContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvocationContext) Err() error { return ic.Context.Err() }

// EndInvocation reports whether a unit or callback requested a cooperative
// stop of the whole invocation.
func (ic *InvocationContext) EndInvocation() bool {
	ic.end.mu.Lock()
	defer ic.end.mu.Unlock()
	return ic.end.set
}

// SetEndInvocation requests a cooperative stop. The runner checks the flag on
// every loop turn; already-committed events stay intact.
func (ic *InvocationContext) SetEndInvocation(v bool) {
	ic.end.mu.Lock()
	defer ic.end.mu.Unlock()
	ic.end.set = v
}

// GetState returns a staged (delta) value if present, else the committed
// session value. The boolean reports whether a value was found.
func (ic *InvocationContext) GetState(k string) (any, bool) {
	if v, ok := ic.StateDelta[k]; ok {
		if IsTombstone(v) {
			return nil, false
		}
		return v, true
	}
	if ic.Session != nil {
		return ic.Session.GetState(k)
	}
	return nil, false
}

// SetState stages a state mutation in the in-memory delta buffer. The change
// is committed when the next emitted event carries it.
func (ic *InvocationContext) SetState(k string, v any) { ic.StateDelta[k] = v }

// DeleteState stages a tombstone for the key.
func (ic *InvocationContext) DeleteState(k string) { ic.StateDelta[k] = Tombstone }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (ic *InvocationContext) ApplyStateDelta(d map[string]any) {
	for k, v := range d {
		ic.StateDelta[k] = v
	}
}

// EmitEvent merges the pending StateDelta into ev.Actions, stamps the branch,
// then suspends on the Emit channel. After a non-partial emission the caller
// must invoke WaitForResume before producing further events so the runner can
// commit first.
func (ic *InvocationContext) EmitEvent(ev Event) error {
	if len(ic.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range ic.StateDelta {
			if _, exists := ev.Actions.StateDelta[k]; !exists {
				ev.Actions.StateDelta[k] = v
			}
		}
	}
	if ev.Branch == nil && ic.Branch != "" {
		b := ic.Branch
		ev.Branch = &b
	}
	if err := ic.Forward(ev); err != nil {
		return err
	}
	ic.StateDelta = map[string]any{}
	return nil
}

// Forward sends an already-finalized event upstream without touching the
// staged delta buffer. Composite agents use it to relay child events
// unchanged.
func (ic *InvocationContext) Forward(ev Event) error {
	select {
	case <-ic.Context.Done():
		return ic.Context.Err()
	case ic.Emit <- ev:
		return nil
	}
}

// WaitForResume blocks until the runner signals that the previously emitted
// event has been committed, or the context is cancelled. If Resume is nil it
// returns immediately.
func (ic *InvocationContext) WaitForResume() error {
	if ic.Resume == nil {
		return nil
	}
	select {
	case <-ic.Resume:
		return nil
	case <-ic.Context.Done():
		return ic.Context.Err()
	}
}

// NewChildContext derives a context for a nested / child execution path. It
// shares identity, services, the working session and the end-invocation latch
// with the parent; only the executing agent, the coordination channels and
// (optionally) the branch label differ. The staged delta buffer starts fresh.
func (ic *InvocationContext) NewChildContext(agent Agent, emit chan<- Event, resume <-chan struct{}, branch string) *InvocationContext {
	finalBranch := ic.Branch
	if branch != "" {
		finalBranch = branch
	}
	return &InvocationContext{
		Context:       ic.Context,
		AppName:       ic.AppName,
		UserID:        ic.UserID,
		SessionID:     ic.SessionID,
		InvocationID:  ic.InvocationID,
		Agent:         agent,
		UserContent:   ic.UserContent,
		Branch:        finalBranch,
		Emit:          emit,
		Resume:        resume,
		Session:       ic.Session,
		SessionStore:  ic.SessionStore,
		ArtifactStore: ic.ArtifactStore,
		MemoryStore:   ic.MemoryStore,
		Logger:        ic.Logger,
		StateDelta:    map[string]any{},
		end:           ic.end,
	}
}

// WithContext returns a copy whose ambient context is replaced, sharing every
// other field including the end latch. Loop agents use this to cancel a child
// mid-iteration without tearing down the invocation.
func (ic *InvocationContext) WithContext(ctx context.Context) *InvocationContext {
	c := *ic
	c.Context = ctx
	return &c
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (ic *InvocationContext) RefreshSession(ctx context.Context) error {
	if ic.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}
	s, err := ic.SessionStore.Get(ctx, ic.AppName, ic.UserID, ic.SessionID)
	if err != nil {
		return err
	}
	ic.Session = s
	return nil
}

// SaveArtifact stores bytes in the ArtifactStore and returns the version.
func (ic *InvocationContext) SaveArtifact(filename string, data []byte) (int, error) {
	if ic.ArtifactStore == nil {
		return 0, fmt.Errorf("artifact store not configured")
	}
	return ic.ArtifactStore.Save(ic.Context, ic.AppName, ic.UserID, ic.SessionID, filename, data)
}

// LoadArtifact retrieves previously saved artifact bytes (latest version when
// version < 0).
func (ic *InvocationContext) LoadArtifact(filename string, version int) ([]byte, error) {
	if ic.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}
	return ic.ArtifactStore.Load(ic.Context, ic.AppName, ic.UserID, ic.SessionID, filename, version)
}

// SearchMemory queries the MemoryStore for relevant snippets.
func (ic *InvocationContext) SearchMemory(query string, limit int) ([]MemorySnippet, error) {
	if ic.MemoryStore == nil {
		return []MemorySnippet{}, nil
	}
	return ic.MemoryStore.Search(ic.Context, ic.AppName, ic.UserID, query, limit)
}

// GetSessionHistory returns all historical events for the session.
func (ic *InvocationContext) GetSessionHistory() []Event {
	if ic.Session == nil {
		return []Event{}
	}
	return ic.Session.GetEvents()
}
