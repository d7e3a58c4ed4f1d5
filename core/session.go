package core

import (
	"context"
	"sync"
	"time"
)

// Session is a durable conversational container identified by the
// (AppName, UserID, ID) triple. State holds the flattened view across all
// scopes: app and user keys keep their prefix, session keys are bare and
// temp keys appear only while the current invocation is processing.
//
// Contract:
//   - Events is append-only; committed events are never removed or reordered
//   - Application code mutates sessions exclusively through
//     SessionStore.AppendEvent, never by direct field assignment
//   - GetEvents / StateSnapshot return defensive copies
type Session struct {
	AppName        string         `json:"app_name"`
	UserID         string         `json:"user_id"`
	ID             string         `json:"id"`
	State          map[string]any `json:"state"`
	Events         []Event        `json:"events"`
	LastUpdateTime time.Time      `json:"last_update_time"`

	mu sync.RWMutex
}

// NewSession creates an empty session for the given identity triple.
func NewSession(appName, userID, id string) *Session {
	return &Session{
		AppName:        appName,
		UserID:         userID,
		ID:             id,
		State:          map[string]any{},
		Events:         []Event{},
		LastUpdateTime: time.Now().UTC(),
	}
}

// GetState returns the value and existence flag for a state key in the
// flattened view.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// setState and deleteState are used by stores when materializing committed
// deltas into the flattened view. They are unexported on purpose: agent code
// must go through AppendEvent.
func (s *Session) setState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.LastUpdateTime = time.Now().UTC()
}

func (s *Session) deleteState(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.State, key)
	s.LastUpdateTime = time.Now().UTC()
}

// ApplyCommittedDelta merges an already-validated, already-persisted delta
// into the flattened view, honoring tombstones. Store implementations call
// this after routing keys to their partitions.
func (s *Session) ApplyCommittedDelta(delta map[string]any) {
	for k, v := range delta {
		if IsTombstone(v) {
			s.deleteState(k)
			continue
		}
		s.setState(k, v)
	}
}

// DropTempState removes all temp-scoped keys from the flattened view. The
// runner calls this when an invocation finishes so ephemeral values never
// outlive their step.
func (s *Session) DropTempState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.State {
		if scope, _, ok := SplitScopedKey(k); ok && scope == StateScopeTemp {
			delete(s.State, k)
		}
	}
}

// AppendCommittedEvent appends an event to the history. Store implementations
// call this after the event's actions have been durably applied.
func (s *Session) AppendCommittedEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.LastUpdateTime = time.Now().UTC()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// StateSnapshot returns a shallow copy of the flattened state view.
func (s *Session) StateSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]any, len(s.State))
	for k, v := range s.State {
		snap[k] = v
	}
	return snap
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational
// roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		AppName:        s.AppName,
		UserID:         s.UserID,
		ID:             s.ID,
		State:          make(map[string]any, len(s.State)),
		Events:         make([]Event, len(s.Events)),
		LastUpdateTime: s.LastUpdateTime,
	}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore manages create/get/list/delete of sessions and durably applies
// event-carried state mutations. AppendEvent is the sole mutation entry point
// and must be atomic per session: concurrent callers never lose updates.
//
// Durability varies by backend: volatile implementations lose every scope on
// restart, persistent ones keep app/user/session scopes. Temp-scoped deltas
// are applied to the working session only and are never durable anywhere.
type SessionStore interface {
	// Create allocates a session. An empty sessionID requests a generated id.
	// initialState keys are routed by scope prefix like event deltas.
	Create(ctx context.Context, appName, userID, sessionID string, initialState map[string]any) (*Session, error)

	// Get returns the session with merged app/user/session state or
	// ErrSessionNotFound.
	Get(ctx context.Context, appName, userID, sessionID string) (*Session, error)

	// List returns the session ids existing for (appName, userID).
	List(ctx context.Context, appName, userID string) ([]string, error)

	// Delete removes a session and its session-scoped state and events.
	// App and user scoped state survive deletion.
	Delete(ctx context.Context, appName, userID, sessionID string) error

	// AppendEvent validates and commits an event: routes its state delta to
	// the scope partitions, appends the event to the history, and updates the
	// passed working session in place. Partial events are a no-op apart from
	// validation. The committed session is returned.
	AppendEvent(ctx context.Context, sess *Session, ev Event) (*Session, error)
}
