package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentkit/core"
)

// InMemoryStore is a volatile SessionStore keeping all scope partitions in
// process-local maps. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Restarting the process loses every scope.
//
// A single store mutex guards all partitions, which also serializes
// AppendEvent commits so concurrent appends to one session never lose
// updates.
type InMemoryStore struct {
	mu        sync.RWMutex
	appState  map[string]map[string]any      // appName -> bare key -> value
	userState map[string]map[string]any      // appName/userID -> bare key -> value
	sessions  map[string]*sessionRecord      // appName/userID/sessionID
	sessIDs   map[string]map[string]struct{} // appName/userID -> session ids
}

// sessionRecord is the in-process durable representation of one session:
// session-scoped state plus the committed event log.
type sessionRecord struct {
	state      map[string]any
	events     []core.Event
	lastUpdate time.Time
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		appState:  make(map[string]map[string]any),
		userState: make(map[string]map[string]any),
		sessions:  make(map[string]*sessionRecord),
		sessIDs:   make(map[string]map[string]struct{}),
	}
}

func userKey(appName, userID string) string { return appName + "/" + userID }

func sessionKey(appName, userID, sessionID string) string {
	return appName + "/" + userID + "/" + sessionID
}

// Create allocates a new session, routing initialState keys to their scope
// partitions. An empty sessionID requests a generated id. Creating an id that
// already exists returns core.ErrSessionExists.
func (s *InMemoryStore) Create(_ context.Context, appName, userID, sessionID string, initialState map[string]any) (*core.Session, error) {
	if err := core.ValidateStateDelta(initialState); err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(appName, userID, sessionID)
	if _, exists := s.sessions[key]; exists {
		return nil, core.ErrSessionExists
	}

	rec := &sessionRecord{
		state:      make(map[string]any),
		lastUpdate: time.Now().UTC(),
	}
	for k, v := range initialState {
		s.applyScopedLocked(appName, userID, rec, k, v)
	}

	s.sessions[key] = rec
	uk := userKey(appName, userID)
	if s.sessIDs[uk] == nil {
		s.sessIDs[uk] = make(map[string]struct{})
	}
	s.sessIDs[uk][sessionID] = struct{}{}

	return s.mergedLocked(appName, userID, sessionID, rec), nil
}

// Get returns the session with the merged app/user/session state view or
// core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, appName, userID, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionKey(appName, userID, sessionID)]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return s.mergedLocked(appName, userID, sessionID, rec), nil
}

// List returns the session ids existing for (appName, userID).
func (s *InMemoryStore) List(_ context.Context, appName, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessIDs[userKey(appName, userID)]))
	for id := range s.sessIDs[userKey(appName, userID)] {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes a session, its events and its session-scoped state. App and
// user scoped state survive.
func (s *InMemoryStore) Delete(_ context.Context, appName, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(appName, userID, sessionID)
	if _, ok := s.sessions[key]; !ok {
		return core.ErrSessionNotFound
	}
	delete(s.sessions, key)
	delete(s.sessIDs[userKey(appName, userID)], sessionID)
	return nil
}

// AppendEvent validates and commits an event. The state delta is routed to
// the scope partitions (temp keys touch only the working session), the event
// is appended to the durable history, and the passed working session is
// updated in place. Partial events are validated but never committed.
func (s *InMemoryStore) AppendEvent(_ context.Context, sess *core.Session, ev core.Event) (*core.Session, error) {
	if err := core.ValidateStateDelta(ev.Actions.StateDelta); err != nil {
		return nil, err
	}
	if ev.IsPartial() {
		return sess, nil
	}

	s.mu.Lock()
	rec, ok := s.sessions[sessionKey(sess.AppName, sess.UserID, sess.ID)]
	if !ok {
		s.mu.Unlock()
		return nil, core.ErrSessionNotFound
	}
	for k, v := range ev.Actions.StateDelta {
		s.applyScopedLocked(sess.AppName, sess.UserID, rec, k, v)
	}
	rec.events = append(rec.events, ev)
	rec.lastUpdate = time.Now().UTC()
	s.mu.Unlock()

	sess.ApplyCommittedDelta(ev.Actions.StateDelta)
	sess.AppendCommittedEvent(ev)

	return sess, nil
}

// applyScopedLocked routes one already-validated key/value to its partition.
// Tombstones delete. Temp keys are skipped entirely: they exist only in the
// working session. Caller holds s.mu for writing.
func (s *InMemoryStore) applyScopedLocked(appName, userID string, rec *sessionRecord, key string, value any) {
	scope, rest, _ := core.SplitScopedKey(key)
	switch scope {
	case core.StateScopeApp:
		if s.appState[appName] == nil {
			s.appState[appName] = make(map[string]any)
		}
		applyOne(s.appState[appName], rest, value)
	case core.StateScopeUser:
		uk := userKey(appName, userID)
		if s.userState[uk] == nil {
			s.userState[uk] = make(map[string]any)
		}
		applyOne(s.userState[uk], rest, value)
	case core.StateScopeSession:
		applyOne(rec.state, rest, value)
	case core.StateScopeTemp:
		// never durable
	}
}

func applyOne(partition map[string]any, key string, value any) {
	if core.IsTombstone(value) {
		delete(partition, key)
		return
	}
	partition[key] = value
}

// mergedLocked builds the flattened session view: app and user keys keep
// their prefix, session keys are bare, temp keys are absent. Caller holds
// s.mu at least for reading.
func (s *InMemoryStore) mergedLocked(appName, userID, sessionID string, rec *sessionRecord) *core.Session {
	merged := core.NewSession(appName, userID, sessionID)
	for k, v := range s.appState[appName] {
		merged.State[core.StatePrefixApp+k] = v
	}
	for k, v := range s.userState[userKey(appName, userID)] {
		merged.State[core.StatePrefixUser+k] = v
	}
	for k, v := range rec.state {
		merged.State[k] = v
	}
	merged.Events = make([]core.Event, len(rec.events))
	copy(merged.Events, rec.events)
	merged.LastUpdateTime = rec.lastUpdate
	return merged
}
