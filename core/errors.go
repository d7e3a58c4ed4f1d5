package core

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by SessionStore.Get / Delete when no session
// exists for the requested (appName, userID, sessionID) triple.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned by SessionStore.Create when a session with the
// requested id already exists.
var ErrSessionExists = errors.New("session already exists")

// ErrEventPartial indicates an operation that requires a committed (non
// partial) event was handed a streaming fragment.
var ErrEventPartial = errors.New("event is a partial streaming fragment")

// StateError describes a state delta rejected at the SessionStore boundary.
// It carries the offending key so callers can pinpoint the bad write.
type StateError struct {
	Key     string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error for key %q: %s", e.Key, e.Message)
}

// NewStateError constructs a StateError for the given key.
func NewStateError(key, format string, args ...any) *StateError {
	return &StateError{Key: key, Message: fmt.Sprintf(format, args...)}
}
