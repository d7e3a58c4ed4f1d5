package artifact

import (
	"context"
	"sync"
)

// InMemoryStore is a process-local ArtifactStore keeping every version of
// every artifact in nested maps guarded by an RWMutex. Data is copied on save
// and load so callers cannot mutate internal buffers. Suited for tests,
// examples and single-process prototypes; nothing survives a restart.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][][]byte // session key -> filename -> versions
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][][]byte)}
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + "/" + userID + "/" + sessionID
}

// Save appends a new version of filename and returns the version number it
// produced. Versions start at 0 and increase by one per save.
func (s *InMemoryStore) Save(_ context.Context, appName, userID, sessionID, filename string, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(appName, userID, sessionID)
	if s.artifacts[key] == nil {
		s.artifacts[key] = make(map[string][][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.artifacts[key][filename] = append(s.artifacts[key][filename], cp)
	return len(s.artifacts[key][filename]) - 1, nil
}

// Load returns a copy of the requested version, or of the latest version when
// version < 0. Unknown filenames and out-of-range versions return ErrNotFound.
func (s *InMemoryStore) Load(_ context.Context, appName, userID, sessionID, filename string, version int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.artifacts[sessionKey(appName, userID, sessionID)][filename]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound
	}
	if version < 0 {
		version = len(versions) - 1
	}
	if version >= len(versions) {
		return nil, ErrNotFound
	}
	data := versions[version]
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Versions lists the stored version numbers for filename in ascending order.
func (s *InMemoryStore) Versions(_ context.Context, appName, userID, sessionID, filename string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.artifacts[sessionKey(appName, userID, sessionID)][filename]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]int, len(versions))
	for i := range versions {
		out[i] = i
	}
	return out, nil
}

// List returns the artifact filenames stored for the session. The slice is a
// snapshot and safe for caller mutation.
func (s *InMemoryStore) List(_ context.Context, appName, userID, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := s.artifacts[sessionKey(appName, userID, sessionID)]
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	return names, nil
}

// Delete removes all versions of filename or returns ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, appName, userID, sessionID, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(appName, userID, sessionID)
	if _, ok := s.artifacts[key][filename]; !ok {
		return ErrNotFound
	}
	delete(s.artifacts[key], filename)
	return nil
}
