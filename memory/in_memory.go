package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentkit/core"
)

// storedMemory is one ingested conversational turn.
type storedMemory struct {
	id       string
	content  string
	metadata map[string]any
}

// InMemoryStore is a process-local MemoryStore. AddSession flattens a
// session's non-partial message events into stored snippets; Search scans
// them with case-insensitive word matching. Linear scan with naive scoring,
// suitable for tests and demos; swap in a vector index for production
// retrieval.
type InMemoryStore struct {
	mu      sync.RWMutex
	storage map[string][]storedMemory // appName/userID -> snippets
}

// NewInMemoryStore creates an empty in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{storage: make(map[string][]storedMemory)}
}

func userKey(appName, userID string) string { return appName + "/" + userID }

// AddSession ingests every event of the session that carries message text.
func (m *InMemoryStore) AddSession(_ context.Context, sess *core.Session) error {
	if sess == nil {
		return fmt.Errorf("nil session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := userKey(sess.AppName, sess.UserID)
	for _, ev := range sess.Events {
		if ev.IsPartial() || ev.Content == nil {
			continue
		}
		text := ev.Content.Text()
		if text == "" {
			continue
		}
		m.storage[key] = append(m.storage[key], storedMemory{
			id:      fmt.Sprintf("%s_%d", sess.ID, len(m.storage[key])),
			content: text,
			metadata: map[string]any{
				"session_id": sess.ID,
				"author":     ev.Author,
			},
		})
	}
	return nil
}

// Search scores every stored snippet by the fraction of query words it
// contains and returns up to limit hits, best first. An empty query matches
// nothing.
func (m *InMemoryStore) Search(_ context.Context, appName, userID, query string, limit int) ([]core.MemorySnippet, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return []core.MemorySnippet{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []core.MemorySnippet
	for _, stored := range m.storage[userKey(appName, userID)] {
		content := strings.ToLower(stored.content)
		matched := 0
		for _, w := range words {
			if strings.Contains(content, w) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		md := make(map[string]any, len(stored.metadata))
		for k, v := range stored.metadata {
			md[k] = v
		}
		results = append(results, core.MemorySnippet{
			ID:       stored.id,
			Content:  stored.content,
			Score:    float64(matched) / float64(len(words)),
			Metadata: md,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
