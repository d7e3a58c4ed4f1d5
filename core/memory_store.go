package core

import "context"

// MemorySnippet is a retrieved memory item with a relevance score and
// arbitrary metadata.
type MemorySnippet struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// MemoryStore provides long-term recall across sessions of one
// (appName, userID). The runtime only reads from it during an invocation;
// ingestion happens out-of-band via AddSession when a conversation completes.
type MemoryStore interface {
	// Search returns up to limit ranked snippets matching the query.
	Search(ctx context.Context, appName, userID, query string, limit int) ([]MemorySnippet, error)

	// AddSession ingests the conversational events of a completed session.
	AddSession(ctx context.Context, sess *Session) error
}
