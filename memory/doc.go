// Package memory provides MemoryStore implementations for long-term recall
// across the sessions of one (appName, userID). Ingestion happens via
// AddSession when a conversation completes; agents only search.
package memory
