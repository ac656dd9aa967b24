// Package memory provides MemoryStore implementations for conversation
// history: a volatile in-memory store for tests and ephemeral servers, and a
// SQLite-backed store for durable single-node deployments.
package memory
