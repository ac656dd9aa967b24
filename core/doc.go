// Package core provides the foundational domain types and interfaces used by
// Aiden. It defines the core abstractions for:
//
//   - Turns and Sessions (append-only conversation history)
//   - StreamEvents (the typed, ordered progress protocol for a turn)
//   - The MemoryStore contract for durable conversation persistence
//   - The shared error taxonomy surfaced to clients
//
// The package intentionally keeps implementation concerns (persistence,
// providers, transports) out of scope, exposing small interfaces so that
// custom backends can be substituted, in tests and in production alike.
package core
