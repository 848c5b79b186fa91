// Package store persists chat transcripts in SQLite.
//
// # Data Model
//
//   - Conversation: one transcript, keyed by the chat session ID, with a
//     title taken from its first user prompt
//   - messages: the ordered log of a conversation; each row holds the full
//     JSON encoding of an agent.Message and a per-conversation seq
//
// SQLiteStore implements conversation.Persister, so the in-memory history
// of a session is mirrored row for row: appends insert at seq+1 and a
// rollback deletes the highest seq.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go, no cgo) with:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as fixed-width RFC 3339 strings in UTC.
//
// # Error Handling
//
//   - ErrNotFound: requested conversation or message does not exist
//   - ErrDuplicateConversation: CreateConversation with an existing ID
package store
