// Package store persists learned patterns and serves them to the rest of the
// service.
//
// # Document Model
//
// The whole pattern set travels as one Document: an id-keyed map of patterns
// plus aggregate stats. Backends load and save the document as a unit, which
// keeps the stats consistent with the patterns they describe and makes every
// write a full snapshot.
//
// # Backends
//
// Two backends implement the same Backend interface: DocumentBackend keeps a
// single JSON file and replaces it atomically on save, SQLiteBackend keeps a
// local database and rewrites the pattern table in one transaction. A
// document that fails integrity checks at load is reported as
// ErrStorageCorrupt; callers decide whether that is fatal (startup) or
// survivable (a background reload keeping the previous snapshot).
//
// # Mutation
//
// PatternStore serializes writes through Mutate: the current snapshot is
// deep-copied, the caller edits the copy, stats are recomputed, the backend
// saves, and only then does the in-memory snapshot swap. A failed save leaves
// both memory and disk on the previous consistent state. Readers always see
// either the old snapshot or the new one, never a half-applied edit.
package store
