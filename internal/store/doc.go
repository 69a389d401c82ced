// Package store provides SQLite-backed storage for relq.
//
// It holds two tables:
//   - records: the record store collaborator, (resource, id) to record,
//     written by the coordinator when fetches settle
//   - dataset: source records answering reference fetches for the local
//     backend, loaded with Seed
//
// The relation cache and request states are never persisted.
//
// # Identifiers
//
// Identifiers are stored in id_key as the canonical JSON of the id, so the
// integer 5 ("5") and the string "5" ("\"5\"") never collide.
//
// # Deterministic Query Results
//
// Every multi-row query ends with ORDER BY id_key COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
