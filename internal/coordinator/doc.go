// Package coordinator resolves reference queries against the relation
// cache, deduplicates concurrent fetches, tracks per-descriptor request
// state and applies settled fetches.
//
// # Request lifecycle
//
// Request derives the canonical key (pagination and sort excluded) and the
// descriptor id (everything included). If a fetch for the descriptor is in
// flight the caller joins it; otherwise, unless the fetch policy is already
// satisfied, a new flight starts and the state moves to loading. The view
// returned right away carries the last cache entry for the key, so callers
// see stale data while a refetch runs.
//
// # Single writer
//
// Flights run on their own goroutines, bounded by a weighted semaphore,
// and never write shared state. Their results are queued to Run, the only
// goroutine that mutates the record store and the relation cache. For each
// settlement Run stamps a logical sequence, upserts the records, replaces
// the cache entry, flips the state and notifies the view composer, in that
// order. Settlements of different descriptors sharing a key are applied in
// completion order, so the last to complete wins the cache slot.
//
// # Cancellation
//
// A flight outlives the request that started it: cancelling a caller's
// context abandons that caller's wait, never the fetch.
package coordinator
