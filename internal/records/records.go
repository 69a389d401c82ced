// Package records defines the record store collaborator and an in-memory
// implementation.
//
// The record store maps (resource, identifier) to a materialized record.
// The relation cache only stores identifiers; the view composer looks the
// records up here at composition time, so a record may be absent (fetched
// separately or not yet written) and callers must handle partial presence.
package records

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/roach88/relq/internal/ir"
)

// Store is the record store contract.
type Store interface {
	// Get returns the record for id, or false if absent.
	Get(ctx context.Context, resource string, id ir.ID) (ir.Record, bool, error)
	// GetMany returns the records present for ids. Absent ids are simply
	// missing from the result.
	GetMany(ctx context.Context, resource string, ids []ir.ID) (map[ir.ID]ir.Record, error)
	// UpsertMany inserts or replaces records, keyed by their identifier field.
	UpsertMany(ctx context.Context, resource string, recs []ir.Record) error
}

// ChangeFunc is invoked after records of resource were written.
type ChangeFunc func(resource string, ids []ir.ID)

// Counter is implemented by stores that can count a resource's records.
type Counter interface {
	Count(ctx context.Context, resource string) (int, error)
}

// Observable is implemented by stores that report writes.
type Observable interface {
	OnChange(fn ChangeFunc)
}

// Memory is a thread-safe in-memory Store. It is the default record store
// and lives as long as the cache service that owns it.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]map[ir.ID]ir.Record
	idFields ir.IDFields
	changes  []ChangeFunc
}

// NewMemory creates an empty in-memory store.
func NewMemory(idFields ir.IDFields) *Memory {
	return &Memory{
		data:     make(map[string]map[ir.ID]ir.Record),
		idFields: idFields,
	}
}

// OnChange registers fn to be called after every successful UpsertMany.
// Not safe to call concurrently with UpsertMany.
func (m *Memory) OnChange(fn ChangeFunc) {
	m.changes = append(m.changes, fn)
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, resource string, id ir.ID) (ir.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[resource][id]
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(rec), true, nil
}

// GetMany implements Store.
func (m *Memory) GetMany(_ context.Context, resource string, ids []ir.ID) (map[ir.ID]ir.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[ir.ID]ir.Record, len(ids))
	byID := m.data[resource]
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out[id] = maps.Clone(rec)
		}
	}
	return out, nil
}

// UpsertMany implements Store. Either every record is written or none is:
// a record without a usable identifier fails the whole batch.
func (m *Memory) UpsertMany(_ context.Context, resource string, recs []ir.Record) error {
	field := m.idFields.For(resource)
	ids := make([]ir.ID, len(recs))
	for i, rec := range recs {
		id, err := rec.ID(field)
		if err != nil {
			return fmt.Errorf("upsert %s[%d]: %w", resource, i, err)
		}
		ids[i] = id
	}

	m.mu.Lock()
	byID, ok := m.data[resource]
	if !ok {
		byID = make(map[ir.ID]ir.Record)
		m.data[resource] = byID
	}
	for i, rec := range recs {
		byID[ids[i]] = maps.Clone(rec)
	}
	m.mu.Unlock()

	if len(ids) > 0 {
		for _, fn := range m.changes {
			fn(resource, ids)
		}
	}
	return nil
}

// Count implements Counter.
func (m *Memory) Count(_ context.Context, resource string) (int, error) {
	return m.Len(resource), nil
}

// Len returns the number of records stored for resource.
func (m *Memory) Len(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[resource])
}
