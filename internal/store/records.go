package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/records"
)

// maxBatchParams bounds the placeholders of one IN list, well under
// SQLite's default variable limit.
const maxBatchParams = 500

// RecordStore is a records.Store over the records table.
type RecordStore struct {
	store    *Store
	idFields ir.IDFields

	mu      sync.RWMutex
	changes []records.ChangeFunc
}

// Records returns the record store backed by s.
func (s *Store) Records(idFields ir.IDFields) *RecordStore {
	return &RecordStore{store: s, idFields: idFields}
}

// OnChange registers fn to be called after every successful UpsertMany.
func (r *RecordStore) OnChange(fn records.ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, fn)
}

// Get implements records.Store.
func (r *RecordStore) Get(ctx context.Context, resource string, id ir.ID) (ir.Record, bool, error) {
	var body string
	err := r.store.db.QueryRowContext(ctx,
		`SELECT body FROM records WHERE resource = ? AND id_key = ?`,
		resource, idKey(id),
	).Scan(&body)
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record %s/%s: %w", resource, id, err)
	}
	rec, err := unmarshalRecord(body)
	if err != nil {
		return nil, false, fmt.Errorf("get record %s/%s: %w", resource, id, err)
	}
	return rec, true, nil
}

// GetMany implements records.Store.
func (r *RecordStore) GetMany(ctx context.Context, resource string, ids []ir.ID) (map[ir.ID]ir.Record, error) {
	out := make(map[ir.ID]ir.Record, len(ids))
	byKey := make(map[string]ir.ID, len(ids))
	for _, id := range ids {
		byKey[idKey(id)] = id
	}

	for start := 0; start < len(ids); start += maxBatchParams {
		end := min(start+maxBatchParams, len(ids))
		params := []any{resource}
		for _, id := range ids[start:end] {
			params = append(params, idKey(id))
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", end-start), ", ")

		rows, err := r.store.db.QueryContext(ctx,
			`SELECT id_key, body FROM records WHERE resource = ? AND id_key IN (`+placeholders+`)
			ORDER BY id_key COLLATE BINARY ASC`,
			params...)
		if err != nil {
			return nil, fmt.Errorf("get records %s: %w", resource, err)
		}
		for rows.Next() {
			var key, body string
			if err := rows.Scan(&key, &body); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan record %s: %w", resource, err)
			}
			rec, err := unmarshalRecord(body)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("get records %s: %w", resource, err)
			}
			out[byKey[key]] = rec
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate records %s: %w", resource, err)
		}
	}
	return out, nil
}

// UpsertMany implements records.Store. The batch is written in one
// transaction stamped with the next write sequence.
func (r *RecordStore) UpsertMany(ctx context.Context, resource string, recs []ir.Record) error {
	keyed, err := keyRecords(resource, r.idFields.For(resource), recs)
	if err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	if len(keyed) == 0 {
		return nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert records: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM records`).Scan(&seq); err != nil {
		return fmt.Errorf("upsert records: next seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (resource, id_key, body, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resource, id_key) DO UPDATE SET body = excluded.body, seq = excluded.seq
	`)
	if err != nil {
		return fmt.Errorf("upsert records: prepare: %w", err)
	}
	defer stmt.Close()

	for _, k := range keyed {
		if _, err := stmt.ExecContext(ctx, resource, k.key, k.body, seq); err != nil {
			return fmt.Errorf("upsert record %s/%s: %w", resource, k.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert records: commit: %w", err)
	}

	ids := make([]ir.ID, len(keyed))
	for i, k := range keyed {
		ids[i] = k.id
	}
	r.mu.RLock()
	changes := r.changes
	r.mu.RUnlock()
	for _, fn := range changes {
		fn(resource, ids)
	}
	return nil
}

// Count implements records.Counter.
func (r *RecordStore) Count(ctx context.Context, resource string) (int, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE resource = ?`, resource).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records %s: %w", resource, err)
	}
	return n, nil
}

// LastSeq returns the write sequence of the latest UpsertMany, or 0.
func (r *RecordStore) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM records`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

var (
	_ records.Store      = (*RecordStore)(nil)
	_ records.Observable = (*RecordStore)(nil)
	_ records.Counter    = (*RecordStore)(nil)
)
