package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// idKey renders an identifier as canonical JSON so string and integer ids
// stay distinct in one TEXT column.
func idKey(id ir.ID) string {
	return string(ir.MarshalCanonical(id.Value()))
}

// marshalRecord converts a record to JSON TEXT for storage.
// Records may carry floats, so this is plain JSON with sorted keys rather
// than canonical JSON. HTML escaping is disabled to keep bodies readable.
func marshalRecord(rec ir.Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unmarshalRecord parses JSON TEXT to a record. Numbers decode as
// json.Number to avoid float64 precision loss for large integers.
func unmarshalRecord(data string) (ir.Record, error) {
	rec, err := ir.DecodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// keyedRecord is a record with its identifier resolved.
type keyedRecord struct {
	id   ir.ID
	key  string
	body string
}

// keyRecords resolves identifiers and bodies for a batch before any write,
// so a bad record fails the batch without touching the database.
func keyRecords(resource, idField string, recs []ir.Record) ([]keyedRecord, error) {
	out := make([]keyedRecord, len(recs))
	for i, rec := range recs {
		id, err := rec.ID(idField)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", resource, i, err)
		}
		body, err := marshalRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", resource, i, err)
		}
		out[i] = keyedRecord{id: id, key: idKey(id), body: body}
	}
	return out, nil
}
