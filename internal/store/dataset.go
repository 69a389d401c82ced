package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
)

// Seed inserts or replaces dataset records of resource, keyed by idField.
// Returns the number of records written.
func (s *Store) Seed(ctx context.Context, resource, idField string, recs []ir.Record) (int, error) {
	if resource == "" {
		return 0, fmt.Errorf("seed: resource is required")
	}
	keyed, err := keyRecords(resource, idField, recs)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dataset (resource, id_key, body)
		VALUES (?, ?, ?)
		ON CONFLICT(resource, id_key) DO UPDATE SET body = excluded.body
	`)
	if err != nil {
		return 0, fmt.Errorf("seed: prepare: %w", err)
	}
	defer stmt.Close()

	for _, k := range keyed {
		if _, err := stmt.ExecContext(ctx, resource, k.key, k.body); err != nil {
			return 0, fmt.Errorf("seed %s/%s: %w", resource, k.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed: commit: %w", err)
	}
	return len(keyed), nil
}

// QueryReference answers a reference fetch from the dataset: the requested
// page of resource records whose Target field equals ID under Filter, and
// the total number of matches.
func (s *Store) QueryReference(ctx context.Context, resource string, p ir.ReferenceParams, idField string) (ir.FetchResult, error) {
	sel, count, err := queryir.FromReference(resource, p, idField)
	if err != nil {
		return ir.FetchResult{}, fmt.Errorf("query %s: %w", resource, err)
	}

	compiler := querysql.NewSQLCompiler()
	pageSQL, pageParams, err := compiler.Compile(sel)
	if err != nil {
		return ir.FetchResult{}, fmt.Errorf("query %s: %w", resource, err)
	}
	countSQL, countParams, err := compiler.Compile(count)
	if err != nil {
		return ir.FetchResult{}, fmt.Errorf("query %s: %w", resource, err)
	}

	// One read transaction keeps page and total consistent.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.FetchResult{}, fmt.Errorf("query %s: begin tx: %w", resource, err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, countSQL, countParams...).Scan(&total); err != nil {
		return ir.FetchResult{}, fmt.Errorf("count %s: %w", resource, err)
	}

	rows, err := tx.QueryContext(ctx, pageSQL, pageParams...)
	if err != nil {
		return ir.FetchResult{}, fmt.Errorf("query %s: %w", resource, err)
	}
	defer rows.Close()

	data := []ir.Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return ir.FetchResult{}, fmt.Errorf("scan %s: %w", resource, err)
		}
		rec, err := unmarshalRecord(body)
		if err != nil {
			return ir.FetchResult{}, fmt.Errorf("query %s: %w", resource, err)
		}
		data = append(data, rec)
	}
	if err := rows.Err(); err != nil {
		return ir.FetchResult{}, fmt.Errorf("iterate %s: %w", resource, err)
	}

	return ir.FetchResult{Data: data, Total: total}, nil
}

// Resources lists the resources present in the dataset, sorted.
func (s *Store) Resources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT resource FROM dataset ORDER BY resource COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	resources := []string{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

// DatasetCount returns the number of dataset records of resource.
func (s *Store) DatasetCount(ctx context.Context, resource string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dataset WHERE resource = ?`, resource).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", resource, err)
	}
	return n, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
