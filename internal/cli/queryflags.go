package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/ir"
)

// queryFlags are the flags describing reference queries, shared by query
// and key.
type queryFlags struct {
	Resource    string
	Target      string
	Referencing string
	IDs         []string
	StringID    bool
	Page        int
	PerPage     int
	Sort        string
	Order       string
	Filters     []string
	FilterJSON  string
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.Resource, "resource", "r", "", "resource to fetch (required)")
	flags.StringVarP(&f.Target, "target", "t", "", "field referencing the parent record (required)")
	flags.StringVar(&f.Referencing, "referencing", "", "resource of the parent record")
	flags.StringSliceVar(&f.IDs, "id", nil, "parent identifier; repeat or comma-separate for several (required)")
	flags.BoolVar(&f.StringID, "string-id", false, "treat numeric-looking ids as strings")
	flags.IntVar(&f.Page, "page", 0, "1-based page; 0 fetches without pagination")
	flags.IntVar(&f.PerPage, "per-page", 0, "page size; 0 is unbounded")
	flags.StringVar(&f.Sort, "sort", "", "sort field")
	flags.StringVar(&f.Order, "order", "", "sort order (ASC|DESC)")
	flags.StringArrayVar(&f.Filters, "filter", nil, "filter as field=value; repeatable")
	flags.StringVar(&f.FilterJSON, "filter-json", "", "filter as a JSON object, merged before --filter")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("id")
}

// queries builds one query per --id.
func (f *queryFlags) queries() ([]ir.ReferenceQuery, error) {
	filter, err := parseFilter(f.FilterJSON, f.Filters)
	if err != nil {
		return nil, err
	}
	var sort ir.Sort
	if f.Sort != "" {
		order, err := ir.ParseOrder(f.Order)
		if err != nil {
			return nil, err
		}
		sort = ir.Sort{Field: f.Sort, Order: order}
	} else if f.Order != "" {
		return nil, fmt.Errorf("--order needs --sort")
	}

	out := make([]ir.ReferenceQuery, 0, len(f.IDs))
	for _, raw := range f.IDs {
		q := ir.ReferenceQuery{
			Resource:            f.Resource,
			Target:              f.Target,
			ID:                  parseID(raw, f.StringID),
			Pagination:          ir.Pagination{Page: f.Page, PerPage: f.PerPage},
			Sort:                sort,
			Filter:              filter,
			ReferencingResource: f.Referencing,
		}
		if err := q.Validate(); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one --id is required")
	}
	return out, nil
}

func parseID(raw string, forceString bool) ir.ID {
	if !forceString {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return ir.IntID(n)
		}
	}
	return ir.StringID(raw)
}

// parseFilter merges a JSON object with field=value pairs. Pair values are
// null, true, false, an integer, or else a string.
func parseFilter(raw string, pairs []string) (ir.Filter, error) {
	m := make(map[string]any)
	if raw != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("--filter-json: %w", err)
		}
	}
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("--filter %q: expected field=value", pair)
		}
		m[field] = parseScalar(value)
	}
	return ir.NewFilter(m)
}

func parseScalar(s string) any {
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
