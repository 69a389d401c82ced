package ir

import (
	"fmt"
	"strings"
)

// Order is a sort direction.
type Order string

const (
	OrderAsc  Order = "ASC"
	OrderDesc Order = "DESC"
)

// ParseOrder normalizes a sort direction. Empty means ASC.
func ParseOrder(s string) (Order, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return OrderAsc, nil
	case "DESC":
		return OrderDesc, nil
	default:
		return "", fmt.Errorf("invalid sort order %q: must be ASC or DESC", s)
	}
}

// Pagination selects one page. Pages are 1-based.
type Pagination struct {
	Page    int `json:"page" yaml:"page"`
	PerPage int `json:"perPage" yaml:"per_page"`
}

// Offset returns the zero-based index of the first record on the page.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// Sort orders the page.
type Sort struct {
	Field string `json:"field" yaml:"field"`
	Order Order  `json:"order" yaml:"order"`
}

// Filter is an extra predicate on the related records: every key must equal
// its value. Arrays mean "any of".
type Filter = IRObject

// NewFilter validates and converts a decoded map into a Filter.
// A nil map yields an empty filter.
func NewFilter(m map[string]any) (Filter, error) {
	f := make(Filter, len(m))
	for k, v := range m {
		iv, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", k, err)
		}
		f[k] = iv
	}
	return f, nil
}

// MustFilter is like NewFilter but panics on error.
// Use only in tests or with literal inputs.
func MustFilter(m map[string]any) Filter {
	f, err := NewFilter(m)
	if err != nil {
		panic(err)
	}
	return f
}

// ReferenceParams is what the transport receives: fetch the page of
// records whose Target field equals ID, under Filter, sorted and paginated.
type ReferenceParams struct {
	Target     string     `json:"target"`
	ID         ID         `json:"id"`
	Pagination Pagination `json:"pagination"`
	Sort       Sort       `json:"sort"`
	Filter     Filter     `json:"filter"`
}

// ReferenceQuery is the caller-facing request for one page of a
// one-to-many relation.
//
// Resource is the "many" side (e.g. comments); ReferencingResource is the
// parent resource (e.g. posts) and only takes part in the cache key.
type ReferenceQuery struct {
	Resource            string
	Target              string
	ID                  ID
	Pagination          Pagination
	Sort                Sort
	Filter              Filter
	ReferencingResource string
}

// Params returns the transport-facing part of the query.
func (q ReferenceQuery) Params() ReferenceParams {
	filter := q.Filter
	if filter == nil {
		filter = Filter{}
	}
	return ReferenceParams{
		Target:     q.Target,
		ID:         q.ID,
		Pagination: q.Pagination,
		Sort:       q.Sort,
		Filter:     filter,
	}
}

// Validate checks the fields the transport cannot do without.
func (q ReferenceQuery) Validate() error {
	if q.Resource == "" {
		return fmt.Errorf("resource is required")
	}
	if q.Target == "" {
		return fmt.Errorf("target is required")
	}
	if q.Pagination.PerPage < 0 || q.Pagination.Page < 0 {
		return fmt.Errorf("pagination must not be negative")
	}
	if q.Sort.Order != "" && q.Sort.Order != OrderAsc && q.Sort.Order != OrderDesc {
		return fmt.Errorf("invalid sort order %q", q.Sort.Order)
	}
	return nil
}

// FetchResult is a settled page from the transport.
type FetchResult struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
}
