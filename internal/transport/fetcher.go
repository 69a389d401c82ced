package transport

import (
	"context"

	"github.com/roach88/relq/internal/ir"
)

// Fetcher fetches one page of records of resource whose params.Target field
// equals params.ID.
type Fetcher interface {
	FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error)

// FetchManyByReference implements Fetcher.
func (f FetcherFunc) FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error) {
	return f(ctx, resource, params)
}
