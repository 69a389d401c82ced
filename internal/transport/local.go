package transport

import (
	"context"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/store"
)

// Local answers fetches from the dataset table of a SQLite store.
type Local struct {
	store    *store.Store
	idFields ir.IDFields
}

// NewLocal creates a fetcher over the dataset in s.
func NewLocal(s *store.Store, idFields ir.IDFields) *Local {
	return &Local{store: s, idFields: idFields}
}

// FetchManyByReference implements Fetcher.
func (l *Local) FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error) {
	res, err := l.store.QueryReference(ctx, resource, params, l.idFields.For(resource))
	if err != nil {
		return ir.FetchResult{}, AsError(resource, params, err)
	}
	return res, nil
}
