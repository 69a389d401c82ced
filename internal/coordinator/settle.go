package coordinator

import (
	"context"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/relcache"
	"github.com/roach88/relq/internal/transport"
	"github.com/roach88/relq/internal/view"
)

// settle applies one finished fetch. Runs only on the Run goroutine.
//
// Order: stamp seq, upsert records, replace the cache entry, flip the
// state (removing the flight in the same critical section), release
// waiters, notify the composer. A failed fetch writes neither records nor
// cache; the previous entry stays visible.
func (c *Coordinator) settle(ctx context.Context, ev event) {
	f := ev.flight
	seq := c.clock.Next()

	var ids []ir.ID
	var reqErr *RequestError
	if ev.err != nil {
		te := transport.AsError(f.query.Resource, f.query.Params(), ev.err)
		reqErr = newRequestError(CodeTransportFailed, f, te, "fetch failed")
	} else {
		ids, reqErr = c.commit(ctx, f, c.repair(f, ev.result), seq)
	}

	state := ir.RequestState{Status: ir.StatusLoaded, Loaded: true, Seq: seq}
	if reqErr != nil {
		state.Status = ir.StatusError
		state.Err = reqErr
	}

	c.mu.Lock()
	c.states[f.descriptor] = state
	delete(c.flights, f.descriptor)
	c.mu.Unlock()
	close(f.done)

	c.metrics.FetchFinished(f.query.Resource, ev.elapsed, reqErr != nil)
	if reqErr != nil {
		c.logger.Error("fetch settled with error",
			"fetch", f.token,
			"resource", f.query.Resource,
			"descriptor", shortID(f.descriptor),
			"seq", seq,
			"code", string(reqErr.Code),
			"error", reqErr.Cause)
	} else {
		c.logger.Debug("fetch settled",
			"fetch", f.token,
			"resource", f.query.Resource,
			"descriptor", shortID(f.descriptor),
			"seq", seq,
			"ids", len(ids),
			"elapsed", ev.elapsed)
	}

	ch := view.Change{Descriptor: f.descriptor}
	if reqErr == nil {
		ch.Resource = f.query.Resource
		ch.IDs = ids
		ch.Key = f.key
	}
	c.composer.Notify(ctx, ch)
}

// repair enforces len(ids) <= perPage and total >= len(ids) on a result.
func (c *Coordinator) repair(f *flight, res ir.FetchResult) ir.FetchResult {
	if perPage := f.query.Pagination.PerPage; perPage > 0 && len(res.Data) > perPage {
		c.logger.Warn("transport returned more records than requested; truncating",
			"fetch", f.token,
			"resource", f.query.Resource,
			"per_page", perPage,
			"returned", len(res.Data))
		res.Data = res.Data[:perPage]
	}
	if res.Total < len(res.Data) {
		c.logger.Warn("transport total below page size; raising",
			"fetch", f.token,
			"resource", f.query.Resource,
			"total", res.Total,
			"returned", len(res.Data))
		res.Total = len(res.Data)
	}
	return res
}

// commit writes records, then the cache entry. Nothing is written when a
// record has no identifier or the store rejects the batch.
func (c *Coordinator) commit(ctx context.Context, f *flight, res ir.FetchResult, seq int64) ([]ir.ID, *RequestError) {
	resource := f.query.Resource
	field := c.idFields.For(resource)

	ids := make([]ir.ID, len(res.Data))
	for i, rec := range res.Data {
		id, err := rec.ID(field)
		if err != nil {
			return nil, newRequestError(CodeInvalidResult, f, err, "record %d has no usable %q", i, field)
		}
		ids[i] = id
	}

	if len(res.Data) > 0 {
		if err := c.records.UpsertMany(ctx, resource, res.Data); err != nil {
			return nil, newRequestError(CodeStoreFailed, f, err, "upsert records")
		}
		c.metrics.Upserted(resource, len(res.Data))
		c.markOwnWrite(resource, ids)
	}

	c.cache.Put(f.key, relcache.Entry{IDs: ids, Total: res.Total, Version: seq})
	return ids, nil
}
