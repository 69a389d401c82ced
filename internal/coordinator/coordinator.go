package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keys"
	"github.com/roach88/relq/internal/metrics"
	"github.com/roach88/relq/internal/records"
	"github.com/roach88/relq/internal/relcache"
	"github.com/roach88/relq/internal/transport"
	"github.com/roach88/relq/internal/view"
)

// flight is one in-progress fetch of a descriptor. done is closed when the
// settlement has been applied.
type flight struct {
	query      ir.ReferenceQuery
	key        keys.Key
	descriptor string
	token      string
	started    time.Time
	done       chan struct{}
}

// FlightInfo describes an in-flight fetch.
type FlightInfo struct {
	Resource   string
	Key        keys.Key
	Descriptor string
	Token      string
	Started    time.Time
}

// Coordinator is the relation cache service. Build one per process (or per
// test); instances share nothing.
type Coordinator struct {
	fetcher  transport.Fetcher
	cache    *relcache.Cache
	records  records.Store
	composer *view.Composer
	idFields ir.IDFields

	logger        *slog.Logger
	metrics       *metrics.Metrics
	policy        Policy
	maxConcurrent int
	sem           *semaphore.Weighted
	timeout       time.Duration
	clock         *Clock
	tokens        TokenGenerator

	queue   *eventQueue
	running atomic.Bool

	// ownWrites holds upserts made by settle whose change events are still
	// queued. Touched only by the Run loop.
	observed  bool
	ownWrites []string

	mu      sync.Mutex
	flights map[string]*flight
	states  map[string]ir.RequestState
}

// New creates a coordinator fetching through fetcher and materializing
// records into store. Call Run to start applying settlements.
func New(fetcher transport.Fetcher, store records.Store, opts ...Option) *Coordinator {
	o := options{
		logger:        slog.Default(),
		policy:        PolicyCacheAndNetwork,
		maxConcurrent: DefaultMaxConcurrentFetches,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrent < 1 {
		o.maxConcurrent = DefaultMaxConcurrentFetches
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	if o.tokens == nil {
		o.tokens = UUIDv7Generator{}
	}

	c := &Coordinator{
		fetcher:       fetcher,
		records:       store,
		idFields:      o.idFields,
		logger:        o.logger,
		metrics:       o.metrics,
		policy:        o.policy,
		maxConcurrent: o.maxConcurrent,
		sem:           semaphore.NewWeighted(int64(o.maxConcurrent)),
		timeout:       o.timeout,
		clock:         o.clock,
		tokens:        o.tokens,
		queue:         newEventQueue(),
		flights:       make(map[string]*flight),
		states:        make(map[string]ir.RequestState),
	}
	c.cache = relcache.New(
		relcache.WithMetrics(o.metrics),
		relcache.WithOnPut(func(key keys.Key, e relcache.Entry) {
			c.logger.Debug("cache entry replaced",
				"key", string(key),
				"version", e.Version,
				"ids", len(e.IDs),
				"total", e.Total)
		}),
	)
	c.composer = view.New(c.cache, store, c, view.WithLogger(o.logger))
	if obs, ok := store.(records.Observable); ok {
		obs.OnChange(c.recordsChanged)
		c.observed = true
	}
	return c
}

// recordsChanged queues a record store write for the Run loop.
func (c *Coordinator) recordsChanged(resource string, ids []ir.ID) {
	c.queue.Enqueue(event{kind: eventRecords, resource: resource, ids: slices.Clone(ids)})
}

// markOwnWrite records an upsert made while settling; its change event
// is then skipped, as the settlement already notified for those ids.
func (c *Coordinator) markOwnWrite(resource string, ids []ir.ID) {
	if c.observed {
		c.ownWrites = append(c.ownWrites, writeMark(resource, ids))
	}
}

// takeOwnWrite reports whether a change event matches a pending own write,
// consuming the mark.
func (c *Coordinator) takeOwnWrite(resource string, ids []ir.ID) bool {
	mark := writeMark(resource, ids)
	i := slices.Index(c.ownWrites, mark)
	if i < 0 {
		return false
	}
	c.ownWrites = slices.Delete(c.ownWrites, i, i+1)
	return true
}

// writeMark identifies a write by resource and the set of ids written.
func writeMark(resource string, ids []ir.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(ir.MarshalCanonical(id.Value()))
	}
	slices.Sort(parts)
	return resource + "\x00" + strings.Join(parts, "\x00")
}

// Cache returns the relation cache.
func (c *Coordinator) Cache() *relcache.Cache {
	return c.cache
}

// Composer returns the view composer.
func (c *Coordinator) Composer() *view.Composer {
	return c.composer
}

// Clock returns the settlement clock.
func (c *Coordinator) Clock() *Clock {
	return c.clock
}

// Request returns the current view of q immediately and makes sure a fetch
// is issued, unless one for the same descriptor is in flight or the fetch
// policy is satisfied. Errors are reported in View.Error, never returned.
func (c *Coordinator) Request(ctx context.Context, q ir.ReferenceQuery) view.View {
	v, _ := c.request(ctx, q)
	return v
}

// Fetch is Request followed by waiting for the fetch to settle. It returns
// the settled view. The error is only ever ctx's: cancelling abandons the
// wait, not the fetch. Transport failures land in View.Error.
func (c *Coordinator) Fetch(ctx context.Context, q ir.ReferenceQuery) (view.View, error) {
	v, f := c.request(ctx, q)
	if f == nil {
		return v, nil
	}
	select {
	case <-f.done:
	case <-ctx.Done():
		return view.View{}, ctx.Err()
	}
	return c.View(ctx, q), nil
}

// Wait blocks until the fetch in flight for q, if any, has settled.
func (c *Coordinator) Wait(ctx context.Context, q ir.ReferenceQuery) error {
	c.mu.Lock()
	f, ok := c.flights[keys.Descriptor(q)]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View composes the current view of q without issuing a fetch.
func (c *Coordinator) View(ctx context.Context, q ir.ReferenceQuery) view.View {
	if err := q.Validate(); err != nil {
		return invalidView(q, err)
	}
	return c.composer.Compose(ctx, q.Resource, keys.ForQuery(q), c.RequestState(keys.Descriptor(q)))
}

// Watch subscribes fn to every recomposition of q's view and issues the
// request. It returns the initial view and a func that unsubscribes.
// fn runs on the settlement goroutine and must not wait for settlement.
func (c *Coordinator) Watch(ctx context.Context, q ir.ReferenceQuery, fn func(view.View)) (view.View, func()) {
	if err := q.Validate(); err != nil {
		return invalidView(q, err), func() {}
	}
	cancel := c.composer.Subscribe(view.WatchFor(q), fn)
	return c.Request(ctx, q), cancel
}

// Forget drops the request state of q's descriptor so the next request
// starts from idle. It returns false, and does nothing, while a fetch for
// the descriptor is in flight. The relation cache is not touched.
func (c *Coordinator) Forget(q ir.ReferenceQuery) bool {
	desc := keys.Descriptor(q)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.flights[desc]; ok {
		return false
	}
	delete(c.states, desc)
	return true
}

// State returns the request state of q's descriptor.
func (c *Coordinator) State(q ir.ReferenceQuery) ir.RequestState {
	return c.RequestState(keys.Descriptor(q))
}

// RequestState implements view.StateSource.
func (c *Coordinator) RequestState(descriptor string) ir.RequestState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[descriptor]
}

// InFlight lists in-flight fetches ordered by start time, then descriptor.
func (c *Coordinator) InFlight() []FlightInfo {
	c.mu.Lock()
	out := make([]FlightInfo, 0, len(c.flights))
	for _, f := range c.flights {
		out = append(out, FlightInfo{
			Resource:   f.query.Resource,
			Key:        f.key,
			Descriptor: f.descriptor,
			Token:      f.token,
			Started:    f.started,
		})
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b FlightInfo) int {
		if n := a.Started.Compare(b.Started); n != 0 {
			return n
		}
		return strings.Compare(a.Descriptor, b.Descriptor)
	})
	return out
}

// request resolves q and returns its view together with the flight the
// caller may wait on, or nil when no fetch is pending.
func (c *Coordinator) request(ctx context.Context, q ir.ReferenceQuery) (view.View, *flight) {
	if err := q.Validate(); err != nil {
		c.logger.Debug("invalid query", "resource", q.Resource, "error", err)
		return invalidView(q, err), nil
	}
	key := keys.ForQuery(q)
	desc := keys.Descriptor(q)

	c.mu.Lock()
	state := c.states[desc]
	f, inFlight := c.flights[desc]
	switch {
	case inFlight:
		c.mu.Unlock()
		c.metrics.FetchShared(q.Resource)
		c.logger.Debug("joined in-flight fetch",
			"fetch", f.token,
			"resource", q.Resource,
			"descriptor", shortID(desc))
	case c.policy == PolicyCacheFirst && state.Status == ir.StatusLoaded:
		c.mu.Unlock()
		f = nil
		c.logger.Debug("served from cache",
			"resource", q.Resource,
			"descriptor", shortID(desc))
	default:
		f = &flight{
			query:      q,
			key:        key,
			descriptor: desc,
			token:      c.tokens.Generate(),
			started:    time.Now(),
			done:       make(chan struct{}),
		}
		state.Status = ir.StatusLoading
		state.Loading = true
		state.Err = nil
		c.states[desc] = state
		c.flights[desc] = f
		c.mu.Unlock()
		c.launch(ctx, f)
	}

	entry, ok := c.cache.Get(key)
	return c.composer.ComposeEntry(ctx, q.Resource, entry, ok, state), f
}

// launch reports the loading transition to the writer and starts the
// flight. The flight keeps ctx's values but not its cancellation.
func (c *Coordinator) launch(ctx context.Context, f *flight) {
	c.metrics.FetchStarted(f.query.Resource)
	c.logger.Debug("fetch started",
		"fetch", f.token,
		"resource", f.query.Resource,
		"target", f.query.Target,
		"id", f.query.ID.String(),
		"descriptor", shortID(f.descriptor))

	c.queue.Enqueue(event{kind: eventStarted, flight: f})
	go c.fly(context.WithoutCancel(ctx), f)
}

// fly runs the transport call and hands the outcome to the writer.
func (c *Coordinator) fly(ctx context.Context, f *flight) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ev := event{kind: eventSettled, flight: f}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		ev.err = err
	} else {
		ev.result, ev.err = c.fetch(ctx, f)
		c.sem.Release(1)
	}
	ev.elapsed = time.Since(f.started)

	if !c.queue.Enqueue(ev) {
		c.abandon(f, ev.elapsed)
	}
}

func (c *Coordinator) fetch(ctx context.Context, f *flight) (res ir.FetchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panicked: %v", r)
		}
	}()
	return c.fetcher.FetchManyByReference(ctx, f.query.Resource, f.query.Params())
}

// Run applies settlements until ctx is done. It must be running for any
// fetch to settle. Run may be called once; when it returns, pending and
// later fetches settle as STOPPED errors.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("coordinator: Run called more than once")
	}
	c.logger.Info("coordinator started",
		"policy", string(c.policy),
		"max_concurrent_fetches", c.maxConcurrent)
	defer c.stop()

	for {
		for {
			ev, ok := c.queue.TryDequeue()
			if !ok {
				break
			}
			c.apply(ctx, ev)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-c.queue.Wait():
			if !ok {
				return nil
			}
		}
	}
}

// Sync waits until every event queued before the call has been applied,
// including the subscriber callbacks it triggers.
func (c *Coordinator) Sync(ctx context.Context) error {
	ack := make(chan struct{})
	if !c.queue.Enqueue(event{kind: eventBarrier, ack: ack}) {
		return errors.New("coordinator: stopped")
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) stop() {
	rest := c.queue.Close()
	for _, ev := range rest {
		switch ev.kind {
		case eventSettled:
			c.abandon(ev.flight, ev.elapsed)
		case eventBarrier:
			close(ev.ack)
		}
	}
	c.logger.Info("coordinator stopped",
		"abandoned", len(rest),
		"watchers", c.composer.Subscribers())
}

// abandon settles f as stopped without touching the cache or the store.
func (c *Coordinator) abandon(f *flight, elapsed time.Duration) {
	err := newRequestError(CodeStopped, f, nil, "coordinator stopped before settlement")
	c.mu.Lock()
	state := c.states[f.descriptor]
	c.states[f.descriptor] = ir.RequestState{
		Status: ir.StatusError,
		Loaded: true,
		Err:    err,
		Seq:    state.Seq,
	}
	delete(c.flights, f.descriptor)
	c.mu.Unlock()
	close(f.done)
	c.metrics.FetchFinished(f.query.Resource, elapsed, true)
}

func (c *Coordinator) apply(ctx context.Context, ev event) {
	switch ev.kind {
	case eventStarted:
		c.composer.Notify(ctx, view.Change{Descriptor: ev.flight.descriptor})
	case eventSettled:
		c.settle(ctx, ev)
	case eventBarrier:
		close(ev.ack)
	case eventRecords:
		if c.takeOwnWrite(ev.resource, ev.ids) {
			return
		}
		c.composer.Notify(ctx, view.Change{Resource: ev.resource, IDs: ev.ids})
	}
}

func invalidView(q ir.ReferenceQuery, err error) view.View {
	return view.View{
		Data: map[ir.ID]ir.Record{},
		IDs:  []ir.ID{},
		Error: &RequestError{
			Code:     CodeInvalidQuery,
			Message:  "invalid query",
			Resource: q.Resource,
			Cause:    err,
		},
	}
}

// shortID abbreviates descriptor ids in logs.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
