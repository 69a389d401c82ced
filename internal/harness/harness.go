package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/relq/internal/coordinator"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/records"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
	"github.com/roach88/relq/internal/transport"
	"github.com/roach88/relq/internal/view"
)

// DefaultStepTimeout bounds every wait inside a step.
const DefaultStepTimeout = 5 * time.Second

var errScenarioDone = errors.New("scenario finished")

type options struct {
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a run.
type Option func(*options)

// WithLogger sets the coordinator logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStepTimeout bounds every wait inside a step.
func WithStepTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	queries  map[string]ir.ReferenceQuery
	idFields ir.IDFields

	coord   *coordinator.Coordinator
	fetcher *testutil.GatedFetcher
	dataset transport.Fetcher
	records records.Store
	timeout time.Duration

	result   *Result
	unwatch  []func()
	mu       sync.Mutex
	step     int
	notes    []TraceEvent
	notified map[string]int
}

// Run executes a scenario and returns its result.
//
// The dataset and a sqlite record store live in fresh in-memory databases
// so runs are isolated. Run returns an error only when the scenario could
// not be executed; failed expectations are reported in Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Harness{
		scenario: scenario,
		queries:  make(map[string]ir.ReferenceQuery, len(scenario.Queries)),
		idFields: ir.IDFields(scenario.IDFields),
		fetcher:  testutil.NewGatedFetcher(),
		timeout:  o.timeout,
		result:   NewResult(),
		notified: make(map[string]int),
	}
	for name, spec := range scenario.Queries {
		q, err := spec.Query()
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
		h.queries[name] = q
	}

	ds, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset store: %w", err)
	}
	defer ds.Close()
	if err := h.seed(ctx, ds); err != nil {
		return nil, err
	}
	h.dataset = transport.NewLocal(ds, h.idFields)

	switch scenario.RecordStore {
	case "sqlite":
		rs, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create record store: %w", err)
		}
		defer rs.Close()
		h.records = rs.Records(h.idFields)
	default:
		h.records = records.NewMemory(h.idFields)
	}

	policy, err := coordinator.ParsePolicy(scenario.Policy)
	if err != nil {
		return nil, err
	}
	h.coord = coordinator.New(h.fetcher, h.records,
		coordinator.WithLogger(o.logger),
		coordinator.WithPolicy(policy),
		coordinator.WithIDFields(h.idFields),
		coordinator.WithTokenGenerator(testutil.NewSequenceGenerator(scenario.Name)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(runCtx) }()
	defer func() {
		for _, fn := range h.unwatch {
			fn()
		}
		h.fetcher.FailAll(errScenarioDone)
		cancel()
		<-done
	}()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) seed(ctx context.Context, ds *store.Store) error {
	resources := make([]string, 0, len(h.scenario.Dataset))
	for r := range h.scenario.Dataset {
		resources = append(resources, r)
	}
	slices.Sort(resources)
	for _, r := range resources {
		if _, err := ds.Seed(ctx, r, h.idFields.For(r), h.scenario.Dataset[r]); err != nil {
			return fmt.Errorf("seed %s: %w", r, err)
		}
	}
	return nil
}

// execute runs one step, records it, then waits for the coordinator to
// apply everything the step caused and records the notifications.
func (h *Harness) execute(ctx context.Context, n int, step Step) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.Lock()
	h.step = n
	h.mu.Unlock()

	op, arg := step.Op()
	ev := TraceEvent{Step: n, Op: op, Query: arg}
	q := h.queries[arg]

	var err error
	switch op {
	case OpRequest:
		ev.View = Snapshot(h.coord.Request(ctx, q))
	case OpFetch:
		var v view.View
		v, err = h.fetch(ctx, q)
		ev.View = Snapshot(v)
	case OpRelease:
		ev.Note, err = h.release(ctx, q, step)
		ev.View = Snapshot(h.coord.View(ctx, q))
	case OpFail:
		err = h.fail(ctx, q, step)
		ev.View = Snapshot(h.coord.View(ctx, q))
	case OpWatch:
		name := arg
		v, unwatch := h.coord.Watch(ctx, q, func(v view.View) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notified[name]++
			h.notes = append(h.notes, TraceEvent{Step: h.step, Op: OpNotify, Query: name, View: Snapshot(v)})
		})
		h.unwatch = append(h.unwatch, unwatch)
		ev.View = Snapshot(v)
	case OpForget:
		ev.Note = fmt.Sprintf("forgotten=%t", h.coord.Forget(q))
	case OpExpect:
		v := h.coord.View(ctx, q)
		for _, msg := range compareView(arg, step.View, v) {
			h.result.AddError(fmt.Sprintf("step %d: %s", n, msg))
		}
		ev.View = Snapshot(v)
	case OpUpsert:
		ev.Note, err = h.upsert(ctx, arg, step.Records)
	default:
		return fmt.Errorf("unknown op")
	}
	if err != nil {
		return err
	}

	if arg != "" && op != OpUpsert {
		st := h.coord.State(q)
		ev.Status = st.Status.String()
		ev.Seq = st.Seq
	}

	h.result.Trace = append(h.result.Trace, ev)
	if err := h.coord.Sync(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	h.flushNotes()
	return nil
}

// fetch runs Fetch while answering its transport call from the dataset.
// No call is answered when the policy serves the fetch from cache.
func (h *Harness) fetch(ctx context.Context, q ir.ReferenceQuery) (view.View, error) {
	desc := ir.DescriptorID(q.Resource, q.Params())
	fetched := make(chan struct{})

	var v view.View
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(fetched)
		var err error
		v, err = h.coord.Fetch(gctx, q)
		return err
	})
	g.Go(func() error {
		wctx, cancel := context.WithCancel(gctx)
		defer cancel()
		go func() {
			select {
			case <-fetched:
				cancel()
			case <-wctx.Done():
			}
		}()
		if err := h.fetcher.WaitDescriptor(wctx, desc); err != nil {
			select {
			case <-fetched:
				return nil
			default:
				return err
			}
		}
		res, err := h.dataset.FetchManyByReference(gctx, q.Resource, q.Params())
		if err != nil {
			return h.fetcher.FailDescriptor(desc, err)
		}
		return h.fetcher.ReleaseDescriptor(desc, res)
	})
	if err := g.Wait(); err != nil {
		return view.View{}, err
	}
	return v, nil
}

// release answers q's held call and waits for its settlement.
func (h *Harness) release(ctx context.Context, q ir.ReferenceQuery, step Step) (string, error) {
	desc := ir.DescriptorID(q.Resource, q.Params())
	if err := h.fetcher.WaitDescriptor(ctx, desc); err != nil {
		return "", err
	}

	res := ir.FetchResult{Data: step.Data}
	note := "explicit"
	if step.Data == nil && step.Total == nil {
		var err error
		res, err = h.dataset.FetchManyByReference(ctx, q.Resource, q.Params())
		if err != nil {
			return "", fmt.Errorf("answer from dataset: %w", err)
		}
		note = "dataset"
	}
	if step.Total != nil {
		res.Total = *step.Total
	}
	note = fmt.Sprintf("%s records=%d total=%d", note, len(res.Data), res.Total)

	if err := h.fetcher.ReleaseDescriptor(desc, res); err != nil {
		return "", err
	}
	return note, h.coord.Wait(ctx, q)
}

// fail fails q's held call and waits for its settlement.
func (h *Harness) fail(ctx context.Context, q ir.ReferenceQuery, step Step) error {
	desc := ir.DescriptorID(q.Resource, q.Params())
	if err := h.fetcher.WaitDescriptor(ctx, desc); err != nil {
		return err
	}
	err := transport.NewError(q.Resource, q.Params(), step.Temporary, nil, "%s", step.Error)
	if err := h.fetcher.FailDescriptor(desc, err); err != nil {
		return err
	}
	return h.coord.Wait(ctx, q)
}

// upsert writes records as an outside writer.
func (h *Harness) upsert(ctx context.Context, resource string, recs []ir.Record) (string, error) {
	field := h.idFields.For(resource)
	for i, rec := range recs {
		if _, err := rec.ID(field); err != nil {
			return "", fmt.Errorf("upsert %s[%d]: %w", resource, i, err)
		}
	}
	// The coordinator observes the store and notifies watchers.
	if err := h.records.UpsertMany(ctx, resource, recs); err != nil {
		return "", err
	}
	return fmt.Sprintf("records=%d", len(recs)), nil
}

func (h *Harness) flushNotes() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, h.notes...)
	h.notes = nil
}
