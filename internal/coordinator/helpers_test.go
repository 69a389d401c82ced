package coordinator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/metrics"
	"github.com/roach88/relq/internal/records"
	"github.com/roach88/relq/internal/testutil"
)

const (
	waitFor  = 5 * time.Second
	waitTick = time.Millisecond
)

// syncBuffer is a log sink safe to read while the writer logs.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	c       *Coordinator
	fetcher *testutil.GatedFetcher
	store   *records.Memory
	metrics *metrics.Metrics
	logs    *syncBuffer
	ctx     context.Context
}

// newTestEnv builds a coordinator over a gated fetcher and a memory store
// and runs it until the test ends.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := newStoppedEnv(t, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return env
}

// newStoppedEnv is newTestEnv without Run.
func newStoppedEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	m, err := metrics.New(nil)
	require.NoError(t, err)

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env := &testEnv{
		fetcher: testutil.NewGatedFetcher(),
		store:   records.NewMemory(nil),
		metrics: m,
		logs:    logs,
		ctx:     context.Background(),
	}
	base := []Option{
		WithLogger(logger),
		WithMetrics(m),
		WithTokenGenerator(testutil.NewSequenceGenerator("fetch")),
	}
	env.c = New(env.fetcher, env.store, append(base, opts...)...)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	env.ctx = ctx
	t.Cleanup(func() { env.fetcher.FailAll(errors.New("test finished")) })
	return env
}

// waitPending blocks until n transport calls are held.
func (e *testEnv) waitPending(t *testing.T, n int) {
	t.Helper()
	require.NoError(t, e.fetcher.WaitPending(e.ctx, n))
}

// waitSettled blocks until q's descriptor is no longer loading.
func (e *testEnv) waitSettled(t *testing.T, q ir.ReferenceQuery) ir.RequestState {
	t.Helper()
	require.Eventually(t, func() bool {
		return !e.c.State(q).Loading
	}, waitFor, waitTick)
	return e.c.State(q)
}

// release completes q's held call with records and total.
func (e *testEnv) release(t *testing.T, q ir.ReferenceQuery, total int, recs ...ir.Record) {
	t.Helper()
	require.NoError(t, e.fetcher.ReleaseDescriptor(ir.DescriptorID(q.Resource, q.Params()), ir.FetchResult{Data: recs, Total: total}))
}

// load requests q, releases the call and waits for settlement.
func (e *testEnv) load(t *testing.T, q ir.ReferenceQuery, total int, recs ...ir.Record) ir.RequestState {
	t.Helper()
	e.c.Request(e.ctx, q)
	require.Eventually(t, func() bool {
		return e.fetcher.Pending() > 0
	}, waitFor, waitTick)
	e.release(t, q, total, recs...)
	return e.waitSettled(t, q)
}

func commentsOf(post int64, page int) ir.ReferenceQuery {
	return ir.ReferenceQuery{
		Resource:            "comments",
		Target:              "post_id",
		ID:                  ir.IntID(post),
		Pagination:          ir.Pagination{Page: page, PerPage: 2},
		Sort:                ir.Sort{Field: "id", Order: ir.OrderAsc},
		ReferencingResource: "posts",
	}
}

func comment(id, post int64) ir.Record {
	return ir.Record{"id": id, "post_id": post, "body": "comment"}
}
