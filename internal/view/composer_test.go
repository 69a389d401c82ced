package view

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keys"
	"github.com/roach88/relq/internal/records"
	"github.com/roach88/relq/internal/relcache"
)

type stateMap struct {
	mu     sync.Mutex
	states map[string]ir.RequestState
}

func (s *stateMap) RequestState(descriptor string) ir.RequestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[descriptor]
}

func (s *stateMap) set(descriptor string, st ir.RequestState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[descriptor] = st
}

type failingStore struct {
	records.Store
}

func (failingStore) GetMany(context.Context, string, []ir.ID) (map[ir.ID]ir.Record, error) {
	return nil, errors.New("disk on fire")
}

func postComments(id int64, page int) ir.ReferenceQuery {
	return ir.ReferenceQuery{
		Resource:            "comments",
		Target:              "post_id",
		ID:                  ir.IntID(id),
		Pagination:          ir.Pagination{Page: page, PerPage: 2},
		ReferencingResource: "posts",
	}
}

func newComposer(t *testing.T) (*Composer, *relcache.Cache, *records.Memory, *stateMap) {
	t.Helper()
	cache := relcache.New()
	store := records.NewMemory(nil)
	states := &stateMap{states: map[string]ir.RequestState{}}
	return New(cache, store, states), cache, store, states
}

func seedComments(t *testing.T, store records.Store, ids ...int64) {
	t.Helper()
	recs := make([]ir.Record, len(ids))
	for i, id := range ids {
		recs[i] = ir.Record{"id": id, "post_id": int64(1)}
	}
	require.NoError(t, store.UpsertMany(context.Background(), "comments", recs))
}

func TestComposeNoEntry(t *testing.T) {
	c, _, _, _ := newComposer(t)
	q := postComments(1, 1)

	v := c.Compose(context.Background(), q.Resource, keys.ForQuery(q), ir.RequestState{Status: ir.StatusLoading, Loading: true})
	assert.Empty(t, v.IDs)
	assert.NotNil(t, v.IDs)
	assert.Empty(t, v.Data)
	assert.Nil(t, v.Total)
	assert.True(t, v.Loading)
	assert.False(t, v.Loaded)
}

func TestComposeJoinsEntryAndRecords(t *testing.T) {
	c, cache, store, _ := newComposer(t)
	q := postComments(1, 1)
	seedComments(t, store, 10, 11)
	cache.Put(keys.ForQuery(q), relcache.Entry{IDs: []ir.ID{ir.IntID(11), ir.IntID(10), ir.IntID(12)}, Total: 5, Version: 1})

	v := c.Compose(context.Background(), q.Resource, keys.ForQuery(q), ir.RequestState{Status: ir.StatusLoaded, Loaded: true})
	assert.Equal(t, []ir.ID{ir.IntID(11), ir.IntID(10), ir.IntID(12)}, v.IDs)
	require.NotNil(t, v.Total)
	assert.Equal(t, 5, *v.Total)
	assert.Len(t, v.Data, 2, "only ids present in the store appear in data")
	assert.Equal(t, []ir.ID{ir.IntID(12)}, v.Missing())
	assert.True(t, v.Loaded)
	assert.NoError(t, v.Error)
}

func TestComposeEmptyEntryHasZeroTotal(t *testing.T) {
	c, cache, _, _ := newComposer(t)
	q := postComments(1, 1)
	cache.Put(keys.ForQuery(q), relcache.Entry{Total: 0, Version: 1})

	v := c.Compose(context.Background(), q.Resource, keys.ForQuery(q), ir.RequestState{Loaded: true})
	require.NotNil(t, v.Total)
	assert.Equal(t, 0, *v.Total)
	assert.NotNil(t, v.IDs)
}

func TestComposeStoreFailure(t *testing.T) {
	cache := relcache.New()
	c := New(cache, failingStore{}, &stateMap{states: map[string]ir.RequestState{}})
	q := postComments(1, 1)
	cache.Put(keys.ForQuery(q), relcache.Entry{IDs: []ir.ID{ir.IntID(1)}, Total: 1})

	v := c.Compose(context.Background(), q.Resource, keys.ForQuery(q), ir.RequestState{Loaded: true})
	require.Error(t, v.Error)
	assert.Contains(t, v.Error.Error(), "disk on fire")
	assert.Empty(t, v.Data)
	assert.Equal(t, []ir.ID{ir.IntID(1)}, v.IDs)

	stateErr := errors.New("transport down")
	v = c.Compose(context.Background(), q.Resource, keys.ForQuery(q), ir.RequestState{Loaded: true, Err: stateErr})
	assert.Equal(t, stateErr, v.Error, "the request error wins over the read error")
}

func TestComposeWatchUsesState(t *testing.T) {
	c, _, _, states := newComposer(t)
	q := postComments(1, 1)
	w := WatchFor(q)
	states.set(w.Descriptor, ir.RequestState{Status: ir.StatusLoading, Loading: true})

	v := c.ComposeWatch(context.Background(), w)
	assert.True(t, v.Loading)
}

func TestNotifyByDescriptor(t *testing.T) {
	c, _, _, _ := newComposer(t)
	page1 := postComments(1, 1)
	page2 := postComments(1, 2)

	var got []string
	c.Subscribe(WatchFor(page1), func(View) { got = append(got, "page1") })
	c.Subscribe(WatchFor(page2), func(View) { got = append(got, "page2") })

	c.Notify(context.Background(), Change{Descriptor: WatchFor(page2).Descriptor})
	assert.Equal(t, []string{"page2"}, got)
}

func TestNotifyByKeyReachesEveryPage(t *testing.T) {
	c, _, _, _ := newComposer(t)
	page1 := postComments(1, 1)
	page2 := postComments(1, 2)
	other := postComments(2, 1)

	var got []string
	c.Subscribe(WatchFor(page1), func(View) { got = append(got, "page1") })
	c.Subscribe(WatchFor(page2), func(View) { got = append(got, "page2") })
	c.Subscribe(WatchFor(other), func(View) { got = append(got, "other") })

	c.Notify(context.Background(), Change{Key: keys.ForQuery(page1), Descriptor: WatchFor(page1).Descriptor})
	assert.Equal(t, []string{"page1", "page2"}, got, "each watch fires once, in subscription order")
}

func TestNotifyByRecordIDs(t *testing.T) {
	c, cache, store, _ := newComposer(t)
	q := postComments(1, 1)
	seedComments(t, store, 10, 11)
	cache.Put(keys.ForQuery(q), relcache.Entry{IDs: []ir.ID{ir.IntID(10), ir.IntID(11)}, Total: 2})

	var views []View
	c.Subscribe(WatchFor(q), func(v View) { views = append(views, v) })

	c.Notify(context.Background(), Change{Resource: "comments", IDs: []ir.ID{ir.IntID(99)}})
	assert.Empty(t, views, "ids outside the entry do not match")

	c.Notify(context.Background(), Change{Resource: "reviews", IDs: []ir.ID{ir.IntID(10)}})
	assert.Empty(t, views, "same id in another resource does not match")

	c.Notify(context.Background(), Change{Resource: "comments", IDs: []ir.ID{ir.StringID("10")}})
	assert.Empty(t, views, "string and int ids are distinct")

	require.NoError(t, store.UpsertMany(context.Background(), "comments", []ir.Record{{"id": int64(10), "body": "edited"}}))
	c.Notify(context.Background(), Change{Resource: "comments", IDs: []ir.ID{ir.IntID(10)}})
	require.Len(t, views, 1)
	assert.Equal(t, "edited", views[0].Data[ir.IntID(10)]["body"])
}

func TestUnsubscribe(t *testing.T) {
	c, _, _, _ := newComposer(t)
	q := postComments(1, 1)

	calls := 0
	cancel := c.Subscribe(WatchFor(q), func(View) { calls++ })
	assert.Equal(t, 1, c.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, c.Subscribers())

	c.Notify(context.Background(), Change{Descriptor: WatchFor(q).Descriptor})
	assert.Equal(t, 0, calls)
}

func TestZeroChangeMatchesNothing(t *testing.T) {
	c, _, _, _ := newComposer(t)
	calls := 0
	c.Subscribe(WatchFor(postComments(1, 1)), func(View) { calls++ })
	c.Notify(context.Background(), Change{})
	assert.Equal(t, 0, calls)
}
