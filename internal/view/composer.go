package view

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keys"
	"github.com/roach88/relq/internal/records"
	"github.com/roach88/relq/internal/relcache"
)

// StateSource reports the request state of a fetch descriptor.
type StateSource interface {
	RequestState(descriptor string) ir.RequestState
}

// Watch identifies what a subscriber observes: one descriptor's state, the
// cache entry of its key, and the records of its resource.
type Watch struct {
	Resource   string
	Key        keys.Key
	Descriptor string
}

// WatchFor returns the watch of a reference query.
func WatchFor(q ir.ReferenceQuery) Watch {
	return Watch{Resource: q.Resource, Key: keys.ForQuery(q), Descriptor: keys.Descriptor(q)}
}

// Change describes one settlement or state transition. Zero fields do not
// match anything.
type Change struct {
	Resource   string
	IDs        []ir.ID
	Key        keys.Key
	Descriptor string
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = l
	}
}

type subscription struct {
	id    uint64
	watch Watch
	fn    func(View)
}

// Composer builds views and notifies subscribers.
type Composer struct {
	cache   *relcache.Cache
	records records.Store
	states  StateSource
	logger  *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
}

// New creates a composer reading from cache, store and states.
func New(cache *relcache.Cache, store records.Store, states StateSource, opts ...Option) *Composer {
	c := &Composer{
		cache:   cache,
		records: store,
		states:  states,
		logger:  slog.Default(),
		subs:    make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the view of the relation at key under state.
func (c *Composer) Compose(ctx context.Context, resource string, key keys.Key, state ir.RequestState) View {
	entry, ok := c.cache.Peek(key)
	return c.ComposeEntry(ctx, resource, entry, ok, state)
}

// ComposeEntry builds a view from an entry the caller already read.
//
// ids and total come from entry (empty and nil when ok is false); data
// holds the records of those ids found in the store. Error, Loading and
// Loaded mirror state. A failed store read leaves Data empty and is
// reported in Error when the state carries no error of its own.
func (c *Composer) ComposeEntry(ctx context.Context, resource string, entry relcache.Entry, ok bool, state ir.RequestState) View {
	v := View{
		Data:    map[ir.ID]ir.Record{},
		IDs:     []ir.ID{},
		Error:   state.Err,
		Loading: state.Loading,
		Loaded:  state.Loaded,
	}
	if !ok {
		return v
	}
	total := entry.Total
	v.Total = &total
	if entry.IDs != nil {
		v.IDs = entry.IDs
	}

	if len(entry.IDs) == 0 {
		return v
	}
	data, err := c.records.GetMany(ctx, resource, entry.IDs)
	if err != nil {
		c.logger.Warn("compose: record store read failed",
			"resource", resource,
			"error", err)
		if v.Error == nil {
			v.Error = fmt.Errorf("read %s records: %w", resource, err)
		}
		return v
	}
	v.Data = data
	return v
}

// ComposeWatch builds the view of w with its current request state.
func (c *Composer) ComposeWatch(ctx context.Context, w Watch) View {
	return c.Compose(ctx, w.Resource, w.Key, c.states.RequestState(w.Descriptor))
}

// Subscribe registers fn to receive the recomposed view of w whenever a
// matching Change is notified. Callbacks run on the notifying goroutine and
// must not wait for settlement. The returned func unsubscribes.
func (c *Composer) Subscribe(w Watch, fn func(View)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = &subscription{id: id, watch: w, fn: fn}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (c *Composer) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Notify recomposes and delivers the view of every subscription matching
// ch, each at most once, in subscription order.
//
// A watch matches on its descriptor, on its key, or when ch carries record
// ids of its resource that appear in its current cache entry.
func (c *Composer) Notify(ctx context.Context, ch Change) {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	slices.SortFunc(subs, func(a, b *subscription) int {
		return cmp.Compare(a.id, b.id)
	})

	for _, s := range subs {
		if !c.matches(s.watch, ch) {
			continue
		}
		s.fn(c.ComposeWatch(ctx, s.watch))
	}
}

func (c *Composer) matches(w Watch, ch Change) bool {
	if ch.Descriptor != "" && w.Descriptor == ch.Descriptor {
		return true
	}
	if ch.Key != "" && w.Key == ch.Key {
		return true
	}
	if ch.Resource == "" || ch.Resource != w.Resource || len(ch.IDs) == 0 {
		return false
	}
	entry, ok := c.cache.Peek(w.Key)
	if !ok {
		return false
	}
	changed := make(map[ir.ID]struct{}, len(ch.IDs))
	for _, id := range ch.IDs {
		changed[id] = struct{}{}
	}
	for _, id := range entry.IDs {
		if _, ok := changed[id]; ok {
			return true
		}
	}
	return false
}
