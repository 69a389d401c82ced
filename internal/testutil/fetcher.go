// Package testutil provides fakes for exercising the coordinator without a
// real transport.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/relq/internal/ir"
)

// Call is one recorded transport call.
type Call struct {
	Resource   string
	Params     ir.ReferenceParams
	Descriptor string
}

type outcome struct {
	res ir.FetchResult
	err error
}

type gate struct {
	call  Call
	reply chan outcome
}

// GatedFetcher is a transport that holds every call until the test
// releases or fails it, and counts calls.
//
// Thread-safety: all methods are safe for concurrent use.
type GatedFetcher struct {
	mu      sync.Mutex
	calls   []Call
	pending []*gate
	changed chan struct{}
}

// NewGatedFetcher creates a fetcher with no pending calls.
func NewGatedFetcher() *GatedFetcher {
	return &GatedFetcher{changed: make(chan struct{})}
}

// FetchManyByReference records the call and blocks until it is released,
// failed, or ctx is done.
func (g *GatedFetcher) FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error) {
	gt := &gate{
		call: Call{
			Resource:   resource,
			Params:     params,
			Descriptor: ir.DescriptorID(resource, params),
		},
		reply: make(chan outcome, 1),
	}

	g.mu.Lock()
	g.calls = append(g.calls, gt.call)
	g.pending = append(g.pending, gt)
	g.broadcastLocked()
	g.mu.Unlock()

	select {
	case out := <-gt.reply:
		return out.res, out.err
	case <-ctx.Done():
		g.mu.Lock()
		g.removeLocked(gt)
		g.mu.Unlock()
		return ir.FetchResult{}, ctx.Err()
	}
}

// Calls returns all recorded calls in arrival order.
func (g *GatedFetcher) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (g *GatedFetcher) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Pending returns the number of calls waiting for release.
func (g *GatedFetcher) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// WaitPending blocks until at least n calls are pending or ctx is done.
func (g *GatedFetcher) WaitPending(ctx context.Context, n int) error {
	return g.wait(ctx, func() bool { return len(g.pending) >= n },
		fmt.Sprintf("%d pending calls", n))
}

// WaitDescriptor blocks until a call for descriptor is pending or ctx is
// done.
func (g *GatedFetcher) WaitDescriptor(ctx context.Context, descriptor string) error {
	return g.wait(ctx, func() bool {
		for _, gt := range g.pending {
			if gt.call.Descriptor == descriptor {
				return true
			}
		}
		return false
	}, "a call for descriptor "+descriptor)
}

// wait blocks until cond, evaluated under the lock, holds.
func (g *GatedFetcher) wait(ctx context.Context, cond func() bool, what string) error {
	for {
		g.mu.Lock()
		if cond() {
			g.mu.Unlock()
			return nil
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s (%d pending): %w", what, g.Pending(), ctx.Err())
		}
	}
}

// Release completes the oldest pending call with res.
func (g *GatedFetcher) Release(res ir.FetchResult) error {
	return g.ReleaseDescriptor("", res)
}

// ReleaseDescriptor completes the oldest pending call for descriptor with
// res. An empty descriptor matches any call.
func (g *GatedFetcher) ReleaseDescriptor(descriptor string, res ir.FetchResult) error {
	return g.complete(descriptor, outcome{res: res})
}

// Fail completes the oldest pending call with err.
func (g *GatedFetcher) Fail(err error) error {
	return g.FailDescriptor("", err)
}

// FailDescriptor completes the oldest pending call for descriptor with err.
func (g *GatedFetcher) FailDescriptor(descriptor string, err error) error {
	return g.complete(descriptor, outcome{err: err})
}

// FailAll completes every pending call with err and returns how many
// there were.
func (g *GatedFetcher) FailAll(err error) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.pending)
	for _, gt := range g.pending {
		gt.reply <- outcome{err: err}
	}
	g.pending = nil
	if n > 0 {
		g.broadcastLocked()
	}
	return n
}

func (g *GatedFetcher) complete(descriptor string, out outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, gt := range g.pending {
		if descriptor == "" || gt.call.Descriptor == descriptor {
			g.removeLocked(gt)
			gt.reply <- out
			return nil
		}
	}
	if descriptor == "" {
		return fmt.Errorf("no pending call")
	}
	return fmt.Errorf("no pending call for descriptor %s", descriptor)
}

func (g *GatedFetcher) removeLocked(gt *gate) {
	for i, p := range g.pending {
		if p == gt {
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			g.broadcastLocked()
			return
		}
	}
}

// broadcastLocked wakes every WaitPending caller.
func (g *GatedFetcher) broadcastLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}
