package coordinator

import (
	"log/slog"
	"time"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/metrics"
)

// DefaultMaxConcurrentFetches bounds in-flight transport calls.
const DefaultMaxConcurrentFetches = 16

type options struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	policy        Policy
	maxConcurrent int
	timeout       time.Duration
	clock         *Clock
	tokens        TokenGenerator
	idFields      ir.IDFields
}

// Option configures a Coordinator.
type Option func(*options)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records cache and fetch activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPolicy sets the fetch policy. Default PolicyCacheAndNetwork.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithMaxConcurrentFetches bounds concurrent transport calls.
// Values below 1 select DefaultMaxConcurrentFetches.
func WithMaxConcurrentFetches(n int) Option {
	return func(o *options) {
		o.maxConcurrent = n
	}
}

// WithFetchTimeout bounds each transport call. Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithClock sets the settlement clock.
func WithClock(c *Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithTokenGenerator sets the fetch token generator. Default UUIDv7.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(o *options) {
		o.tokens = g
	}
}

// WithIDFields sets per-resource identifier fields of fetched records.
func WithIDFields(f ir.IDFields) Option {
	return func(o *options) {
		o.idFields = f
	}
}
