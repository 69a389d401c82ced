package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/relq/internal/ir"
)

// RetryOptions configures WithRetry.
type RetryOptions struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	Logger      *slog.Logger
}

type retryFetcher struct {
	next Fetcher
	opts RetryOptions
}

// WithRetry decorates next with exponential backoff on temporary transport
// errors. Permanent errors and context cancellation return immediately.
// MaxAttempts below 2 disables retrying.
func WithRetry(next Fetcher, opts RetryOptions) Fetcher {
	if opts.MaxAttempts < 2 {
		return next
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &retryFetcher{next: next, opts: opts}
}

func (r *retryFetcher) FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.InitialInterval
	eb.MaxInterval = r.opts.MaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.opts.MaxAttempts-1)), ctx)

	var result ir.FetchResult
	attempt := 0
	op := func() error {
		attempt++
		res, err := r.next.FetchManyByReference(ctx, resource, params)
		if err != nil {
			if IsTemporary(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.opts.Logger.Debug("retrying fetch",
			"resource", resource,
			"attempt", attempt,
			"wait", wait,
			"error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return ir.FetchResult{}, AsError(resource, params, err)
	}
	return result, nil
}
