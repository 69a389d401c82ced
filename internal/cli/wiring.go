package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/relq/internal/config"
	"github.com/roach88/relq/internal/coordinator"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/metrics"
	"github.com/roach88/relq/internal/records"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/transport"
)

// closer releases what a builder opened.
type closer func() error

func noClose() error { return nil }

// buildFetcher connects the configured transport and applies retries.
func buildFetcher(cfg *config.Config, logger *slog.Logger) (transport.Fetcher, closer, error) {
	var (
		f     transport.Fetcher
		close closer = noClose
	)
	switch cfg.Transport.Kind {
	case config.TransportLocal:
		st, err := store.Open(cfg.Store.Dataset)
		if err != nil {
			return nil, nil, fmt.Errorf("open dataset %s: %w", cfg.Store.Dataset, err)
		}
		f = transport.NewLocal(st, ir.IDFields(cfg.IDFields))
		close = st.Close
		logger.Debug("using local dataset", "path", cfg.Store.Dataset)
	case config.TransportHTTP:
		hf, err := transport.NewHTTPFetcher(cfg.Transport.Endpoint,
			transport.WithUserAgent(cfg.Transport.UserAgent),
			transport.WithRequestTimeout(cfg.Transport.TimeoutDuration))
		if err != nil {
			return nil, nil, err
		}
		f = hf
		logger.Debug("using http transport", "endpoint", cfg.Transport.Endpoint)
	case config.TransportNATS:
		conn, err := nats.Connect(cfg.Transport.Endpoint,
			nats.Name("relq"),
			nats.Timeout(cfg.Transport.TimeoutDuration))
		if err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", cfg.Transport.Endpoint, err)
		}
		f = transport.NewNATSFetcher(conn, cfg.Transport.SubjectPrefix, cfg.Transport.TimeoutDuration)
		close = func() error {
			conn.Close()
			return nil
		}
		logger.Debug("using nats transport",
			"endpoint", cfg.Transport.Endpoint,
			"subject_prefix", cfg.Transport.SubjectPrefix)
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}

	f = transport.WithRetry(f, transport.RetryOptions{
		MaxAttempts:     cfg.Fetch.Retry.MaxAttempts,
		InitialInterval: cfg.Fetch.Retry.InitialDuration,
		MaxInterval:     cfg.Fetch.Retry.MaxDuration,
		Logger:          logger,
	})
	return f, close, nil
}

// buildRecordStore opens the configured record store.
func buildRecordStore(cfg *config.Config) (records.Store, closer, error) {
	idFields := ir.IDFields(cfg.IDFields)
	switch cfg.Store.Records {
	case config.RecordsMemory:
		return records.NewMemory(idFields), noClose, nil
	case config.RecordsSQLite:
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open record store %s: %w", cfg.Store.Path, err)
		}
		return st.Records(idFields), st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown record store %q", cfg.Store.Records)
	}
}

// buildCoordinator applies the fetch section of cfg.
func buildCoordinator(cfg *config.Config, f transport.Fetcher, recs records.Store, logger *slog.Logger, m *metrics.Metrics) (*coordinator.Coordinator, error) {
	policy, err := coordinator.ParsePolicy(cfg.Fetch.Policy)
	if err != nil {
		return nil, err
	}
	return coordinator.New(f, recs,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
		coordinator.WithPolicy(policy),
		coordinator.WithMaxConcurrentFetches(cfg.Fetch.MaxConcurrent),
		coordinator.WithFetchTimeout(cfg.Fetch.TimeoutDuration),
		coordinator.WithIDFields(ir.IDFields(cfg.IDFields)),
	), nil
}

// instrumentedFetcher records transport calls it serves on m.
type instrumentedFetcher struct {
	next transport.Fetcher
	m    *metrics.Metrics
}

func (f instrumentedFetcher) FetchManyByReference(ctx context.Context, resource string, params ir.ReferenceParams) (ir.FetchResult, error) {
	start := time.Now()
	f.m.FetchStarted(resource)
	res, err := f.next.FetchManyByReference(ctx, resource, params)
	f.m.FetchFinished(resource, time.Since(start), err != nil)
	return res, err
}

// closeAll runs closers in reverse order and joins their errors.
func closeAll(closers ...closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] == nil {
			continue
		}
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
