package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/relq/internal/config"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/metrics"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/transport"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Dataset     string
	HTTPAddr    string
	NATSURL     string
	MetricsAddr string

	// ready, when set, receives the bound listener addresses (for testing).
	ready func(httpAddr, metricsAddr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local dataset over HTTP and NATS",
		Long: `Answer relation fetches from a local SQLite dataset.

The HTTP listener speaks the wire format of the http transport
(GET /{resource}). The NATS responder answers requests on
<subject_prefix>.<resource> in the queue group relq-responders, so several
servers share the load. Prometheus metrics are served at /metrics.

At least one of --http and --nats is required. --nats defaults to
transport.endpoint when transport.kind is nats; --metrics defaults to
metrics.addr.

Example:
  relq serve --dataset ./dataset.db --http :8080 --metrics :9090
  relq serve -c relq.yaml --nats nats://localhost:4222`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "dataset database path (default store.dataset)")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http", "", "HTTP listen address")
	cmd.Flags().StringVar(&opts.NATSURL, "nats", "", "NATS server URL")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics", "", "metrics listen address")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	dataset := opts.Dataset
	if dataset == "" {
		dataset = cfg.Store.Dataset
	}
	natsURL := opts.NATSURL
	if natsURL == "" && cfg.Transport.Kind == config.TransportNATS {
		natsURL = cfg.Transport.Endpoint
	}
	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if opts.HTTPAddr == "" && natsURL == "" {
		return NewExitError(ExitCommandError, "nothing to serve: set --http or --nats")
	}

	st, err := store.Open(dataset)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open dataset", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing dataset", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	var fetcher transport.Fetcher = instrumentedFetcher{
		next: transport.NewLocal(st, ir.IDFields(cfg.IDFields)),
		m:    m,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if version, err := st.SchemaVersion(ctx); err == nil {
		logger.Debug("dataset opened", "path", dataset, "schema_version", version)
	}

	var httpLn, metricsLn net.Listener
	if opts.HTTPAddr != "" {
		if httpLn, err = net.Listen("tcp", opts.HTTPAddr); err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
	}
	if metricsAddr != "" {
		if metricsLn, err = net.Listen("tcp", metricsAddr); err != nil {
			if httpLn != nil {
				_ = httpLn.Close()
			}
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Serving dataset %s\n", dataset)

	if httpLn != nil {
		srv := &http.Server{
			Handler:           transport.Handler(fetcher, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error { return serveHTTP(gctx, srv, httpLn, logger) })
		fmt.Fprintf(w, "HTTP listening on %s\n", httpLn.Addr())
	}
	if metricsLn != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error { return serveHTTP(gctx, srv, metricsLn, logger) })
		fmt.Fprintf(w, "Metrics on %s/metrics\n", metricsLn.Addr())
	}
	if natsURL != "" {
		conn, err := nats.Connect(natsURL,
			nats.Name("relq-serve"),
			nats.Timeout(cfg.Transport.TimeoutDuration))
		if err != nil {
			stop()
			_ = g.Wait()
			return WrapExitError(ExitCommandError, "failed to connect to NATS", err)
		}
		defer conn.Close()
		responder := transport.NewResponder(conn, cfg.Transport.SubjectPrefix, fetcher, logger)
		g.Go(func() error { return responder.Serve(gctx) })
		fmt.Fprintf(w, "NATS responder on %s.*\n", cfg.Transport.SubjectPrefix)
	}

	if opts.ready != nil {
		opts.ready(addrOf(httpLn), addrOf(metricsLn))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped")
	return nil
}

// serveHTTP serves on ln until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "addr", ln.Addr().String(), "error", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func addrOf(ln net.Listener) string {
	if ln == nil {
		return ""
	}
	return ln.Addr().String()
}
